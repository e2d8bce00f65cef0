package admin

import (
	"strconv"
	"strings"

	"github.com/tipster-link/internal/http/response"
	"github.com/tipster-link/internal/repository"
	"github.com/tipster-link/internal/service"

	"github.com/gin-gonic/gin"
)

// CreateImportRequest 对账导入请求，行数据由上传端解析后以 JSON 提交
type CreateImportRequest struct {
	PartnerSiteID uint                     `json:"partner_site_id" binding:"required"`
	Period        string                   `json:"period" binding:"required"`
	FileName      string                   `json:"file_name"`
	ColumnMapping map[string]string        `json:"column_mapping"`
	Rows          []map[string]interface{} `json:"rows"`
	DryRun        bool                     `json:"dry_run"`
}

// CreateImport 导入合作方对账数据
func (h *Handler) CreateImport(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	var req CreateImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	result, err := h.BatchImportService.Import(c.Request.Context(), service.BatchImportInput{
		PartnerSiteID: req.PartnerSiteID,
		Period:        req.Period,
		FileName:      req.FileName,
		ColumnMapping: req.ColumnMapping,
		Rows:          stringifyImportRows(req.Rows),
		DryRun:        req.DryRun,
		Actor:         adminID,
	})
	if err != nil {
		respondMappedError(c, err, domainErrorRules, "import failed")
		return
	}
	response.Success(c, result)
}

// ListImports 导入批次列表
func (h *Handler) ListImports(c *gin.Context) {
	page, pageSize := readPagination(c)
	partnerSiteID, err := parseQueryUint(c, "partner_site_id")
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid partner_site_id", nil)
		return
	}
	batches, total, err := h.BatchImportService.List(repository.ImportBatchListFilter{
		Page:          page,
		PageSize:      pageSize,
		PartnerSiteID: partnerSiteID,
		Period:        strings.TrimSpace(c.Query("period")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "import batch fetch failed", err)
		return
	}
	response.SuccessWithPage(c, batches, response.BuildPagination(page, pageSize, total))
}

// GetImport 导入批次详情
func (h *Handler) GetImport(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	batch, err := h.BatchImportService.Get(id)
	if err != nil {
		respondMappedError(c, err, domainErrorRules, "import batch fetch failed")
		return
	}
	response.Success(c, batch)
}

func stringifyImportRows(rows []map[string]interface{}) []map[string]string {
	result := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		converted := make(map[string]string, len(row))
		for key, value := range row {
			switch v := value.(type) {
			case nil:
			case string:
				converted[key] = v
			case float64:
				converted[key] = strconv.FormatFloat(v, 'f', -1, 64)
			case bool:
				converted[key] = strconv.FormatBool(v)
			}
		}
		result = append(result, converted)
	}
	return result
}
