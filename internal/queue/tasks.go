package queue

import (
	"encoding/json"

	"github.com/tipster-link/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskPayoutGenerate 按结算周期生成结算单
	TaskPayoutGenerate = constants.TaskPayoutGenerate
	// TaskConversionBatchImport 对账文件批量导入
	TaskConversionBatchImport = constants.TaskConversionBatchImport
)

// PayoutGeneratePayload 结算单生成任务载荷
type PayoutGeneratePayload struct {
	Period string `json:"period"`
	Actor  string `json:"actor"`
}

// ConversionBatchImportRow 对账导入行（原始列名到值）
type ConversionBatchImportRow map[string]string

// ConversionBatchImportPayload 对账导入任务载荷
type ConversionBatchImportPayload struct {
	BatchID       uint                       `json:"batch_id"`
	PartnerSiteID uint                       `json:"partner_site_id"`
	Period        string                     `json:"period"`
	ColumnMapping map[string]string          `json:"column_mapping,omitempty"`
	Rows          []ConversionBatchImportRow `json:"rows"`
}

// NewPayoutGenerateTask 创建结算单生成任务
func NewPayoutGenerateTask(payload PayoutGeneratePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPayoutGenerate, body), nil
}

// NewConversionBatchImportTask 创建对账导入任务
func NewConversionBatchImportTask(payload ConversionBatchImportPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskConversionBatchImport, body), nil
}
