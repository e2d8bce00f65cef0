package shared

import (
	"strconv"
	"strings"

	"github.com/tipster-link/internal/http/response"

	"github.com/gin-gonic/gin"
)

// 鉴权中间件写入上下文的主体字段
const (
	ContextAdminID    = "admin_id"
	ContextPromoterID = "promoter_id"
)

// GetContextActor 从上下文读取鉴权主体标识，缺失时返回 401。
func GetContextActor(c *gin.Context, key string) (string, bool) {
	value, exists := c.Get(key)
	if !exists {
		RespondError(c, response.CodeUnauthorized, "unauthorized", nil)
		return "", false
	}
	actor, ok := value.(string)
	if !ok || strings.TrimSpace(actor) == "" {
		RespondError(c, response.CodeUnauthorized, "unauthorized", nil)
		return "", false
	}
	return actor, true
}

// ParseUintParam 解析路径中的数字 ID，非法时返回 400。
func ParseUintParam(c *gin.Context, name string) (uint, bool) {
	raw := strings.TrimSpace(c.Param(name))
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || parsed == 0 {
		RespondError(c, response.CodeBadRequest, "invalid "+name, nil)
		return 0, false
	}
	return uint(parsed), true
}

// ParseUintQuery 解析可选的数字查询参数，为空时返回 0。
func ParseUintQuery(c *gin.Context, name string) (uint, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(parsed), nil
}
