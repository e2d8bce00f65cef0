package admin

import (
	handlershared "github.com/tipster-link/internal/http/handlers/shared"
	"github.com/tipster-link/internal/http/response"
	"github.com/tipster-link/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func requestLog(c *gin.Context) *zap.SugaredLogger {
	return handlershared.RequestLog(c)
}

func respondError(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondError(c, code, msg, err)
}

func respondMappedError(c *gin.Context, err error, rules []handlershared.MappedError, fallbackMsg string) {
	handlershared.RespondMappedError(c, err, rules, response.CodeInternal, fallbackMsg)
}

// domainErrorRules 按错误分类映射，规则表末尾兜底
var domainErrorRules = []handlershared.MappedError{
	{Target: service.ErrQueueUnavailable, Code: response.CodeServiceUnavailable, Msg: "queue unavailable"},
	{Target: service.ErrNotFound, Code: response.CodeNotFound},
	{Target: service.ErrInvalidInput, Code: response.CodeBadRequest},
	{Target: service.ErrConflict, Code: response.CodeConflict},
	{Target: service.ErrInvalidState, Code: response.CodeConflict},
}
