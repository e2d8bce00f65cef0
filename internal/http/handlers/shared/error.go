package shared

import (
	"errors"

	"github.com/tipster-link/internal/http/response"
	"github.com/tipster-link/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MappedError 定义业务错误到接口错误响应的映射关系。
type MappedError struct {
	Target error
	Code   int
	Msg    string
}

// RequestLog 提供携带 request_id 的日志实例。
func RequestLog(c *gin.Context) *zap.SugaredLogger {
	if c == nil {
		return logger.S()
	}
	if requestID, ok := c.Get("request_id"); ok {
		if id, ok := requestID.(string); ok && id != "" {
			return logger.SW("request_id", id)
		}
	}
	return logger.S()
}

// RespondError 返回错误响应，并在有原始错误时记录日志。
func RespondError(c *gin.Context, code int, msg string, err error) {
	if err != nil {
		RequestLog(c).Errorw("handler_error",
			"code", code,
			"message", msg,
			"path", c.FullPath(),
			"error", err,
		)
	}
	response.Error(c, code, msg)
}

// RespondMappedError 按规则表映射业务错误，未命中时使用兜底码并记录原始错误。
func RespondMappedError(c *gin.Context, err error, rules []MappedError, fallbackCode int, fallbackMsg string) {
	for _, rule := range rules {
		if errors.Is(err, rule.Target) {
			msg := rule.Msg
			if msg == "" {
				msg = err.Error()
			}
			RespondError(c, rule.Code, msg, nil)
			return
		}
	}
	RespondError(c, fallbackCode, fallbackMsg, err)
}
