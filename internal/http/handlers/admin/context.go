package admin

import (
	"strings"
	"time"

	handlershared "github.com/tipster-link/internal/http/handlers/shared"

	"github.com/gin-gonic/gin"
)

func getAdminID(c *gin.Context) (string, bool) {
	return handlershared.GetContextActor(c, handlershared.ContextAdminID)
}

func parseIDParam(c *gin.Context) (uint, bool) {
	return handlershared.ParseUintParam(c, "id")
}

func normalizePagination(page, pageSize int) (int, int) {
	return handlershared.NormalizePagination(page, pageSize)
}

func readPagination(c *gin.Context) (int, int) {
	return handlershared.ReadPagination(c)
}

// parseTimeNullable 解析 RFC3339 或 YYYY-MM-DD，为空返回 nil
func parseTimeNullable(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return &parsed, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func formatTimeNullable(raw *time.Time) string {
	if raw == nil {
		return ""
	}
	return raw.Format(time.RFC3339)
}

func parseQueryUint(c *gin.Context, key string) (uint, error) {
	return handlershared.ParseUintQuery(c, key)
}
