package public

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tipster-link/internal/service"

	"github.com/gin-gonic/gin"
)

const maxPostbackBodyBytes = 64 << 10

// Postback 合作方转化回传，GET 查询串与 POST 表单/JSON 均可，始终返回 HTTP 200
func (h *Handler) Postback(c *gin.Context) {
	fields, err := collectPostbackFields(c)
	if err != nil {
		requestLog(c).Warnw("postback_body_invalid", "error", err)
		c.JSON(http.StatusOK, service.PostbackResult{Success: false, Error: "invalid request body"})
		return
	}
	result := h.ConversionService.HandlePostback(c.Request.Context(), fields)
	c.JSON(http.StatusOK, result)
}

// collectPostbackFields 合并查询串、表单与 JSON 字段，请求体中的值覆盖查询串
func collectPostbackFields(c *gin.Context) (map[string]string, error) {
	fields := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			fields[key] = values[0]
		}
	}
	if c.Request.Method != http.MethodPost || c.Request.Body == nil {
		return fields, nil
	}

	contentType := strings.ToLower(c.ContentType())
	switch {
	case strings.Contains(contentType, "application/json"):
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPostbackBodyBytes))
		if err != nil {
			return fields, err
		}
		if len(bytes.TrimSpace(body)) == 0 {
			return fields, nil
		}
		decoder := json.NewDecoder(bytes.NewReader(body))
		decoder.UseNumber()
		var payload map[string]interface{}
		if err := decoder.Decode(&payload); err != nil {
			return fields, err
		}
		for key, value := range payload {
			if text, ok := stringifyPostbackValue(value); ok {
				fields[key] = text
			}
		}
	case strings.Contains(contentType, "application/x-www-form-urlencoded"),
		strings.Contains(contentType, "multipart/form-data"):
		if err := c.Request.ParseMultipartForm(maxPostbackBodyBytes); err != nil && err != http.ErrNotMultipart {
			return fields, err
		}
		for key, values := range c.Request.PostForm {
			if len(values) > 0 {
				fields[key] = values[0]
			}
		}
	}
	return fields, nil
}

func stringifyPostbackValue(value interface{}) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case bool:
		if v {
			return "true", true
		}
		return "false", true
	case map[string]interface{}, []interface{}:
		return "", false
	default:
		return fmt.Sprint(v), true
	}
}
