package repository

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// dbDialectName 获取数据库方言名称，默认按 sqlite 处理。
func dbDialectName(db *gorm.DB) string {
	if db == nil || db.Dialector == nil {
		return "sqlite"
	}
	name := strings.ToLower(strings.TrimSpace(db.Dialector.Name()))
	if name == "" {
		return "sqlite"
	}
	return name
}

func likeOperatorByDialect(dialect string) string {
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case "postgres", "postgresql":
		return "ILIKE"
	default:
		return "LIKE"
	}
}

// containsCondition 构建大小写不敏感的包含匹配条件，返回条件与参数。
func containsCondition(db *gorm.DB, column, value string) (string, string) {
	return containsConditionByDialect(dbDialectName(db), column, value)
}

func containsConditionByDialect(dialect, column, value string) (string, string) {
	condition := fmt.Sprintf("%s %s ? ESCAPE '\\'", column, likeOperatorByDialect(dialect))
	return condition, "%" + escapeLike(value) + "%"
}

// escapeLike 转义 LIKE 通配符，避免外部输入中的 % 与 _ 扩大匹配范围。
func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
