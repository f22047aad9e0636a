package providers

import "strings"

// Truncate limits a response body snippet for logging.
// 原始响应体只进日志且截断，避免把大段 base64 打进日志流。
func Truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

// IsModelFamily reports whether the resolved model name belongs to the
// given family token (case-insensitive substring match).
// 分辨率与搜索工具等字段只对特定模型族下发，其余模型静默忽略。
func IsModelFamily(model, family string) bool {
	return strings.Contains(strings.ToLower(model), strings.ToLower(family))
}
