package utils

import (
	"encoding/json"
	"strings"

	"k8s.io/klog/v2"
)

// ExtractJSONArray 从模型输出中截取 JSON 数组部分（第一个 '[' 到最后一个 ']'）
// 找不到时返回 false
func ExtractJSONArray(content string) (string, bool) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start == -1 || end <= start {
		return "", false
	}
	return content[start : end+1], true
}

// ToIndentJSON 以两个空格缩进序列化，用于拼接进提示词
func ToIndentJSON(v any) string {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		klog.Errorf("JSON序列化失败: %v", err)
		return ""
	}
	return string(jsonData)
}

// Truncate 按 rune 截断字符串
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
