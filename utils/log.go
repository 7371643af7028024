package utils

import (
	"log"
	"strings"
	"unicode"

	"github.com/anoixa/image-relay/config"
)

// maxLogFieldLen 客户端提交字段写入日志时的最大长度
const maxLogFieldLen = 80

// SanitizeLogMessage 去除不可打印字符，防止日志注入
func SanitizeLogMessage(msg string) string {
	var sb strings.Builder
	for _, r := range msg {
		if r == '\n' || r == '\t' {
			sb.WriteRune(' ')
		} else if unicode.IsPrint(r) || unicode.IsGraphic(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// SanitizeLogField 截断并清洗客户端提交的字段（caption、name 等）
func SanitizeLogField(value string) string {
	if runes := []rune(value); len(runes) > maxLogFieldLen {
		value = string(runes[:maxLogFieldLen]) + "..."
	}
	return SanitizeLogMessage(value)
}

// LogIfDev 仅在开发版本输出日志
func LogIfDev(msg string) {
	if config.IsDevelopment() {
		log.Println(msg)
	}
}

// LogIfDevf 仅在开发版本输出格式化日志
func LogIfDevf(format string, args ...interface{}) {
	if config.IsDevelopment() {
		log.Printf(format, args...)
	}
}
