package utils

import "strings"

// contentTypeToExt MIME类型到扩展名的映射
// image/jpeg 使用 .jpeg，与历史上传文件保持一致
var contentTypeToExt = map[string]string{
	"image/jpeg": ".jpeg",
	"image/jpg":  ".jpeg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

// DefaultExtension 未知 MIME 类型使用的扩展名
const DefaultExtension = ".bin"

// ExtensionForContentType 根据 MIME 类型返回文件扩展名（含点）
func ExtensionForContentType(contentType string) string {
	contentType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if ext, ok := contentTypeToExt[contentType]; ok {
		return ext
	}
	return DefaultExtension
}
