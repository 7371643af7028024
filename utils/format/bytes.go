package format

import "strconv"

var units = []string{"B", "KB", "MB", "GB", "TB", "PB"}

// HumanReadableSize 字节数转为 1024 进制的可读格式，用于日志
func HumanReadableSize(bytes int64) string {
	if bytes < 1024 {
		return strconv.FormatInt(bytes, 10) + " B"
	}

	value := float64(bytes)
	exp := 0
	for value >= 1024 && exp < len(units)-1 {
		value /= 1024
		exp++
	}
	return strconv.FormatFloat(value, 'f', 2, 64) + " " + units[exp]
}
