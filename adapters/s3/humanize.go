package s3

import "fmt"

// FormatBytes 將位元組數轉換為人類可讀的格式，1024進位
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d bytes", bytes)
	}

	units := []string{"KB", "MB", "GB", "TB", "PB"}
	value := float64(bytes)
	exp := -1
	for value >= unit && exp < len(units)-1 {
		value /= unit
		exp++
	}
	return fmt.Sprintf("%.2f %s", value, units[exp])
}
