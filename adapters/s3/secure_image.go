package s3

// SecureMIMETypesExtension 列出頭像上傳接受的圖片類型和存檔用的副檔名
// 只收瀏覽器普遍支援的點陣圖格式，SVG這類可內嵌腳本的格式一律排除
var SecureMIMETypesExtension = map[string]string{
	"image/jpeg": "jpeg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/bmp":  "bmp",
	"image/tiff": "tiff",
	"image/webp": "webp",
}

// CheckSecureImageAndGetExtension 檢查MIME類型是否在允許清單內，並返回對應的副檔名
func CheckSecureImageAndGetExtension(mimeType string) (bool, string) {
	ext, ok := SecureMIMETypesExtension[mimeType]
	return ok, ext
}
