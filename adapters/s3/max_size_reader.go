package s3

import (
	"fmt"
	"io"
)

var ErrReachLimitType *ReachLimitError

// ReachLimitError 表示讀到的內容超過了允許的上限
type ReachLimitError struct {
	MaxBytes int64
}

func (e *ReachLimitError) Error() string {
	return fmt.Sprintf("reach limit of %s", FormatBytes(e.MaxBytes))
}

// NewMaxSizeReader 包裝r，累計讀取超過maxSize時回傳ReachLimitError
// 頭像上傳前用它擋掉過大的檔案，不用把整個請求讀進記憶體再檢查
func NewMaxSizeReader(r io.Reader, maxSize int64) io.Reader {
	return &maxSizeReader{reader: r, limit: maxSize, remaining: maxSize}
}

type maxSizeReader struct {
	reader    io.Reader
	limit     int64 // 允許的總長度
	remaining int64 // 還可以讀取的長度
}

func (r *maxSizeReader) Read(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	// 最多讀剩餘額度加一個byte，多出來的那個byte
	// 就足以判斷來源有沒有超過上限
	if int64(len(p)) > r.remaining+1 {
		p = p[:r.remaining+1]
	}
	n, err = r.reader.Read(p)

	if int64(n) <= r.remaining {
		r.remaining -= int64(n)
		return n, err
	}

	// 超出上限，截斷到剩餘額度並回報錯誤
	n = int(r.remaining)
	r.remaining = 0
	return n, &ReachLimitError{r.limit}
}
