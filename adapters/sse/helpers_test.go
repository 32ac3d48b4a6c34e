package sse_test

import (
	"io"
	"log"

	"recall/adapters/sse"
)

func init() {
	// 將日誌輸出重定向到io.Discard
	log.SetOutput(io.Discard)
}

// Message 表示一個 SSE 訊息，包含資料字段。
type Message struct {
	Data string `json:"data"`
}

// stubSubscriber 模擬跨節點訊息來源
type stubSubscriber struct {
	ch chan sse.PublishRequest[Message]
}

func (s *stubSubscriber) Subscribe() <-chan sse.PublishRequest[Message] {
	return s.ch
}
