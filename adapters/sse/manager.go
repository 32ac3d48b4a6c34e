package sse

import (
	"context"
	"log/slog"
	"sync"
)

type managerOptions[T any] struct {
	logger     *slog.Logger
	subscriber Subscriber[T]
}

type Option[T any] func(*managerOptions[T])

// WithLogger 設置日誌記錄器
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(o *managerOptions[T]) {
		o.logger = logger
	}
}

// WithSubscriber 設置跨節點訊息來源
// 沒有設置時manager只在本機廣播
func WithSubscriber[T any](subscriber Subscriber[T]) Option[T] {
	return func(o *managerOptions[T]) {
		o.subscriber = subscriber
	}
}

// connectionManager 管理多個 SSE 頻道的訂閱與發布。
// 本機的Publish直接廣播；掛上Subscriber之後，其他節點發布的訊息
// 也會經由stream進到這裡再分發給本機的訂閱者。
type connectionManager[T any] struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu     sync.RWMutex   // 保護 active 和 channels 的讀寫
	wg     sync.WaitGroup // 用於等待所有 goroutine 完成
	active bool           // 標記 manager 是否正在運作中

	subscriber Subscriber[T]
	channels   map[string]IChannel[T] // 儲存所有活躍的頻道
}

func NewConnectionManager[T any](opts ...Option[T]) (IConnectionManager[T], error) {
	options := managerOptions[T]{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &connectionManager[T]{
		ctx:        ctx,
		cancel:     cancel,
		logger:     options.logger.With(slog.String("caller", "ConnectionManager")),
		channels:   make(map[string]IChannel[T]),
		subscriber: options.subscriber,
		active:     true,
	}, nil
}

// Start 啟動連線管理器，開始處理訊息的接收與廣播。
// 應在呼叫其他方法前先呼叫此方法。
func (cm *connectionManager[T]) Start() {
	if cm.subscriber == nil {
		return
	}

	cm.wg.Add(1)
	go func() {
		defer cm.wg.Done()
		ch := cm.subscriber.Subscribe()
		for {
			select {
			case <-cm.ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				cm.mu.RLock()
				if channel, exists := cm.channels[msg.Channel]; exists {
					channel.Broadcast(msg.Message)
				}
				cm.mu.RUnlock()
			}
		}
	}()
}

// Done 停止連線管理器的運作。
func (cm *connectionManager[T]) Done() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.active {
		return
	}

	cm.active = false
	cm.cancel()
	cm.wg.Wait()
	for _, channel := range cm.channels {
		channel.UnsubscribeAll()
	}
	clear(cm.channels)
}

// Subscribe 訂閱指定的頻道。
func (cm *connectionManager[T]) Subscribe(channelName string) (<-chan T, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.active {
		return nil, context.Canceled
	}

	c, ok := cm.channels[channelName]
	if !ok {
		c = NewChannel[T]()
		cm.channels[channelName] = c
	}
	return c.Subscribe(), nil
}

// Publish 將訊息廣播給指定頻道的本機訂閱者。
// 頻道沒有任何訂閱者時訊息直接丟棄。
func (cm *connectionManager[T]) Publish(channelName string, data T) error {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if !cm.active {
		return context.Canceled
	}

	if channel, ok := cm.channels[channelName]; ok {
		channel.Broadcast(data)
	}
	return nil
}

// Unsubscribe 取消訂閱指定的頻道。
func (cm *connectionManager[T]) Unsubscribe(channelName string, ch <-chan T) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	c, ok := cm.channels[channelName]
	if !ok {
		return
	}

	c.Unsubscribe(ch)
	if c.IsIdle() {
		delete(cm.channels, channelName)
	}
}
