package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Message 封裝事件本體和ack所需的資料
// 下游處理成功後呼叫Done確認，處理失敗時呼叫Fail把事件移到dead-letter
type Message[T any] struct {
	Data T

	client    *redis.Client
	done      bool
	messageID string
	stream    string
	group     string

	raw map[string]any
}

// Done 確認事件已處理完成
func (m *Message[T]) Done(ctx context.Context) error {
	const op = "Message.Done"
	if m.done {
		return nil
	}
	if err := m.client.XAck(ctx, m.stream, m.group, m.messageID).Err(); err != nil {
		return fmt.Errorf("[%s] failed to ack message: %w", op, err)
	}
	m.done = true
	return nil
}

// Fail 把事件移到dead-letter stream並確認原事件
func (m *Message[T]) Fail(ctx context.Context, failErr error) error {
	const op = "Message.Fail"
	if m.done {
		return nil
	}

	m.raw["error"] = failErr.Error()
	if err := m.client.XAdd(ctx, &redis.XAddArgs{
		Stream: m.stream + ":dead-letter",
		Values: m.raw,
	}).Err(); err != nil {
		return fmt.Errorf("[%s] failed to move message to dead letter queue: %w", op, err)
	}

	if err := m.client.XAck(ctx, m.stream, m.group, m.messageID).Err(); err != nil {
		return fmt.Errorf("[%s] failed to ack failed message: %w", op, err)
	}
	m.done = true
	return nil
}

type groupConsumerOptions[T any] struct {
	logger       *slog.Logger
	bufferSize   int
	blockTimeout time.Duration
	parseFunc    func(map[string]any) (T, error)
}

type GroupConsumerOption[T any] func(*groupConsumerOptions[T])

// WithGroupConsumerLogger 設置日誌記錄器
func WithGroupConsumerLogger[T any](logger *slog.Logger) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.logger = logger
	}
}

// WithGroupConsumerBufferSize 設置下游channel的緩衝大小
func WithGroupConsumerBufferSize[T any](size int) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.bufferSize = size
	}
}

// WithGroupConsumerBlockTimeout 設置阻塞讀取超時時間
func WithGroupConsumerBlockTimeout[T any](d time.Duration) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.blockTimeout = d
	}
}

// WithGroupConsumerParseFunc 設置自定義解析函數
func WithGroupConsumerParseFunc[T any](fn func(map[string]any) (T, error)) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.parseFunc = fn
	}
}

// GroupConsumer 以consumer group的方式消費Redis stream
// 同一個group內每筆事件只會分派給一個成員，和Consumer的廣播語義相對
// 需要整個部署只處理一次的工作(例如通知落地)走這條路
type GroupConsumer[T any] struct {
	client     *redis.Client
	stream     string
	group      string
	consumer   string
	out        chan *Message[T]
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	closed     bool
	logger     *slog.Logger
	options    groupConsumerOptions[T]
}

func NewGroupConsumer[T any](client *redis.Client, stream, group, consumer string, opts ...GroupConsumerOption[T]) (IGroupConsumer[T], error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" || group == "" || consumer == "" {
		return nil, errors.New("stream, group and consumer cannot be empty")
	}

	options := groupConsumerOptions[T]{
		logger:       slog.Default(),
		bufferSize:   1,
		blockTimeout: time.Second,
		parseFunc:    DefaultParseFromMessage[T],
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &GroupConsumer[T]{
		client:   client,
		stream:   stream,
		group:    group,
		consumer: consumer,
		closed:   true,
		logger: options.logger.With(
			slog.String("caller", "GroupConsumer"),
			slog.String("stream", stream),
			slog.String("group", group),
			slog.String("consumer", consumer),
		),
		options: options,
	}, nil
}

func (s *GroupConsumer[T]) Start() {
	if !s.closed {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.out = make(chan *Message[T], s.options.bufferSize)
	s.closed = false
	s.cancelFunc = cancel
	s.logger.Info("starting group consumer")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.logger.Info("group consumer goroutine stopped")
		defer close(s.out)

		// group不存在時建立，從stream尾端開始消費
		// BUSYGROUP代表group已經存在，不是錯誤
		if err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, "$").Err(); err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			s.logger.Error("failed to create consumer group", slog.Any("error", err))
		}

		for {
			select {
			case <-ctx.Done():
				return
			default:
				message, err := s.fetchNextMessage(ctx)
				if err != nil {
					// redis.Nil代表blockTimeout內沒有新事件
					if errors.Is(err, redis.Nil) {
						continue
					}
					if errors.Is(err, context.Canceled) {
						return
					}
					s.logger.Error("fetch message error", slog.Any("error", err))
					continue
				}

				data, err := s.options.parseFunc(message.Values)
				if err != nil {
					// 解析失敗的事件重試也不會成功，直接移到dead-letter讓人工處理
					s.logger.Error("failed to parse message",
						slog.String("messageId", message.ID),
						slog.Any("error", err))
					if dlErr := s.moveToDeadLetter(ctx, message); dlErr != nil {
						s.logger.Error("error moving message to dead letter",
							slog.String("messageId", message.ID),
							slog.Any("error", dlErr))
					}
					continue
				}

				msg := &Message[T]{
					Data:      data,
					client:    s.client,
					messageID: message.ID,
					stream:    s.stream,
					group:     s.group,
					raw:       message.Values,
				}
				select {
				case <-ctx.Done():
					return
				case s.out <- msg:
					s.logger.Debug("message sent to downstream",
						slog.String("messageId", message.ID))
				}
			}
		}
	}()
}

func (s *GroupConsumer[T]) fetchNextMessage(ctx context.Context) (redis.XMessage, error) {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, ">"},
		Count:    1,
		Block:    s.options.blockTimeout,
	}).Result()
	if err != nil {
		return redis.XMessage{}, err
	}

	if len(streams) > 0 && len(streams[0].Messages) > 0 {
		message := streams[0].Messages[0]
		s.logger.Debug("received message", slog.String("messageId", message.ID))
		return message, nil
	}

	return redis.XMessage{}, redis.Nil
}

func (s *GroupConsumer[T]) moveToDeadLetter(ctx context.Context, message redis.XMessage) error {
	if err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream + ":dead-letter",
		Values: message.Values,
	}).Err(); err != nil {
		return fmt.Errorf("failed to move message to dead letter queue: %w", err)
	}
	return s.client.XAck(ctx, s.stream, s.group, message.ID).Err()
}

// Subscribe 訂閱數據流
func (s *GroupConsumer[T]) Subscribe() <-chan *Message[T] {
	return s.out
}

// Close 關閉消費者
func (s *GroupConsumer[T]) Close() {
	if s.closed {
		return
	}
	s.logger.Info("closing group consumer")
	s.closed = true
	s.cancelFunc()
	s.wg.Wait()
	s.logger.Info("group consumer closed")
}
