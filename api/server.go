package api

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"

	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	redisAdapter "recall/adapters/redis"
	internalS3 "recall/adapters/s3"
	"recall/adapters/sse"
	"recall/migrate"
	"recall/models"
)

type ServerImpl struct {
	db          *gorm.DB
	migrator    *migrate.Migrator
	htmlChecker *bluemonday.Policy
	s3Operator  *internalS3.Operator

	redisClient    *redis.Client
	producer       redisAdapter.IProducer[BillEvent]
	sseConsumer    redisAdapter.IConsumer[sse.PublishRequest[BillEvent]]
	notifyConsumer redisAdapter.IGroupConsumer[BillEvent]
	sseManager     sse.IConnectionManager[BillEvent]

	wg         sync.WaitGroup
	cancelFunc context.CancelFunc

	config ServerConfig
}

func NewServer(config ServerConfig) (*ServerImpl, error) {
	const op = "NewServer"

	// 準備簽發access token用的金鑰
	if len(config.Auth.PrivateKey) == 0 {
		if config.Auth.PrivateKeySeed == "" {
			// 沒有提供金鑰時產生臨時金鑰，重啟後既有的token會全部失效
			slog.Warn("No auth private key provided, generating an ephemeral one")
			_, privateKey, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return nil, fmt.Errorf("[%s] Fail to generate auth key, err=%w", op, err)
			}
			config.Auth.PrivateKey = privateKey
		} else {
			seed, err := base64.StdEncoding.DecodeString(config.Auth.PrivateKeySeed)
			if err != nil {
				return nil, fmt.Errorf("[%s] Fail to decode auth key seed, err=%w", op, err)
			}
			if len(seed) != ed25519.SeedSize {
				return nil, fmt.Errorf("[%s] Invalid auth key seed length: %d", op, len(seed))
			}
			config.Auth.PrivateKey = ed25519.NewKeyFromSeed(seed)
		}
	}

	// 初始化資料庫連線
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s", config.DB.User, config.DB.Password, config.DB.Host, config.DB.Port, config.DB.Database, config.DB.Schema)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: config.DB.Schema + ".",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to connect to database, err=%w", op, err)
	}

	impl := &ServerImpl{
		db:          db,
		migrator:    migrate.New(db, migrate.WithLegacyRetired(config.LegacyRetired)),
		htmlChecker: bluemonday.UGCPolicy(),
		config:      config,
	}

	// 初始化S3客戶端，沒有設定時停用頭像上傳
	if config.S3.Endpoint != "" {
		s3Cfg, err := awsCfg.LoadDefaultConfig(
			context.Background(),
			awsCfg.WithBaseEndpoint(config.S3.Endpoint),
			awsCfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(config.S3.AccessKeyID, config.S3.SecretAccessKey, "")),
			awsCfg.WithRegion("auto"),
		)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to load AWS config, err=%w", op, err)
		}
		impl.s3Operator, err = internalS3.NewOperator(s3.NewFromConfig(s3Cfg), config.S3.Bucket, config.S3.PublicBaseURL)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create S3 operator, err=%w", op, err)
		}
	}

	// 初始化Redis連線和法案事件的stream
	// 沒有設定Redis時退化為單節點模式，事件只在本機廣播
	var sseOpts []sse.Option[BillEvent]
	if config.Redis.Addr != "" {
		impl.redisClient = redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})

		impl.producer, err = redisAdapter.NewProducer[BillEvent](impl.redisClient, config.Redis.StreamKeys.BillEvents)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create producer, err=%w", op, err)
		}

		impl.sseConsumer, err = redisAdapter.NewConsumer(
			impl.redisClient,
			config.Redis.StreamKeys.BillEvents,
			redisAdapter.WithConsumerParseFunc(func(m map[string]any) (sse.PublishRequest[BillEvent], error) {
				event, err := redisAdapter.DefaultParseFromMessage[BillEvent](m)
				if err != nil {
					return sse.PublishRequest[BillEvent]{}, fmt.Errorf("fail to parse message to sse.PublishRequest[BillEvent], err=%w", err)
				}
				return sse.PublishRequest[BillEvent]{
					Channel: event.BillID.String(),
					Message: event,
				}, nil
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create sse consumer, err=%w", op, err)
		}
		sseOpts = append(sseOpts, sse.WithSubscriber[BillEvent](impl.sseConsumer))

		// 通知落地走consumer group，同一筆事件整個部署只會有一個節點處理
		impl.notifyConsumer, err = redisAdapter.NewGroupConsumer[BillEvent](
			impl.redisClient,
			config.Redis.StreamKeys.BillEvents,
			config.Redis.KeyPrefix+"bill-notifications",
			uuid.NewString(),
		)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create notification consumer, err=%w", op, err)
		}
	}

	sseOpts = append(sseOpts, sse.WithLogger[BillEvent](slog.Default()))
	impl.sseManager, err = sse.NewConnectionManager[BillEvent](sseOpts...)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create sse connection manager, err=%w", op, err)
	}

	return impl, nil
}

func (impl *ServerImpl) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	impl.cancelFunc = cancel

	if impl.producer != nil {
		impl.producer.Start()
	}
	if impl.sseConsumer != nil {
		impl.sseConsumer.Start()
	}
	impl.sseManager.Start()

	// 啟動一個worker，把stream上的法案事件寫成追蹤者的通知
	// consumer group保證每筆事件只被一個節點落地，追蹤者不會收到重複通知
	if impl.notifyConsumer != nil {
		impl.notifyConsumer.Start()
		slog.Info("Start bill notification worker")
		impl.wg.Add(1)
		go func() {
			logger := slog.Default().With(slog.String("caller", "BillNotification"))
			defer impl.wg.Done()
			defer slog.Info("Bill notification worker stopped")
			ch := impl.notifyConsumer.Subscribe()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-ch:
					if !ok {
						return
					}
					logger.Debug("Receive bill event", slog.String("billID", msg.Data.BillID.String()))
					if err := impl.recordNotifications(ctx, msg.Data); err != nil {
						logger.Error("Fail to record notifications", slog.Any("error", err))
						if failErr := msg.Fail(ctx, err); failErr != nil {
							logger.Error("Fail to move bill event to dead letter", slog.Any("error", failErr))
						}
						continue
					}
					if err := msg.Done(ctx); err != nil {
						logger.Error("Fail to ack bill event", slog.Any("error", err))
					}
				}
			}
		}()
	}
}

func (impl *ServerImpl) Close() {
	if impl.cancelFunc != nil {
		impl.cancelFunc()
	}
	impl.wg.Wait()
	if impl.notifyConsumer != nil {
		impl.notifyConsumer.Close()
	}
	if impl.sseConsumer != nil {
		impl.sseConsumer.Close()
	}
	if impl.producer != nil {
		impl.producer.Close()
	}
	if impl.sseManager != nil {
		impl.sseManager.Done()
	}
}

// publishBillEvent 把法案事件送上stream讓所有節點消費
// 單節點模式下直接在本機廣播並同步落地通知
func (impl *ServerImpl) publishBillEvent(ctx context.Context, event BillEvent) {
	const op = "publishBillEvent"
	if impl.producer != nil {
		if err := impl.producer.Publish(event); err != nil {
			slog.Error("Fail to publish bill event", slog.String("op", op), slog.Any("error", err))
		}
		return
	}
	if err := impl.sseManager.Publish(event.BillID.String(), event); err != nil {
		slog.Error("Fail to broadcast bill event", slog.String("op", op), slog.Any("error", err))
	}
	if err := impl.recordNotifications(ctx, event); err != nil {
		slog.Error("Fail to record notifications", slog.String("op", op), slog.Any("error", err))
	}
}

// recordNotifications 為每個開啟狀態通知的追蹤者寫一筆Notification
func (impl *ServerImpl) recordNotifications(ctx context.Context, event BillEvent) error {
	const op = "recordNotifications"
	var profiles []models.VoterProfile
	if result := impl.db.WithContext(ctx).
		Joins("JOIN profile_followed_bills pfb ON pfb.voter_profile_id = voter_profiles.id").
		Where("pfb.bill_id = ?", event.BillID).
		Where("notify_on_bill_status_change = ?", true).
		Find(&profiles); result.Error != nil {
		return fmt.Errorf("[%s] Fail to list followers, err=%w", op, result.Error)
	}
	if len(profiles) == 0 {
		return nil
	}

	notifications := make([]models.Notification, len(profiles))
	for i, profile := range profiles {
		notifications[i] = models.Notification{
			ProfileID: profile.ID,
			BillID:    event.BillID,
			Message:   fmt.Sprintf("Bill %s (%s) moved to stage %s", event.BillNumber, event.Title, event.Stage),
		}
	}
	if result := impl.db.WithContext(ctx).Create(&notifications); result.Error != nil {
		return fmt.Errorf("[%s] Fail to create notifications, err=%w", op, result.Error)
	}
	return nil
}

// currentUser 從access token解析出目前的使用者
func (impl *ServerImpl) currentUser(c *gin.Context) (*models.User, bool) {
	const op = "currentUser"
	tokenString, ok := accessTokenFromRequest(c)
	if !ok {
		return nil, false
	}
	token, err := ParseAndValidateJWT(tokenString, impl.config.Auth.PrivateKey)
	if err != nil {
		slog.Error("Fail to parse and validate JWT", slog.String("op", op), slog.Any("error", err))
		return nil, false
	}
	userID, err := uuid.Parse(token.Subject)
	if err != nil {
		return nil, false
	}
	user := models.User{ID: userID}
	if result := impl.db.First(&user); result.Error != nil {
		return nil, false
	}
	return &user, true
}

// accessTokenFromRequest 依序嘗試cookie和Authorization header
func accessTokenFromRequest(c *gin.Context) (string, bool) {
	if token, err := c.Cookie("access_token"); err == nil && token != "" {
		return token, true
	}
	auth := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):], true
	}
	return "", false
}
