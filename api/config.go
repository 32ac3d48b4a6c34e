package api

import (
	"crypto/ed25519"
	"time"
)

type ServerConfig struct {
	Auth  AuthConfig
	S3    S3Config
	DB    DBConfig
	Redis RedisConfig

	// LegacyRetired 標記legacy表示法是否已經淘汰
	// 淘汰狀態由部署設定帶入，重啟後不會回到雙軌模式
	LegacyRetired bool
}

type AuthConfig struct {
	// PrivateKeySeed 是base64編碼的ed25519 seed，留空時啟動會產生臨時金鑰
	PrivateKeySeed string
	PrivateKey     ed25519.PrivateKey
	Issuer         string
	Audience       string
	ExpireDuration time.Duration
}

type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	Bucket          string
	PublicBaseURL   string
}

type DBConfig struct {
	User     string
	Password string
	Host     string
	Port     int
	Database string
	Schema   string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix 是所有key和鎖的前綴，多個環境共用同一個Redis時用來隔離
	KeyPrefix string

	StreamKeys RedisStreamKeys
}

type RedisStreamKeys struct {
	BillEvents string
}
