// Package config loads the service configuration from the environment.
package config

import (
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds the configuration for the ingestion service
type Config struct {
	AppID     string `env:"FEISHU_APP_ID" env-description:"Open platform app id"`
	AppSecret string `env:"FEISHU_APP_SECRET" env-description:"Open platform app secret"`

	BaseURL     string        `env:"FEISHU_BASE_URL" env-default:"https://open.feishu.cn/open-apis" env-description:"Open platform API root"`
	HTTPTimeout time.Duration `env:"FEISHU_HTTP_TIMEOUT" env-default:"20s" env-description:"Timeout of one remote API call"`
	PageSize    int           `env:"FEISHU_PAGE_SIZE" env-default:"500" env-description:"Block listing page size"`

	PollInterval time.Duration `env:"EXPORT_POLL_INTERVAL" env-default:"500ms" env-description:"Delay between export task polls"`
	PollAttempts int           `env:"EXPORT_POLL_ATTEMPTS" env-default:"20" env-description:"Maximum export task polls"`
	// Zero derives the bound from the poll interval and attempts
	ExportTimeout time.Duration `env:"EXPORT_TIMEOUT" env-description:"Wall-clock bound of export task polling"`

	AssetBatchSize int    `env:"ASSET_BATCH_SIZE" env-default:"50" env-description:"File tokens per temporary URL batch"`
	ImageDir       string `env:"IMAGE_DIR" env-default:"./public/images/feishu" env-description:"Directory for downloaded images"`
	ImageURLPrefix string `env:"IMAGE_URL_PREFIX" env-default:"/images/feishu" env-description:"URL prefix the image directory is served under"`
	ProxyPath      string `env:"PROXY_PATH" env-default:"/api/proxy-image" env-description:"Path of the image proxy endpoint"`

	ProxyHosts []string `env:"PROXY_ALLOWED_HOSTS" env-separator:"," env-description:"Extra hosts the image proxy may fetch from"`

	Port int `env:"PORT" env-default:"8080" env-description:"HTTP server port"`

	RedisURL string        `env:"REDIS_URL" env-description:"Redis URL for the result cache (optional)"`
	CacheTTL time.Duration `env:"CACHE_TTL" env-default:"1h" env-description:"Lifetime of cached ingestion results"`

	MinioEndpoint  string `env:"MINIO_ENDPOINT" env-description:"Object store endpoint for images (optional)"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY" env-description:"Object store access key"`
	MinioSecretKey string `env:"MINIO_SECRET_KEY" env-description:"Object store secret key"`
	MinioBucket    string `env:"MINIO_BUCKET" env-default:"feishu-images" env-description:"Object store bucket"`
	MinioUseSSL    bool   `env:"MINIO_USE_SSL" env-default:"false" env-description:"Use TLS for the object store"`
	MinioPublicURL string `env:"MINIO_PUBLIC_URL" env-description:"Public URL prefix of the bucket"`
}

// Load loads configuration from environment variables
func Load() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// HasCredentials reports whether app credentials are configured
func (c Config) HasCredentials() bool {
	return c.AppID != "" && c.AppSecret != ""
}

// HasObjectStore reports whether images go to an object store instead of the local directory
func (c Config) HasObjectStore() bool {
	return c.MinioEndpoint != ""
}

// WithCredentials sets the app credentials
func (c Config) WithCredentials(appID, appSecret string) Config {
	c.AppID = appID
	c.AppSecret = appSecret
	return c
}

// WithBaseURL sets the remote API root
func (c Config) WithBaseURL(baseURL string) Config {
	c.BaseURL = baseURL
	return c
}

// WithImageDir sets the image directory
func (c Config) WithImageDir(dir string) Config {
	c.ImageDir = dir
	return c
}

// WithPort sets the server port
func (c Config) WithPort(port int) Config {
	c.Port = port
	return c
}

// WithRedisURL sets the result cache URL
func (c Config) WithRedisURL(redisURL string) Config {
	c.RedisURL = redisURL
	return c
}
