package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	GCS          GCSConfig
	Media        MediaConfig
	Gallery      GalleryConfig
	PubSub       PubSubConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CREWBOARD_APP_ENV" required:"true"`
	Port         string `envconfig:"CREWBOARD_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"CREWBOARD_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CREWBOARD_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CREWBOARD_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CREWBOARD_DB_DSN"`
	Driver string `envconfig:"CREWBOARD_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"CREWBOARD_DB_HOST"`
	Port     int    `envconfig:"CREWBOARD_DB_PORT" default:"5432"`
	User     string `envconfig:"CREWBOARD_DB_USER"`
	Password string `envconfig:"CREWBOARD_DB_PASSWORD"`
	Name     string `envconfig:"CREWBOARD_DB_NAME"`
	SSLMode  string `envconfig:"CREWBOARD_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CREWBOARD_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CREWBOARD_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CREWBOARD_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CREWBOARD_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if strings.EqualFold(db.Driver, "sqlite") {
		return fmt.Errorf("sqlite driver requires CREWBOARD_DB_DSN (file path or :memory:)")
	}
	if db.Host == "" || db.User == "" || db.Name == "" {
		return fmt.Errorf("database DSN or host/user/name are required")
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(db.User, db.Password),
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}
	q := u.Query()
	q.Set("sslmode", db.SSLMode)
	u.RawQuery = q.Encode()
	db.DSN = u.String()
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"CREWBOARD_REDIS_URL"`
	Address      string        `envconfig:"CREWBOARD_REDIS_ADDR"`
	Password     string        `envconfig:"CREWBOARD_REDIS_PASSWORD"`
	DB           int           `envconfig:"CREWBOARD_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CREWBOARD_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CREWBOARD_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CREWBOARD_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CREWBOARD_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CREWBOARD_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"CREWBOARD_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CREWBOARD_JWT_ISSUER" default:"crewboard"`
	ExpirationMinutes int    `envconfig:"CREWBOARD_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CREWBOARD_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CREWBOARD_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CREWBOARD_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"CREWBOARD_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CREWBOARD_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName        string        `envconfig:"CREWBOARD_GCS_BUCKET_NAME" required:"true"`
	UploadURLExpiry   time.Duration `envconfig:"CREWBOARD_GCS_UPLOAD_URL_EXPIRY" default:"15m"`
	DownloadURLExpiry time.Duration `envconfig:"CREWBOARD_GCS_DOWNLOAD_URL_EXPIRY" default:"1h"`
	PublicBaseURL     string        `envconfig:"CREWBOARD_GCS_PUBLIC_BASE_URL"`
}

type MediaConfig struct {
	MaxUploadMB          int           `envconfig:"CREWBOARD_MEDIA_MAX_UPLOAD_MB" default:"20"`
	ResolveAttempts      int           `envconfig:"CREWBOARD_MEDIA_RESOLVE_ATTEMPTS" default:"5"`
	ResolveBackoffStep   time.Duration `envconfig:"CREWBOARD_MEDIA_RESOLVE_BACKOFF_STEP" default:"200ms"`
	SessionTTL           time.Duration `envconfig:"CREWBOARD_MEDIA_SESSION_TTL" default:"30m"`
	PendingRetentionDays int           `envconfig:"CREWBOARD_MEDIA_PENDING_RETENTION_DAYS" default:"7"`
}

type GalleryConfig struct {
	StreamLimit       int           `envconfig:"CREWBOARD_GALLERY_STREAM_LIMIT" default:"100"`
	OverlayClearDelay time.Duration `envconfig:"CREWBOARD_GALLERY_OVERLAY_CLEAR_DELAY" default:"300ms"`
	ChangeChannel     string        `envconfig:"CREWBOARD_GALLERY_CHANGE_CHANNEL" default:"cb:gallery:changed"`
}

type PubSubConfig struct {
	MediaTopic                string `envconfig:"CREWBOARD_PUBSUB_MEDIA_TOPIC"`
	MediaSubscription         string `envconfig:"CREWBOARD_PUBSUB_MEDIA_SUBSCRIPTION"`
	MediaDeletionSubscription string `envconfig:"CREWBOARD_PUBSUB_MEDIA_DELETION_SUBSCRIPTION"`
}
