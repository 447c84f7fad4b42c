package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App         AppConfig
	DB          DBConfig
	Redis       RedisConfig
	Stripe      StripeConfig
	Sendgrid    SendgridConfig
	OpenAI      OpenAIConfig
	Admin       AdminConfig
	Checkout    CheckoutConfig
	Pricing     PricingConfig
	Leaderboard LeaderboardConfig
	Audit       AuditConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"VERDANT_APP_ENV" required:"true"`
	Port         string `envconfig:"VERDANT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"VERDANT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"VERDANT_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"VERDANT_AUTO_MIGRATE" default:"false"`
	UseSQLite    bool   `envconfig:"VERDANT_USE_SQLITE" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"VERDANT_DB_DSN"`
	Driver string `envconfig:"VERDANT_DB_DRIVER" default:"postgres"`

	MaxOpenConns    int           `envconfig:"VERDANT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"VERDANT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"VERDANT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"VERDANT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"VERDANT_REDIS_URL"`
	Address      string        `envconfig:"VERDANT_REDIS_ADDR"`
	Password     string        `envconfig:"VERDANT_REDIS_PASSWORD"`
	DB           int           `envconfig:"VERDANT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"VERDANT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"VERDANT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"VERDANT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"VERDANT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"VERDANT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type StripeConfig struct {
	APIKey        string        `envconfig:"VERDANT_STRIPE_API_KEY"`
	WebhookSecret string        `envconfig:"VERDANT_STRIPE_WEBHOOK_SECRET"`
	Env           string        `envconfig:"VERDANT_STRIPE_ENV" default:"test"`
	Timeout       time.Duration `envconfig:"VERDANT_STRIPE_TIMEOUT" default:"15s"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type SendgridConfig struct {
	APIKey      string        `envconfig:"VERDANT_SENDGRID_API_KEY"`
	DefaultFrom string        `envconfig:"VERDANT_SENDGRID_FROM_EMAIL" default:"receipts@verdant.earth"`
	FromName    string        `envconfig:"VERDANT_SENDGRID_FROM_NAME" default:"Verdant Climate"`
	Timeout     time.Duration `envconfig:"VERDANT_SENDGRID_TIMEOUT" default:"10s"`
	MaxRetries  uint64        `envconfig:"VERDANT_SENDGRID_MAX_RETRIES" default:"3"`
}

type OpenAIConfig struct {
	APIKey       string        `envconfig:"VERDANT_OPENAI_API_KEY"`
	Model        string        `envconfig:"VERDANT_OPENAI_MODEL" default:"gpt-4o-mini"`
	Timeout      time.Duration `envconfig:"VERDANT_OPENAI_TIMEOUT" default:"30s"`
	SystemPrompt string        `envconfig:"VERDANT_OPENAI_SYSTEM_PROMPT"`
}

// AdminConfig carries the shared-secret bearer token guarding admin routes.
// An empty token denies every request rather than disabling the check.
type AdminConfig struct {
	BearerToken string `envconfig:"VERDANT_ADMIN_BEARER_TOKEN"`
}

type CheckoutConfig struct {
	Currency       string `envconfig:"VERDANT_CHECKOUT_CURRENCY" default:"eur"`
	ReturnURL      string `envconfig:"VERDANT_CHECKOUT_RETURN_URL" default:"https://verdant.earth/checkout/return?session_id={CHECKOUT_SESSION_ID}"`
	MinQuantity    int    `envconfig:"VERDANT_CHECKOUT_MIN_QTY" default:"1"`
	MaxQuantity    int    `envconfig:"VERDANT_CHECKOUT_MAX_QTY" default:"100000"`
	MetadataMaxLen int    `envconfig:"VERDANT_CHECKOUT_METADATA_MAX_LEN" default:"490"`
	MetadataMaxKey int    `envconfig:"VERDANT_CHECKOUT_METADATA_MAX_KEYS" default:"50"`
}

func (c CheckoutConfig) validate() error {
	if !strings.Contains(c.ReturnURL, SessionIDPlaceholder) {
		return fmt.Errorf("checkout return url must contain the %s placeholder", SessionIDPlaceholder)
	}
	if c.MinQuantity < 1 || c.MaxQuantity < c.MinQuantity {
		return fmt.Errorf("invalid checkout quantity bounds [%d,%d]", c.MinQuantity, c.MaxQuantity)
	}
	return nil
}

// PricingConfig holds the per-tonne price tables in major currency units.
type PricingConfig struct {
	IndividualStandard float64 `envconfig:"VERDANT_PRICE_INDIVIDUAL_STANDARD" default:"12.5"`
	IndividualPremium  float64 `envconfig:"VERDANT_PRICE_INDIVIDUAL_PREMIUM" default:"20"`
	IndividualElite    float64 `envconfig:"VERDANT_PRICE_INDIVIDUAL_ELITE" default:"32"`
	CompanyStandard    float64 `envconfig:"VERDANT_PRICE_COMPANY_STANDARD" default:"11"`
	CompanyPremium     float64 `envconfig:"VERDANT_PRICE_COMPANY_PREMIUM" default:"18"`
	CompanyElite       float64 `envconfig:"VERDANT_PRICE_COMPANY_ELITE" default:"29"`
	CSRBasicFee        float64 `envconfig:"VERDANT_PRICE_CSR_BASIC_FEE" default:"49"`
	CSRPlusFee         float64 `envconfig:"VERDANT_PRICE_CSR_PLUS_FEE" default:"149"`
	GiftCardFee        float64 `envconfig:"VERDANT_PRICE_GIFT_CARD_FEE" default:"4.9"`
}

type LeaderboardConfig struct {
	MaxPages int           `envconfig:"VERDANT_LEADERBOARD_MAX_PAGES" default:"20"`
	PageSize int           `envconfig:"VERDANT_LEADERBOARD_PAGE_SIZE" default:"100"`
	CacheTTL time.Duration `envconfig:"VERDANT_LEADERBOARD_CACHE_TTL" default:"5m"`
}

type AuditConfig struct {
	OrderLogPath string `envconfig:"VERDANT_AUDIT_ORDER_LOG" default:"data/orders.log"`
}
