package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (ROOFGENIUS_ prefix), flags, or YAML config files.
type Config struct {
	Addr            string        `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL     string        `usage:"PostgreSQL connection URL (ROOFGENIUS_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	SiteURL         string        `default:"https://myroofgenius.com" usage:"Public site URL for links and checkout redirects" flag:"site-url"`
	APIKeyPepper    string        `usage:"HMAC pepper for API key hashing" flag:"api-key-pepper"`
	OutboundTimeout time.Duration `default:"10s" usage:"Timeout for calls to external providers" flag:"outbound-timeout"`
	Maintenance     bool          `default:"false" usage:"Answer 503 on everything but health probes"`
	Stripe          StripeConfig
	Email           EmailConfig
	ConvertKit      ConvertKitConfig
	OpenAI          OpenAIConfig
	Redis           RedisConfig
	Kafka           KafkaConfig
	Downloads       DownloadsConfig
	RateLimit       RateLimitConfig
	CORS            CORSConfig
	Graceful        GracefulConfig
}

// StripeConfig holds payment provider credentials.
type StripeConfig struct {
	SecretKey        string        `usage:"Stripe secret API key (or STRIPE_SECRET_KEY)"`
	WebhookSecret    string        `usage:"Stripe webhook endpoint secret (or STRIPE_WEBHOOK_SECRET)"`
	WebhookTolerance time.Duration `default:"5m" usage:"Accepted webhook timestamp skew"`
	BaseURL          string        `usage:"Stripe API base URL override"`
}

// EmailConfig controls transactional email.
type EmailConfig struct {
	ResendAPIKey string `usage:"Resend API key (or RESEND_API_KEY)"`
	From         string `default:"RoofGenius <orders@myroofgenius.com>" usage:"Sender address"`
	BaseURL      string `usage:"Resend API base URL override"`
}

// ConvertKitConfig controls mailing list subscriptions.
type ConvertKitConfig struct {
	APIKey  string `usage:"ConvertKit API key (or CONVERTKIT_API_KEY)"`
	FormID  string `default:"64392d9bef" usage:"ConvertKit form id"`
	BaseURL string `usage:"ConvertKit API base URL override"`
}

// OpenAIConfig controls the vision and chat models.
type OpenAIConfig struct {
	APIKey      string        `usage:"OpenAI API key (or OPENAI_API_KEY)"`
	BaseURL     string        `usage:"OpenAI API base URL override"`
	VisionModel string        `default:"gpt-4o" usage:"Model used for roof image analysis"`
	ChatModel   string        `default:"gpt-4-turbo" usage:"Model used for the copilot"`
	Timeout     time.Duration `default:"60s" usage:"Model request timeout"`
}

// RedisConfig enables persistent copilot history when Addr is set.
type RedisConfig struct {
	Addr       string        `usage:"Redis address; empty disables history persistence"`
	Password   string        `usage:"Redis password"`
	DB         int           `default:"0" usage:"Redis database"`
	HistoryMax int64         `default:"50" usage:"Messages kept per copilot session"`
	HistoryTTL time.Duration `default:"168h" usage:"Idle copilot session expiry"`
}

// KafkaConfig routes analytics events to Kafka when Brokers is set.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka brokers; empty stores analytics in PostgreSQL"`
	Topic   string   `default:"roofgenius.analytics" usage:"Analytics topic"`
}

// DownloadsConfig controls purchased file delivery.
type DownloadsConfig struct {
	TTL            time.Duration `default:"720h" usage:"Download token lifetime"`
	StorageBaseURL string        `usage:"Base URL for relative product file paths" flag:"storage-base-url"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins []string `default:"*" usage:"Allowed CORS origins"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "ROOFGENIUS",
		Files:     []string{"config.yaml", "/etc/roofgenius/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults(os.Getenv)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults fills unset fields from the unprefixed variable names
// hosting platforms and provider dashboards hand out.
func (c *Config) applyPlatformDefaults(getenv func(string) string) {
	fallback := func(dst *string, name string) {
		if *dst == "" {
			*dst = getenv(name)
		}
	}
	fallback(&c.DatabaseURL, "DATABASE_URL")
	fallback(&c.Stripe.SecretKey, "STRIPE_SECRET_KEY")
	fallback(&c.Stripe.WebhookSecret, "STRIPE_WEBHOOK_SECRET")
	fallback(&c.Email.ResendAPIKey, "RESEND_API_KEY")
	fallback(&c.ConvertKit.APIKey, "CONVERTKIT_API_KEY")
	fallback(&c.OpenAI.APIKey, "OPENAI_API_KEY")

	if port := getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set ROOFGENIUS_DATABASE_URL or DATABASE_URL")
	}
	if c.SiteURL == "" {
		return errors.New("site URL is required")
	}
	if c.Downloads.TTL <= 0 {
		return errors.New("download TTL must be positive")
	}
	return nil
}
