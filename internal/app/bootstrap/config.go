package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/viralforge/porter-dispatch/internal/domain"
)

const (
	OTPStoreRedis  = "redis"
	OTPStoreMemory = "memory"

	GatewayRazorpay = "razorpay"
	GatewaySandbox  = "sandbox"
)

// Config is the resolved runtime configuration for the dispatch service.
type Config struct {
	ServiceName    string
	ServiceVersion string

	HTTPPort int
	GRPCPort int

	DatabaseURL string
	RedisURL    string
	MaxDBConns  int32

	OTPStore         string
	OTPLength        int
	OTPTTL           time.Duration
	OTPSweepInterval time.Duration

	JWTIssuer         string
	JWTKeyID          string
	JWTPrivateKeyPEM  string
	JWTPublicKeyPEM   string
	AllowEphemeralJWT bool
	TokenTTL          time.Duration
	BcryptCost        int

	FailedThreshold int
	LockoutDuration time.Duration

	GatewayMode      string
	GatewayBaseURL   string
	GatewayKeyID     string
	GatewayKeySecret string
	GatewayTimeout   time.Duration
	Currency         string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	NotifyQueueSize int
	NotifyWorkers   int

	BroadcastChannelPrefix string

	KafkaBrokers      []string
	KafkaDefaultTopic string
	KafkaTopics       map[string]string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxClaimTTL     time.Duration
	OutboxMaxRetries   int

	OTELEndpoint    string
	OTELSampleRatio float64
	ExposeMetrics   bool

	SeedAdminUsername string
	SeedAdminEmail    string
	SeedAdminPassword string

	ScheduleLead time.Duration
	ListLimit    int
}

// configFile mirrors configs/default.yaml. Secrets are env-only.
type configFile struct {
	Service struct {
		Name     string `yaml:"name"`
		Version  string `yaml:"version"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL string `yaml:"postgres_url"`
		RedisURL    string `yaml:"redis_url"`
	} `yaml:"dependencies"`
	OTP struct {
		Store      string `yaml:"store"`
		Length     int    `yaml:"length"`
		TTLSeconds int    `yaml:"ttl_seconds"`
	} `yaml:"otp"`
	Gateway struct {
		Mode           string `yaml:"mode"`
		BaseURL        string `yaml:"base_url"`
		KeyID          string `yaml:"key_id"`
		Currency       string `yaml:"currency"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"gateway"`
	Notifications struct {
		SMTPHost  string `yaml:"smtp_host"`
		SMTPPort  int    `yaml:"smtp_port"`
		From      string `yaml:"from"`
		QueueSize int    `yaml:"queue_size"`
		Workers   int    `yaml:"workers"`
	} `yaml:"notifications"`
	Broadcast struct {
		ChannelPrefix string `yaml:"channel_prefix"`
	} `yaml:"broadcast"`
	Kafka struct {
		Brokers      []string          `yaml:"brokers"`
		DefaultTopic string            `yaml:"default_topic"`
		Topics       map[string]string `yaml:"topics"`
	} `yaml:"kafka"`
	Observability struct {
		OTELEndpoint  string  `yaml:"otel_endpoint"`
		SampleRatio   float64 `yaml:"sample_ratio"`
		ExposeMetrics *bool   `yaml:"expose_metrics"`
	} `yaml:"observability"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceName:            "porter-dispatch",
		ServiceVersion:         "dev",
		HTTPPort:               8080,
		GRPCPort:               9090,
		MaxDBConns:             20,
		OTPStore:               OTPStoreRedis,
		OTPLength:              6,
		OTPTTL:                 5 * time.Minute,
		OTPSweepInterval:       time.Minute,
		JWTIssuer:              "porter-dispatch",
		JWTKeyID:               "dispatch-key-1",
		AllowEphemeralJWT:      true,
		TokenTTL:               24 * time.Hour,
		BcryptCost:             12,
		FailedThreshold:        5,
		LockoutDuration:        15 * time.Minute,
		GatewayMode:            GatewaySandbox,
		GatewayTimeout:         8 * time.Second,
		Currency:               "INR",
		SMTPPort:               587,
		NotifyQueueSize:        256,
		NotifyWorkers:          2,
		BroadcastChannelPrefix: "dispatch:",
		KafkaDefaultTopic:      "dispatch.events",
		OutboxPollInterval:     2 * time.Second,
		OutboxBatchSize:        100,
		OutboxClaimTTL:         30 * time.Second,
		OutboxMaxRetries:       5,
		OTELSampleRatio:        1,
		ExposeMetrics:          true,
		ScheduleLead:           domain.DefaultScheduleLead,
		ListLimit:              100,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		applyFile(&cfg, f)
	}

	cfg.ServiceName = envOrDefault("SERVICE_NAME", cfg.ServiceName)
	cfg.ServiceVersion = envOrDefault("SERVICE_VERSION", cfg.ServiceVersion)
	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))

	cfg.OTPStore = strings.ToLower(strings.TrimSpace(envOrDefault("OTP_STORE", cfg.OTPStore)))
	cfg.OTPLength = envInt("OTP_LENGTH", cfg.OTPLength)
	cfg.OTPTTL = time.Duration(envInt("OTP_TTL_SECONDS", int(cfg.OTPTTL.Seconds()))) * time.Second
	cfg.OTPSweepInterval = time.Duration(envInt("OTP_SWEEP_SECONDS", int(cfg.OTPSweepInterval.Seconds()))) * time.Second

	cfg.JWTIssuer = envOrDefault("JWT_ISSUER", cfg.JWTIssuer)
	cfg.JWTKeyID = envOrDefault("JWT_KEY_ID", cfg.JWTKeyID)
	cfg.JWTPrivateKeyPEM = envOrDefault("JWT_PRIVATE_KEY_PEM", cfg.JWTPrivateKeyPEM)
	cfg.JWTPublicKeyPEM = envOrDefault("JWT_PUBLIC_KEY_PEM", cfg.JWTPublicKeyPEM)
	cfg.AllowEphemeralJWT = envBool("JWT_ALLOW_EPHEMERAL", cfg.AllowEphemeralJWT)
	cfg.TokenTTL = time.Duration(envInt("TOKEN_EXPIRY_HOURS", int(cfg.TokenTTL.Hours()))) * time.Hour
	cfg.BcryptCost = envInt("BCRYPT_ROUNDS", cfg.BcryptCost)

	cfg.FailedThreshold = envInt("FAILED_LOGIN_THRESHOLD", cfg.FailedThreshold)
	cfg.LockoutDuration = time.Duration(envInt("ACCOUNT_LOCKOUT_MINUTES", int(cfg.LockoutDuration.Minutes()))) * time.Minute

	cfg.GatewayMode = strings.ToLower(strings.TrimSpace(envOrDefault("GATEWAY_MODE", cfg.GatewayMode)))
	cfg.GatewayBaseURL = envOrDefault("GATEWAY_BASE_URL", cfg.GatewayBaseURL)
	cfg.GatewayKeyID = envOrDefault("GATEWAY_KEY_ID", cfg.GatewayKeyID)
	cfg.GatewayKeySecret = envOrDefault("GATEWAY_KEY_SECRET", cfg.GatewayKeySecret)
	cfg.GatewayTimeout = time.Duration(envInt("GATEWAY_TIMEOUT_SECONDS", int(cfg.GatewayTimeout.Seconds()))) * time.Second
	cfg.Currency = strings.ToUpper(envOrDefault("PAYMENT_CURRENCY", cfg.Currency))

	cfg.SMTPHost = envOrDefault("SMTP_HOST", cfg.SMTPHost)
	cfg.SMTPPort = envInt("SMTP_PORT", cfg.SMTPPort)
	cfg.SMTPUsername = envOrDefault("SMTP_USERNAME", cfg.SMTPUsername)
	cfg.SMTPPassword = envOrDefault("SMTP_PASSWORD", cfg.SMTPPassword)
	cfg.SMTPFrom = envOrDefault("SMTP_FROM", cfg.SMTPFrom)
	cfg.NotifyQueueSize = envInt("NOTIFY_QUEUE_SIZE", cfg.NotifyQueueSize)
	cfg.NotifyWorkers = envInt("NOTIFY_WORKERS", cfg.NotifyWorkers)

	cfg.BroadcastChannelPrefix = envOrDefault("BROADCAST_CHANNEL_PREFIX", cfg.BroadcastChannelPrefix)

	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaDefaultTopic = envOrDefault("KAFKA_DEFAULT_TOPIC", cfg.KafkaDefaultTopic)
	cfg.KafkaTopics = envMap("KAFKA_TOPIC_MAP", cfg.KafkaTopics)

	cfg.OutboxPollInterval = time.Duration(envInt("OUTBOX_POLL_SECONDS", int(cfg.OutboxPollInterval.Seconds()))) * time.Second
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxClaimTTL = time.Duration(envInt("OUTBOX_CLAIM_TTL_SECONDS", int(cfg.OutboxClaimTTL.Seconds()))) * time.Second
	cfg.OutboxMaxRetries = envInt("OUTBOX_MAX_RETRIES", cfg.OutboxMaxRetries)

	cfg.OTELEndpoint = envOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTELEndpoint)
	cfg.OTELSampleRatio = envFloat("OTEL_SAMPLE_RATIO", cfg.OTELSampleRatio)
	cfg.ExposeMetrics = envBool("METRICS_ENABLED", cfg.ExposeMetrics)

	cfg.SeedAdminUsername = envOrDefault("SEED_ADMIN_USERNAME", cfg.SeedAdminUsername)
	cfg.SeedAdminEmail = envOrDefault("SEED_ADMIN_EMAIL", cfg.SeedAdminEmail)
	cfg.SeedAdminPassword = envOrDefault("SEED_ADMIN_PASSWORD", cfg.SeedAdminPassword)

	cfg.ScheduleLead = time.Duration(envInt("SCHEDULE_LEAD_MINUTES", int(cfg.ScheduleLead.Minutes()))) * time.Minute
	cfg.ListLimit = envInt("LIST_LIMIT", cfg.ListLimit)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, f configFile) {
	if f.Service.Name != "" {
		cfg.ServiceName = f.Service.Name
	}
	if f.Service.Version != "" {
		cfg.ServiceVersion = f.Service.Version
	}
	if f.Service.HTTPPort > 0 {
		cfg.HTTPPort = f.Service.HTTPPort
	}
	if f.Service.GRPCPort > 0 {
		cfg.GRPCPort = f.Service.GRPCPort
	}
	if f.Dependencies.PostgresURL != "" {
		cfg.DatabaseURL = f.Dependencies.PostgresURL
	}
	if f.Dependencies.RedisURL != "" {
		cfg.RedisURL = f.Dependencies.RedisURL
	}
	if f.OTP.Store != "" {
		cfg.OTPStore = f.OTP.Store
	}
	if f.OTP.Length > 0 {
		cfg.OTPLength = f.OTP.Length
	}
	if f.OTP.TTLSeconds > 0 {
		cfg.OTPTTL = time.Duration(f.OTP.TTLSeconds) * time.Second
	}
	if f.Gateway.Mode != "" {
		cfg.GatewayMode = f.Gateway.Mode
	}
	if f.Gateway.BaseURL != "" {
		cfg.GatewayBaseURL = f.Gateway.BaseURL
	}
	if f.Gateway.KeyID != "" {
		cfg.GatewayKeyID = f.Gateway.KeyID
	}
	if f.Gateway.Currency != "" {
		cfg.Currency = f.Gateway.Currency
	}
	if f.Gateway.TimeoutSeconds > 0 {
		cfg.GatewayTimeout = time.Duration(f.Gateway.TimeoutSeconds) * time.Second
	}
	if f.Notifications.SMTPHost != "" {
		cfg.SMTPHost = f.Notifications.SMTPHost
	}
	if f.Notifications.SMTPPort > 0 {
		cfg.SMTPPort = f.Notifications.SMTPPort
	}
	if f.Notifications.From != "" {
		cfg.SMTPFrom = f.Notifications.From
	}
	if f.Notifications.QueueSize > 0 {
		cfg.NotifyQueueSize = f.Notifications.QueueSize
	}
	if f.Notifications.Workers > 0 {
		cfg.NotifyWorkers = f.Notifications.Workers
	}
	if f.Broadcast.ChannelPrefix != "" {
		cfg.BroadcastChannelPrefix = f.Broadcast.ChannelPrefix
	}
	if len(f.Kafka.Brokers) > 0 {
		cfg.KafkaBrokers = f.Kafka.Brokers
	}
	if f.Kafka.DefaultTopic != "" {
		cfg.KafkaDefaultTopic = f.Kafka.DefaultTopic
	}
	if len(f.Kafka.Topics) > 0 {
		cfg.KafkaTopics = f.Kafka.Topics
	}
	if f.Observability.OTELEndpoint != "" {
		cfg.OTELEndpoint = f.Observability.OTELEndpoint
	}
	if f.Observability.SampleRatio > 0 {
		cfg.OTELSampleRatio = f.Observability.SampleRatio
	}
	if f.Observability.ExposeMetrics != nil {
		cfg.ExposeMetrics = *f.Observability.ExposeMetrics
	}
}

func (c Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("missing REDIS_URL")
	}
	switch c.OTPStore {
	case OTPStoreRedis, OTPStoreMemory:
	default:
		return fmt.Errorf("unsupported OTP_STORE %q", c.OTPStore)
	}
	switch c.GatewayMode {
	case GatewaySandbox:
	case GatewayRazorpay:
		if c.GatewayKeyID == "" || c.GatewayKeySecret == "" {
			return fmt.Errorf("missing GATEWAY_KEY_ID or GATEWAY_KEY_SECRET")
		}
	default:
		return fmt.Errorf("unsupported GATEWAY_MODE %q", c.GatewayMode)
	}
	if (c.JWTPrivateKeyPEM == "" || c.JWTPublicKeyPEM == "") && !c.AllowEphemeralJWT {
		return fmt.Errorf("missing JWT_PRIVATE_KEY_PEM or JWT_PUBLIC_KEY_PEM")
	}
	return nil
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envFloat(name string, fallback float64) float64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return fallback
	}
}

// envCSV parses comma-separated env vars and drops empty segments.
func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		parts = append(parts, trimmed)
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}

// envMap parses "event=topic,event=topic" pairs.
func envMap(name string, fallback map[string]string) map[string]string {
	pairs := envCSV(name, nil)
	if len(pairs) == 0 {
		return fallback
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if !ok || key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
