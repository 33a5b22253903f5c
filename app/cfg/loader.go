package cfg

import (
	"cmp"
	"fmt"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Database configuration
	DBHost     string `long:"db-host" env:"DB_HOST" default:"localhost" description:"Database host"`
	DBPort     string `long:"db-port" env:"DB_PORT" default:"5432" description:"Database port"`
	DBUser     string `long:"db-user" env:"DB_USER" default:"ingest_user" description:"Database user"`
	DBPassword string `long:"db-password" env:"DB_PASSWORD" default:"ingest_password" description:"Database password (required)" required:"true"`
	DBName     string `long:"db-name" env:"DB_NAME" default:"newswire" description:"Database name"`
	DBSSLMode  string `long:"db-sslmode" env:"DB_SSLMODE" default:"disable" description:"Database SSL mode"`

	// Application configuration
	ProvidersDir      string `long:"providers-dir" env:"PROVIDERS_DIR" default:"./providers" description:"Directory containing ingest provider configuration files"`
	VocabulariesFile  string `long:"vocabularies-file" env:"VOCABULARIES_FILE" default:"./vocabularies.yml" description:"YAML file with taxonomy vocabularies"`
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"5" description:"Number of background workers for provider updates"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"30" description:"Scheduler interval in seconds"`

	// Ingest configuration
	IngestExpiryMinutes int  `long:"ingest-expiry-minutes" env:"INGEST_EXPIRY_MINUTES" default:"2880" description:"Default ingest item expiry in minutes"`
	SkipIPTCCodes       bool `long:"skip-iptc-codes" env:"INGEST_SKIP_IPTC_CODES" description:"Skip IPTC subject code hierarchy expansion"`
	UpdateTTLSeconds    int  `long:"update-ttl" env:"UPDATE_TTL" default:"1800" description:"Provider update lock TTL in seconds"`

	// One-shot mode
	RunProvider string `long:"provider" description:"Update a single provider once and exit"`
	RunSync     bool   `long:"sync" description:"With --provider: re-ingest the provider's full history"`

	// Notifications
	NotifyWebhookURL string `long:"notify-webhook-url" env:"NOTIFY_WEBHOOK_URL" description:"Webhook URL for change notifications and operator alerts (optional)"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Newswire Ingest/1.0" description:"User agent string for HTTP requests"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	// .env is optional, environment wins when both are set
	_ = godotenv.Load()

	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBHost:              raw.DBHost,
		DBPort:              raw.DBPort,
		DBUser:              raw.DBUser,
		DBPassword:          raw.DBPassword,
		DBName:              raw.DBName,
		DBSSLMode:           raw.DBSSLMode,
		ProvidersDir:        raw.ProvidersDir,
		VocabulariesFile:    raw.VocabulariesFile,
		Port:                raw.Port,
		WorkerCount:         raw.WorkerCount,
		SchedulerInterval:   raw.SchedulerInterval,
		IngestExpiryMinutes: raw.IngestExpiryMinutes,
		SkipIPTCCodes:       raw.SkipIPTCCodes,
		UpdateTTLSeconds:    raw.UpdateTTLSeconds,
		RunProvider:         raw.RunProvider,
		RunSync:             raw.RunSync,
		NotifyWebhookURL:    raw.NotifyWebhookURL,
		UserAgent:           raw.UserAgent,
		Debug:               raw.Debug,
		Version:             GetVersion(),
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

// Set replaces the global configuration; used by tests.
func Set(c *Cfg) {
	globalCfg = c
}
