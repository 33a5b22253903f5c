package cfg

type Cfg struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Application configuration
	ProvidersDir      string
	VocabulariesFile  string
	Port              string
	WorkerCount       int
	SchedulerInterval int

	// Ingest configuration
	IngestExpiryMinutes int
	SkipIPTCCodes       bool
	UpdateTTLSeconds    int

	// One-shot mode
	RunProvider string
	RunSync     bool

	// Notifications
	NotifyWebhookURL string

	// Application metadata
	UserAgent string
	Debug     bool
	Version   string
}
