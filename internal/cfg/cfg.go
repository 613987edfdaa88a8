package cfg

import (
	"errors"
	"flag"
	"fmt"
	"math"
)

// Config holds the sift server settings. Fields bind to flags in
// RegisterFlags and are filled from SIFT_* environment variables by main.
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string

	Threshold     float64
	LanguageCode  string
	Workers       int
	ArchiveBucket string
	HighQueue     string
	NormalQueue   string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	MinioRegion    string

	Queue QueueConfig

	ClaudeAPIKey         string
	ClaudeModel          string
	ClaudeTimeoutSeconds int
	ClaudeMaxRetries     int

	DatabaseURL     string
	SlackWebhookURL string
}

// QueueConfig is the Redis connection shared by the server and the monitor.
type QueueConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	MaxLen        int64
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on API requests (empty = no auth)")

	fs.Float64Var(&c.Threshold, "threshold", 0.5, "negative score above which a message is HIGH priority, exclusive (0..1)")
	fs.StringVar(&c.LanguageCode, "language-code", "en", "language tag passed to the classifier")
	fs.IntVar(&c.Workers, "workers", 4, "messages of one notification processed concurrently (1..64)")
	fs.StringVar(&c.ArchiveBucket, "archive-bucket", "", "bucket receiving archived records")
	fs.StringVar(&c.HighQueue, "high-queue", "", "destination stream for HIGH priority messages")
	fs.StringVar(&c.NormalQueue, "normal-queue", "", "destination stream for NORMAL priority messages")

	fs.StringVar(&c.MinioEndpoint, "minio-endpoint", "", "S3-compatible endpoint host:port (empty = in-memory blob store)")
	fs.StringVar(&c.MinioAccessKey, "minio-access-key", "", "S3 access key")
	fs.StringVar(&c.MinioSecretKey, "minio-secret-key", "", "S3 secret key")
	fs.BoolVar(&c.MinioUseSSL, "minio-use-ssl", true, "use TLS for the S3 endpoint")
	fs.StringVar(&c.MinioRegion, "minio-region", "", "S3 region")

	c.Queue.RegisterFlags(fs)

	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for the Claude sentiment classifier")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-haiku-4-5-20251001", "Claude model used for classification")
	fs.IntVar(&c.ClaudeTimeoutSeconds, "claude-timeout-seconds", 30, "per-call classifier timeout in seconds (1..300)")
	fs.IntVar(&c.ClaudeMaxRetries, "claude-max-retries", 2, "SDK retries per classifier call (0..10)")

	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory outcome store)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for HIGH priority notifications")
}

// RegisterFlags binds the Redis settings.
func (q *QueueConfig) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&q.RedisAddr, "redis-addr", "localhost:6379", "Redis address host:port")
	fs.StringVar(&q.RedisPassword, "redis-password", "", "Redis password")
	fs.IntVar(&q.RedisDB, "redis-db", 0, "Redis database number")
	fs.Int64Var(&q.MaxLen, "queue-max-len", 0, "cap on entries per destination stream (0 = unbounded)")
}

// Validate checks the Redis settings.
func (q *QueueConfig) Validate() error {
	var errs []error
	if q.RedisAddr == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required"))
	}
	if q.RedisDB < 0 {
		errs = append(errs, fmt.Errorf("invalid REDIS_DB %d (must be >= 0)", q.RedisDB))
	}
	if q.MaxLen < 0 {
		errs = append(errs, fmt.Errorf("invalid QUEUE_MAX_LEN %d (must be >= 0)", q.MaxLen))
	}
	return errors.Join(errs...)
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// Triage policy
	if math.IsNaN(c.Threshold) || c.Threshold <= 0 || c.Threshold >= 1 {
		errs = append(errs, fmt.Errorf("invalid THRESHOLD %v (must be in (0,1))", c.Threshold))
	}
	if c.Workers < 1 || c.Workers > 64 {
		errs = append(errs, fmt.Errorf("invalid WORKERS %d (must be 1..64)", c.Workers))
	}
	if c.ArchiveBucket == "" {
		errs = append(errs, errors.New("ARCHIVE_BUCKET is required"))
	}
	if c.HighQueue == "" {
		errs = append(errs, errors.New("HIGH_QUEUE is required"))
	}
	if c.NormalQueue == "" {
		errs = append(errs, errors.New("NORMAL_QUEUE is required"))
	}
	if c.HighQueue != "" && c.HighQueue == c.NormalQueue {
		errs = append(errs, fmt.Errorf("HIGH_QUEUE and NORMAL_QUEUE must differ (both %q)", c.HighQueue))
	}

	// Blob store credentials only matter when an endpoint is set
	if c.MinioEndpoint != "" && (c.MinioAccessKey == "" || c.MinioSecretKey == "") {
		errs = append(errs, errors.New("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required with MINIO_ENDPOINT"))
	}

	if err := c.Queue.Validate(); err != nil {
		errs = append(errs, err)
	}

	// Classifier
	if c.ClaudeAPIKey == "" {
		errs = append(errs, errors.New("CLAUDE_API_KEY is required"))
	}
	if c.ClaudeModel == "" {
		errs = append(errs, errors.New("CLAUDE_MODEL is required"))
	}
	if c.ClaudeTimeoutSeconds <= 0 || c.ClaudeTimeoutSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid CLAUDE_TIMEOUT_SECONDS %d (must be 1..300)", c.ClaudeTimeoutSeconds))
	}
	if c.ClaudeMaxRetries < 0 || c.ClaudeMaxRetries > 10 {
		errs = append(errs, fmt.Errorf("invalid CLAUDE_MAX_RETRIES %d (must be 0..10)", c.ClaudeMaxRetries))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// MonitorConfig holds the settings of the read-only queue monitor.
type MonitorConfig struct {
	Queue       QueueConfig
	HighQueue   string
	NormalQueue string
}

// RegisterFlags binds MonitorConfig fields to the given FlagSet. Flag names
// match Config so both binaries read the same SIFT_* environment.
func (c *MonitorConfig) RegisterFlags(fs *flag.FlagSet) {
	c.Queue.RegisterFlags(fs)
	fs.StringVar(&c.HighQueue, "high-queue", "", "destination stream for HIGH priority messages")
	fs.StringVar(&c.NormalQueue, "normal-queue", "", "destination stream for NORMAL priority messages")
}

// Validate checks the monitor settings.
func (c *MonitorConfig) Validate() error {
	var errs []error
	if err := c.Queue.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.HighQueue == "" {
		errs = append(errs, errors.New("HIGH_QUEUE is required"))
	}
	if c.NormalQueue == "" {
		errs = append(errs, errors.New("NORMAL_QUEUE is required"))
	}
	return errors.Join(errs...)
}
