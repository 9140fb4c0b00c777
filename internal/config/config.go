package config

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/wb-go/wbf/zlog"
)

// Config holds the main configuration for the application.
// It is loaded once at startup and passed down explicitly.
type Config struct {
	Server   Server   `mapstructure:"server"`
	Storage  Storage  `mapstructure:"storage"`
	Pipeline Pipeline `mapstructure:"pipeline"`
	Database Database `mapstructure:"database"`
	Kafka    Kafka    `mapstructure:"kafka"`
	Redis    Redis    `mapstructure:"redis"`
	Retry    Retry    `mapstructure:"retry"`
}

// Server holds HTTP server-related configuration.
type Server struct {
	HTTPPort     string        `mapstructure:"http_port"`     // port or host:port to listen on
	MaxUploadMB  int64         `mapstructure:"max_upload_mb"` // multipart size limit
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`  // whole request, body included
	WriteTimeout time.Duration `mapstructure:"write_timeout"` // response, including conversion time
}

// Storage selects where variants are written.
type Storage struct {
	Backend string `mapstructure:"backend"`  // "local" or "s3"
	BaseDir string `mapstructure:"base_dir"` // images base directory for the local backend
	S3      S3     `mapstructure:"s3"`
}

// S3 holds configuration for the S3-compatible backend.
type S3 struct {
	Endpoint   string `mapstructure:"endpoint"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	BucketName string `mapstructure:"bucket_name"`
	UseSSL     bool   `mapstructure:"use_ssl"`
}

// Pipeline holds the variant policy shared by every request.
type Pipeline struct {
	PrimaryWidth    int         `mapstructure:"primary_width"`
	PrimaryHeight   int         `mapstructure:"primary_height"`
	Quality         int         `mapstructure:"quality"`          // 0-100
	ThumbnailMode   string      `mapstructure:"thumbnail_mode"`   // "fit" or "exact"
	Background      string      `mapstructure:"background"`       // hex color for alpha flattening
	SerializeWrites bool        `mapstructure:"serialize_writes"` // lock per logical name
	Thumbnails      []Thumbnail `mapstructure:"thumbnails"`
}

// Thumbnail is one fixed-size class written into its own subdirectory.
type Thumbnail struct {
	Dir     string `mapstructure:"dir"`
	Width   int    `mapstructure:"width"`
	Height  int    `mapstructure:"height"`
	Format  string `mapstructure:"format"`
	Quality int    `mapstructure:"quality"` // 0 means pipeline.quality
}

// Database holds database master and slave configuration.
type Database struct {
	Enabled bool           `mapstructure:"enabled"`
	Master  DatabaseNode   `mapstructure:"master"`
	Slaves  []DatabaseNode `mapstructure:"slaves"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DatabaseNode holds connection parameters for a single database node.
type DatabaseNode struct {
	Host    string `mapstructure:"host"`
	Port    string `mapstructure:"port"`
	User    string `mapstructure:"user"`
	Pass    string `mapstructure:"pass"`
	Name    string `mapstructure:"name"`
	SSLMode string `mapstructure:"ssl_mode"`
}

// Kafka holds configuration for conversion events.
type Kafka struct {
	Enabled bool     `mapstructure:"enabled"`
	Topic   string   `mapstructure:"topic"`   // Kafka topic name
	Brokers []string `mapstructure:"brokers"` // List of Kafka broker addresses
}

// Redis holds configuration for the cross-replica write lock.
type Redis struct {
	Enabled   bool          `mapstructure:"enabled"`
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	LockTTL   time.Duration `mapstructure:"lock_ttl"`
	LockRetry time.Duration `mapstructure:"lock_retry"`
}

// Retry defines retry policy configuration.
type Retry struct {
	Attempts int           `mapstructure:"attempts"` // Number of retry attempts
	Delay    time.Duration `mapstructure:"delay"`    // Initial delay between retries
	Backoff  float64       `mapstructure:"backoff"`  // Backoff multiplier for delays
}

// DSN returns the PostgreSQL DSN string for connecting to this database node.
func (n DatabaseNode) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		n.User, n.Pass, n.Host, n.Port, n.Name, n.SSLMode,
	)
}

// Addr returns the listen address. A bare port such as "8080" becomes ":8080".
func (s Server) Addr() string {
	if strings.Contains(s.HTTPPort, ":") {
		return s.HTTPPort
	}
	return ":" + s.HTTPPort
}

var hexColor = regexp.MustCompile(`^#?([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Validate checks the values that the pipeline cannot recover from.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.HTTPPort == "" {
		errs = append(errs, errors.New("server.http_port is required"))
	}

	switch c.Storage.Backend {
	case "local":
		if c.Storage.BaseDir == "" {
			errs = append(errs, errors.New("storage.base_dir is required for the local backend"))
		}
	case "s3":
		if c.Storage.S3.Endpoint == "" || c.Storage.S3.BucketName == "" {
			errs = append(errs, errors.New("storage.s3.endpoint and storage.s3.bucket_name are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q", c.Storage.Backend))
	}

	p := c.Pipeline
	if p.PrimaryWidth <= 0 || p.PrimaryHeight <= 0 {
		errs = append(errs, errors.New("pipeline primary bounds must be positive"))
	}
	if p.Quality < 0 || p.Quality > 100 {
		errs = append(errs, fmt.Errorf("pipeline.quality %d out of range 0-100", p.Quality))
	}
	if p.ThumbnailMode != "fit" && p.ThumbnailMode != "exact" {
		errs = append(errs, fmt.Errorf("unknown pipeline.thumbnail_mode %q", p.ThumbnailMode))
	}
	if !hexColor.MatchString(p.Background) {
		errs = append(errs, fmt.Errorf("pipeline.background %q is not a hex color", p.Background))
	}

	seen := make(map[string]bool)
	for i, t := range p.Thumbnails {
		if t.Dir == "" || strings.ContainsAny(t.Dir, `/\`) || t.Dir == "." || t.Dir == ".." {
			errs = append(errs, fmt.Errorf("pipeline.thumbnails[%d].dir %q must be a single path segment", i, t.Dir))
		}
		if seen[t.Dir] {
			errs = append(errs, fmt.Errorf("pipeline.thumbnails[%d].dir %q is duplicated", i, t.Dir))
		}
		seen[t.Dir] = true
		if t.Width <= 0 || t.Height <= 0 {
			errs = append(errs, fmt.Errorf("pipeline.thumbnails[%d] size must be positive", i))
		}
		switch strings.ToLower(t.Format) {
		case "jpeg", "jpg", "png", "webp":
		default:
			errs = append(errs, fmt.Errorf("pipeline.thumbnails[%d].format %q is not jpeg, png or webp", i, t.Format))
		}
		if t.Quality < 0 || t.Quality > 100 {
			errs = append(errs, fmt.Errorf("pipeline.thumbnails[%d].quality %d out of range 0-100", i, t.Quality))
		}
	}

	if c.Kafka.Enabled && (c.Kafka.Topic == "" || len(c.Kafka.Brokers) == 0) {
		errs = append(errs, errors.New("kafka.topic and kafka.brokers are required when kafka is enabled"))
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when redis is enabled"))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", "8080")
	v.SetDefault("server.max_upload_mb", 32)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.base_dir", "./images")

	v.SetDefault("pipeline.primary_width", 1200)
	v.SetDefault("pipeline.primary_height", 800)
	v.SetDefault("pipeline.quality", 80)
	v.SetDefault("pipeline.thumbnail_mode", "exact")
	v.SetDefault("pipeline.background", "#ffffff")
	v.SetDefault("pipeline.serialize_writes", true)
	v.SetDefault("pipeline.thumbnails", []map[string]any{
		{"dir": "100x100", "width": 100, "height": 100, "format": "webp"},
		{"dir": "300x200", "width": 300, "height": 200, "format": "jpeg"},
	})

	v.SetDefault("redis.lock_ttl", 30*time.Second)
	v.SetDefault("redis.lock_retry", 50*time.Millisecond)

	v.SetDefault("retry.attempts", 3)
	v.SetDefault("retry.delay", 100*time.Millisecond)
	v.SetDefault("retry.backoff", 2.0)
}

// bindEnv binds the environment variables the service has always honored
// plus the credentials that should not live in the config file.
func bindEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"storage.base_dir":      "IMAGES_BASE_DIRECTORY",
		"server.http_port":      "PORT",
		"database.master.host":  "DB_HOST",
		"database.master.port":  "DB_PORT",
		"database.master.user":  "DB_USER",
		"database.master.pass":  "DB_PASSWORD",
		"database.master.name":  "DB_NAME",
		"storage.s3.access_key": "S3_ACCESS_KEY",
		"storage.s3.secret_key": "S3_SECRET_KEY",
		"redis.password":        "REDIS_PASSWORD",
	}

	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind env %s: %w", env, err)
		}
	}

	return nil
}

// Load reads an optional .env file, then the YAML config at path (which may
// be empty or missing), then environment overrides.
func Load(path string) (*Config, error) {
	// A missing .env is normal outside of local development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads the configuration from the specified file path.
// It panics if the configuration cannot be loaded or is invalid.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		zlog.Logger.Panic().Err(err).Msg("failed to load config")
	}

	return cfg
}
