package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"
)

//go:embed liveness.yaml
var livenessYAML []byte

// Supported database drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Inference InferenceConfig
	AntiSpoof AntiSpoofConfig
	Cache     CacheConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	Secret         string   // expected x-face-service-secret value
	EnforceSecret  bool     // reject requests without the shared secret
	AllowedOrigins []string // CORS whitelist, "*" allows any origin
}

type DatabaseConfig struct {
	Driver       string // mysql (default) or postgres
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 10)
	MaxIdleConns int    // Maximum idle connections (default 2)
}

// MySQLDSN builds a go-sql-driver DSN from the discrete DB_* settings.
func (c *DatabaseConfig) MySQLDSN() string {
	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	mc.User = c.User
	mc.Passwd = c.Password
	mc.DBName = c.Name
	mc.ParseTime = true
	return mc.FormatDSN()
}

type InferenceConfig struct {
	URL             string        // defaults to http://localhost:8000
	ModelName       string        // insightface model pack, defaults to buffalo_l
	MinDetScore     float64       // minimum detector confidence (default 0.5)
	Workers         int           // concurrent inference calls (default 4)
	Timeout         time.Duration // per-call HTTP timeout (default 30s)
	MaxUploadPixels int           // longest edge sent to the sidecar
}

type AntiSpoofConfig struct {
	Enabled        bool
	ModelPath      string
	Threshold      float64
	RealClassIndex int
	Manifest       LivenessManifest
}

// CandidatePaths returns the model paths to try, explicit path first.
func (c *AntiSpoofConfig) CandidatePaths() []string {
	if c.ModelPath != "" {
		return []string{c.ModelPath}
	}
	return c.Manifest.DefaultPaths
}

type CacheConfig struct {
	TTL time.Duration
}

type LogConfig struct {
	Level string
	File  string
}

// LivenessManifest describes how a face crop is turned into the classifier's input tensor.
type LivenessManifest struct {
	Model string `yaml:"model"`
	Input struct {
		Width    int     `yaml:"width"`
		Height   int     `yaml:"height"`
		Channels string  `yaml:"channels"`
		Layout   string  `yaml:"layout"`
		Scale    float64 `yaml:"scale"`
	} `yaml:"input"`
	Crop struct {
		Scale float64 `yaml:"scale"`
	} `yaml:"crop"`
	DefaultPaths []string `yaml:"default_paths"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envNonNegInt is envInt that also accepts zero.
func envNonNegInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

// envBool accepts only "true" (case-insensitive) as true when set.
func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	return strings.EqualFold(strings.TrimSpace(s), "true")
}

// envDuration parses Go durations ("90s") and plain seconds ("90").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// LoadManifest parses the embedded liveness preprocessing manifest.
func LoadManifest() (LivenessManifest, error) {
	var m LivenessManifest
	if err := yaml.Unmarshal(livenessYAML, &m); err != nil {
		return m, fmt.Errorf("parsing embedded liveness.yaml: %w", err)
	}
	return m, nil
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	manifest, err := LoadManifest()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           envString("HOST", "0.0.0.0"),
			Port:           envInt("PORT", 5001),
			Secret:         os.Getenv("FACE_SERVICE_SECRET"),
			EnforceSecret:  envBool("ENFORCE_SECRET", false),
			AllowedOrigins: envList("CORS_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Driver:       strings.ToLower(envString("DB_DRIVER", DriverMySQL)),
			Host:         envString("DB_HOST", "localhost"),
			Port:         envInt("DB_PORT", 3306),
			User:         envString("DB_USER", "root"),
			Password:     os.Getenv("DB_PASS"),
			Name:         envString("DB_NAME", "bfp_sorsogon_attendance"),
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 2),
		},
		Inference: InferenceConfig{
			URL:             os.Getenv("INFERENCE_URL"),
			ModelName:       envString("INSIGHTFACE_MODEL_NAME", "buffalo_l"),
			MinDetScore:     envFloat("MIN_FACE_DET_SCORE", 0.5),
			Workers:         envInt("INFERENCE_WORKERS", 4),
			Timeout:         envDuration("INFERENCE_TIMEOUT", 30*time.Second),
			MaxUploadPixels: envInt("INFERENCE_MAX_IMAGE_SIZE", 1920),
		},
		AntiSpoof: AntiSpoofConfig{
			Enabled:        envBool("ANTISPOOF_ENABLED", true),
			ModelPath:      os.Getenv("ANTISPOOF_MODEL_PATH"),
			Threshold:      envFloat("ANTISPOOF_THRESHOLD", 0.5),
			RealClassIndex: envNonNegInt("ANTISPOOF_REAL_CLASS_INDEX", 1),
			Manifest:       manifest,
		},
		Cache: CacheConfig{
			TTL: envDuration("EMBEDDING_CACHE_TTL", 60*time.Second),
		},
		Log: LogConfig{
			Level: envString("LOG_LEVEL", "info"),
			File:  os.Getenv("LOG_FILE"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges that env parsing alone cannot enforce.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.Driver != DriverMySQL && c.Database.Driver != DriverPostgres {
		errs = append(errs, fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverMySQL, DriverPostgres, c.Database.Driver))
	}
	if c.Database.Driver == DriverPostgres && c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required when DB_DRIVER=postgres"))
	}
	if c.Inference.MinDetScore < 0 || c.Inference.MinDetScore > 1 {
		errs = append(errs, fmt.Errorf("MIN_FACE_DET_SCORE must be within [0, 1], got %v", c.Inference.MinDetScore))
	}
	if c.AntiSpoof.Threshold < 0 || c.AntiSpoof.Threshold > 1 {
		errs = append(errs, fmt.Errorf("ANTISPOOF_THRESHOLD must be within [0, 1], got %v", c.AntiSpoof.Threshold))
	}
	if c.AntiSpoof.RealClassIndex < 0 {
		errs = append(errs, fmt.Errorf("ANTISPOOF_REAL_CLASS_INDEX must be >= 0, got %d", c.AntiSpoof.RealClassIndex))
	}
	m := c.AntiSpoof.Manifest
	if m.Input.Width <= 0 || m.Input.Height <= 0 || m.Crop.Scale <= 0 {
		errs = append(errs, errors.New("liveness manifest has invalid input size or crop scale"))
	}
	return errors.Join(errs...)
}
