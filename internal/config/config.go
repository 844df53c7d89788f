package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kozaktomas/photo-cluster/internal/distance"
	"gopkg.in/yaml.v3"
)

//go:embed algorithms.yaml
var algorithmsYAML []byte

type Config struct {
	Database   DatabaseConfig
	Worker     WorkerConfig
	Admission  AdmissionConfig
	Log        LogConfig
	PhotoPrism PhotoPrismConfig
	Distance   distance.Config
}

type DatabaseConfig struct {
	URL                string // PostgreSQL connection URL
	MaxOpenConns       int    // Maximum open connections (default 25)
	MaxIdleConns       int    // Maximum idle connections (default 5)
	SignatureIndexPath string // Path to persist the signature HNSW index (optional, rebuilt on startup if empty)
}

type WorkerConfig struct {
	PollInterval time.Duration // Wait between polls of an empty queue (default 1s)
}

type AdmissionConfig struct {
	MaxDistForNewCluster float64 // Largest distance of an acceptable match (default 0.2)
	SelectionStrategy    string  // first-acceptable (default) or ponderated
	Granularity          string  // members (default) or representative
	CandidateK           int     // Nearest signatures used to narrow the scan, 0 disables
	CandidateIndex       string  // hnsw (default, in memory) or pgvector (queried in the store)
	CentralityMode       string  // atomic (default) or snapshot
}

// PhotoPrismConfig points the ingest-photoprism command at a library
type PhotoPrismConfig struct {
	URL       string
	Username  string
	Password  string
	ThumbSize string // thumbnail fingerprinted per photo (default fit_720)
}

type LogConfig struct {
	Level  string // debug, info (default), warn, error
	Format string // text (default) or json
}

// envInt reads an environment variable and parses it as a non-negative integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float in [0,1].
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 && f <= 1 {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable as a positive Go duration.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// LoadAlgorithms parses the distance engine configuration. The embedded
// algorithms.yaml is used unless path is set.
func LoadAlgorithms(path string) (distance.Config, error) {
	data := algorithmsYAML
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return distance.Config{}, fmt.Errorf("failed to read algorithms file: %w", err)
		}
	}
	var cfg distance.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return distance.Config{}, fmt.Errorf("failed to parse algorithms config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return distance.Config{}, err
	}
	return cfg, nil
}

func Load() (*Config, error) {
	algorithms, err := LoadAlgorithms(os.Getenv("ALGORITHMS_FILE"))
	if err != nil {
		return nil, err
	}

	return &Config{
		Database: DatabaseConfig{
			URL:                os.Getenv("DATABASE_URL"),
			MaxOpenConns:       envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:       envInt("DATABASE_MAX_IDLE_CONNS", 5),
			SignatureIndexPath: os.Getenv("SIGNATURE_INDEX_PATH"),
		},
		Worker: WorkerConfig{
			PollInterval: envDuration("WORKER_POLL_INTERVAL", time.Second),
		},
		Admission: AdmissionConfig{
			MaxDistForNewCluster: envFloat("MAX_DIST_FOR_NEW_CLUSTER", 0.2),
			SelectionStrategy:    envString("SELECTION_STRATEGY", "first-acceptable"),
			Granularity:          envString("COMPARISON_GRANULARITY", "members"),
			CandidateK:           envInt("CANDIDATE_K", 0),
			CandidateIndex:       envString("CANDIDATE_INDEX", "hnsw"),
			CentralityMode:       envString("CENTRALITY_MODE", "atomic"),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "text"),
		},
		PhotoPrism: PhotoPrismConfig{
			URL:       os.Getenv("PHOTOPRISM_URL"),
			Username:  os.Getenv("PHOTOPRISM_USERNAME"),
			Password:  os.Getenv("PHOTOPRISM_PASSWORD"),
			ThumbSize: envString("PHOTOPRISM_THUMB_SIZE", "fit_720"),
		},
		Distance: algorithms,
	}, nil
}
