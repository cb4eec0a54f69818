// Package config loads the worker's environment-driven configuration
// once at process start into an immutable record threaded through the
// other components, following the teacher's caarlos0/env-based pattern.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(NewConfig),
)

// Config holds the worker's configuration: the job-store/heartbeat
// tunables and reindex parameters of spec §6, plus the ambient-stack
// additions of SPEC_FULL.md §6 (embeddings, optional artifact backup,
// optional HTTP edge).
type Config struct {
	Environment string `env:"GO_ENV" envDefault:"local"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	Database   DatabaseConfig
	Worker     WorkerConfig
	Reindex    ReindexConfig
	Embeddings EmbeddingsConfig
	Storage    StorageConfig

	// HTTPPort, when non-zero, exposes the job submission/status edge
	// (SPEC_FULL.md §6, WORKER_HTTP_PORT). Zero disables it.
	HTTPPort int `env:"WORKER_HTTP_PORT" envDefault:"0"`
}

// DatabaseConfig holds the two database URLs named in spec §6: the
// worker claims and updates jobs against WorkerURL; APIURL is reserved
// for the HTTP edge, which may run against a different connection pool
// (e.g. a read replica) than the worker loop.
type DatabaseConfig struct {
	WorkerURL string `env:"WORKER_DATABASE_URL"`
	APIURL    string `env:"API_DATABASE_URL"`

	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	MaxIdleTime  time.Duration `env:"DB_MAX_IDLE_TIME" envDefault:"5m"`
	QueryDebug   bool          `env:"DB_QUERY_DEBUG" envDefault:"false"`
}

// DSN returns the worker's Postgres connection string.
func (d *DatabaseConfig) DSN() string {
	return d.WorkerURL
}

// WorkerConfig holds the job-loop and heartbeat-loop tunables of spec §6.
type WorkerConfig struct {
	ID               string  `env:"WORKER_ID" envDefault:"worker-1"`
	HeartbeatSeconds int     `env:"WORKER_HEARTBEAT_SECONDS" envDefault:"30"`
	PollSeconds      int     `env:"WORKER_POLL_SECONDS" envDefault:"5"`
	MaxAttempts      int     `env:"JOB_MAX_ATTEMPTS" envDefault:"3"`
	DBRetryBaseSecs  float64 `env:"WORKER_DB_RETRY_BASE_SECONDS" envDefault:"1"`
	DBRetryMaxSecs   float64 `env:"WORKER_DB_RETRY_MAX_SECONDS" envDefault:"30"`

	// RunnerBinaryPath is the subprocess executed for each claimed
	// rag_reindex job (spec §4.D/§9's subprocess-isolated execution
	// design note).
	RunnerBinaryPath string `env:"RAG_REINDEX_RUNNER_PATH" envDefault:"./reindex-runner"`
	RunnerWorkDir    string `env:"RAG_REINDEX_RUNNER_WORKDIR" envDefault:""`
}

// PollInterval returns PollSeconds as a time.Duration.
func (w *WorkerConfig) PollInterval() time.Duration {
	return time.Duration(w.PollSeconds) * time.Second
}

// HeartbeatInterval returns HeartbeatSeconds as a time.Duration.
func (w *WorkerConfig) HeartbeatInterval() time.Duration {
	return time.Duration(w.HeartbeatSeconds) * time.Second
}

// RetryBaseDelay returns DBRetryBaseSecs as a time.Duration.
func (w *WorkerConfig) RetryBaseDelay() time.Duration {
	return time.Duration(w.DBRetryBaseSecs * float64(time.Second))
}

// RetryMaxDelay returns DBRetryMaxSecs as a time.Duration.
func (w *WorkerConfig) RetryMaxDelay() time.Duration {
	return time.Duration(w.DBRetryMaxSecs * float64(time.Second))
}

// ReindexConfig holds the reindex runner's input parameters (spec §6).
type ReindexConfig struct {
	SourceDir    string `env:"RAG_SOURCE_DIR"`
	DBPath       string `env:"RAG_DB_PATH"`
	ChunkSize    int    `env:"RAG_CHUNK_SIZE" envDefault:"500"`
	ChunkOverlap int    `env:"RAG_CHUNK_OVERLAP" envDefault:"50"`
}

// EmbeddingsConfig selects the embeddings client (SPEC_FULL.md §6).
// GoogleAPIKey unset means the deterministic local fallback is used
// instead of the real genai client.
type EmbeddingsConfig struct {
	Model        string `env:"RAG_EMBEDDING_MODEL" envDefault:"text-embedding-004"`
	Dimension    int    `env:"RAG_EMBEDDING_DIM" envDefault:"768"`
	GoogleAPIKey string `env:"GOOGLE_API_KEY" envDefault:""`
}

// StorageConfig holds the optional S3-compatible artifact backup
// settings (SPEC_FULL.md §6). Bucket unset disables the feature.
type StorageConfig struct {
	Endpoint  string `env:"STORAGE_ENDPOINT" envDefault:""`
	AccessKey string `env:"STORAGE_ACCESS_KEY" envDefault:""`
	SecretKey string `env:"STORAGE_SECRET_KEY" envDefault:""`
	Region    string `env:"STORAGE_REGION" envDefault:"us-east-1"`
	Bucket    string `env:"RAG_ARTIFACT_BACKUP_BUCKET" envDefault:""`
}

// Documented floors for values spec.md §6 bounds explicitly. env.Parse
// only fills envDefault when a var is unset entirely, so a positive but
// below-floor override (e.g. RAG_CHUNK_SIZE=10) would otherwise pass
// straight through; clampFloors enforces the floor the same way the
// original worker's _get_retry_base_seconds/_get_retry_max_seconds/
// _get_heartbeat_seconds helpers do.
const (
	minHeartbeatSeconds = 1
	minRetryBaseSecs    = 0.1
	minRetryMaxSecs     = 0.5
	minChunkSize        = 100
)

// clampFloors enforces the documented lower bounds on env-overridable
// values, clamping rather than rejecting, per original_source's
// max(floor, value) pattern.
func clampFloors(cfg *Config) {
	if cfg.Worker.HeartbeatSeconds < minHeartbeatSeconds {
		cfg.Worker.HeartbeatSeconds = minHeartbeatSeconds
	}
	if cfg.Worker.DBRetryBaseSecs < minRetryBaseSecs {
		cfg.Worker.DBRetryBaseSecs = minRetryBaseSecs
	}
	if cfg.Worker.DBRetryMaxSecs < minRetryMaxSecs {
		cfg.Worker.DBRetryMaxSecs = minRetryMaxSecs
	}
	if cfg.Reindex.ChunkSize < minChunkSize {
		cfg.Reindex.ChunkSize = minChunkSize
	}
}

// NewConfig loads configuration from environment variables.
func NewConfig(log *slog.Logger) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	clampFloors(cfg)

	log.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.String("worker_id", cfg.Worker.ID),
		slog.Int("poll_seconds", cfg.Worker.PollSeconds),
		slog.Int("heartbeat_seconds", cfg.Worker.HeartbeatSeconds),
	)

	return cfg, nil
}
