package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	Redis   RedisConfig
	Storage StorageConfig
	Engine  EngineConfig
	Worker  WorkerConfig
	Upload  UploadConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// StorageConfig selects the artifact/audio blob backend.
// Backend is "local" (disk under Root) or "s3".
type StorageConfig struct {
	Backend string
	Root    string
	S3      S3Config
}

type S3Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
}

// EngineConfig points at the external inference toolchain
type EngineConfig struct {
	PythonPath string
	ScriptsDir string
	StemFormat string
}

// WorkerConfig carries the queue-side processing contract: bounded
// concurrency, bounded retries, backoff bounds, and per-job time limits.
type WorkerConfig struct {
	Concurrency int
	Queue       string
	MaxRetry    int
	TaskTimeout time.Duration
	SoftTimeout time.Duration
	Retention   time.Duration
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

type UploadConfig struct {
	MaxSizeMB int
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("storage.backend", "local")
	viper.SetDefault("storage.root", "./tmp")
	viper.SetDefault("storage.s3.region", "auto")
	viper.SetDefault("engine.python_path", "")
	viper.SetDefault("engine.scripts_dir", "./scripts")
	viper.SetDefault("engine.stem_format", "mp3")
	viper.SetDefault("worker.concurrency", 4)
	viper.SetDefault("worker.queue", "audio")
	viper.SetDefault("worker.max_retry", 3)
	viper.SetDefault("worker.task_timeout", "1h")
	viper.SetDefault("worker.soft_timeout", "55m")
	viper.SetDefault("worker.retention", "24h")
	viper.SetDefault("worker.backoff_base", "10s")
	viper.SetDefault("worker.backoff_max", "10m")
	viper.SetDefault("upload.max_size_mb", 50)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetString("server.port"),
			Env:  viper.GetString("server.env"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Storage: StorageConfig{
			Backend: viper.GetString("storage.backend"),
			Root:    viper.GetString("storage.root"),
			S3: S3Config{
				Endpoint:        viper.GetString("storage.s3.endpoint"),
				Region:          viper.GetString("storage.s3.region"),
				AccessKeyID:     viper.GetString("storage.s3.access_key_id"),
				SecretAccessKey: viper.GetString("storage.s3.secret_access_key"),
				Bucket:          viper.GetString("storage.s3.bucket"),
			},
		},
		Engine: EngineConfig{
			PythonPath: viper.GetString("engine.python_path"),
			ScriptsDir: viper.GetString("engine.scripts_dir"),
			StemFormat: viper.GetString("engine.stem_format"),
		},
		Worker: WorkerConfig{
			Concurrency: viper.GetInt("worker.concurrency"),
			Queue:       viper.GetString("worker.queue"),
			MaxRetry:    viper.GetInt("worker.max_retry"),
			TaskTimeout: viper.GetDuration("worker.task_timeout"),
			SoftTimeout: viper.GetDuration("worker.soft_timeout"),
			Retention:   viper.GetDuration("worker.retention"),
			BackoffBase: viper.GetDuration("worker.backoff_base"),
			BackoffMax:  viper.GetDuration("worker.backoff_max"),
		},
		Upload: UploadConfig{
			MaxSizeMB: viper.GetInt("upload.max_size_mb"),
		},
	}

	return cfg, nil
}
