package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wehubfusion/Themis/internal/nats"
	"github.com/wehubfusion/Themis/pkg/message"
	"github.com/wehubfusion/Themis/pkg/runner"
)

// Config is the environment driven configuration of the serve command.
type Config struct {
	NATSURL       string        `env:"THEMIS_NATS_URL"        envDefault:"nats://127.0.0.1:4222"`
	NATSName      string        `env:"THEMIS_NATS_NAME"       envDefault:"themis"`
	NATSToken     string        `env:"THEMIS_NATS_TOKEN"`
	NATSUser      string        `env:"THEMIS_NATS_USER"`
	NATSPassword  string        `env:"THEMIS_NATS_PASSWORD"`
	MaxReconnects int           `env:"THEMIS_NATS_MAX_RECONNECTS" envDefault:"10"`
	ReconnectWait time.Duration `env:"THEMIS_NATS_RECONNECT_WAIT" envDefault:"2s"`

	Stream        string        `env:"THEMIS_STREAM"         envDefault:"THEMIS_JOBS"`
	Consumer      string        `env:"THEMIS_CONSUMER"       envDefault:"themis-workers"`
	ResultStream  string        `env:"THEMIS_RESULT_STREAM"  envDefault:"THEMIS_RESULTS"`
	ResultSubject string        `env:"THEMIS_RESULT_SUBJECT" envDefault:"themis.results"`
	MaxDeliver    int           `env:"THEMIS_MAX_DELIVER"    envDefault:"5"`
	BatchSize     int           `env:"THEMIS_BATCH_SIZE"     envDefault:"10"`
	Workers       int           `env:"THEMIS_WORKERS"        envDefault:"4"`
	JobTimeout    time.Duration `env:"THEMIS_JOB_TIMEOUT"    envDefault:"30s"`

	TracingEnabled bool    `env:"THEMIS_TRACING_ENABLED"`
	OTLPEndpoint   string  `env:"THEMIS_OTLP_ENDPOINT"    envDefault:"127.0.0.1:4318"`
	SampleRatio    float64 `env:"THEMIS_TRACE_SAMPLE_RATIO" envDefault:"1.0"`
	Environment    string  `env:"THEMIS_ENVIRONMENT"      envDefault:"development"`

	SentryDSN string `env:"THEMIS_SENTRY_DSN"`
	LogLevel  string `env:"THEMIS_LOG_LEVEL" envDefault:"info"`
}

// LoadConfig reads the configuration from the process environment.
func LoadConfig() (Config, error) {
	return parseConfig(env.Options{})
}

func parseConfig(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		return Config{}, fmt.Errorf("invalid THEMIS_LOG_LEVEL: %w", err)
	}
	if err := cfg.runnerConfig().Validate(); err != nil {
		return Config{}, err
	}
	if cfg.TracingEnabled {
		if err := cfg.tracingConfig().Validate(); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

func (c Config) connectionConfig() *nats.ConnectionConfig {
	cfg := nats.DefaultConnectionConfig(c.NATSURL)
	cfg.Name = c.NATSName
	cfg.Token = c.NATSToken
	cfg.Username = c.NATSUser
	cfg.Password = c.NATSPassword
	cfg.MaxReconnects = c.MaxReconnects
	cfg.ReconnectWait = c.ReconnectWait
	return cfg
}

func (c Config) messageConfig() message.Config {
	cfg := message.DefaultConfig()
	cfg.MaxDeliver = c.MaxDeliver
	cfg.ResultStream = c.ResultStream
	cfg.ResultSubject = c.ResultSubject
	return cfg
}

func (c Config) runnerConfig() runner.Config {
	cfg := runner.DefaultConfig()
	cfg.Stream = c.Stream
	cfg.Consumer = c.Consumer
	cfg.BatchSize = c.BatchSize
	cfg.NumWorkers = c.Workers
	cfg.JobTimeout = c.JobTimeout
	return cfg
}

func (c Config) tracingConfig() runner.TracingConfig {
	cfg := runner.DefaultTracingConfig("themis")
	cfg.ServiceVersion = version
	cfg.Environment = c.Environment
	cfg.OTLPEndpoint = c.OTLPEndpoint
	cfg.SampleRatio = c.SampleRatio
	return cfg
}

// newLogger builds a production zap logger at level.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
