package config

import "time"

// Config represents the complete devrunner configuration.
type Config struct {
	Name     string         `yaml:"name"`
	DelayMs  int            `yaml:"delay_ms"`
	LockPath string         `yaml:"lock_path"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Worker   WorkerConfig   `yaml:"worker"`
	API      APIConfig      `yaml:"api"`
	History  HistoryConfig  `yaml:"history"`
	Log      LogConfig      `yaml:"log"`

	// SourcePath is the absolute path of the file the config was loaded from.
	SourcePath string `yaml:"-"`
	// Hash is the BLAKE3 digest of the config file contents.
	Hash string `yaml:"-"`
}

// PipelineConfig describes the build pipeline devrunner observes.
type PipelineConfig struct {
	Kind             string        `yaml:"kind"` // command | stream
	Command          []string      `yaml:"command"`
	Dir              string        `yaml:"dir"`
	Artifact         string        `yaml:"artifact"`
	Watch            []string      `yaml:"watch"`
	Ignore           []string      `yaml:"ignore"`
	Extensions       []string      `yaml:"extensions"`
	AggregateTimeout time.Duration `yaml:"aggregate_timeout"`
	WarningPattern   string        `yaml:"warning_pattern"`
}

// WorkerConfig defines how the built artifact is run.
type WorkerConfig struct {
	Args      []string          `yaml:"args"`
	Env       map[string]string `yaml:"env"`
	StopGrace time.Duration     `yaml:"stop_grace"`
}

// APIConfig defines the status API server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Token   string `yaml:"token"`
}

// HistoryConfig enables the SQLite build history. An empty path disables it.
type HistoryConfig struct {
	Path string `yaml:"path"`
	Keep int    `yaml:"keep"` // rows retained; older builds are pruned
}

// LogConfig defines diagnostic logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Pipeline kinds.
const (
	KindCommand = "command"
	KindStream  = "stream"
)

// Delay returns the debounce window between a build completing and the worker
// restart.
func (c *Config) Delay() time.Duration {
	return time.Duration(c.DelayMs) * time.Millisecond
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			Kind:             KindCommand,
			Dir:              ".",
			Watch:            []string{"."},
			Ignore:           []string{"node_modules", "build", "dist", ".git", "vendor"},
			AggregateTimeout: 300 * time.Millisecond,
			WarningPattern:   `(?i)\bwarning\b`,
		},
		Worker: WorkerConfig{
			Env:       make(map[string]string),
			StopGrace: 5 * time.Second,
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8787",
		},
		History: HistoryConfig{
			Keep: 500,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
