package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is looked up when Load is given a directory.
const DefaultFileName = "devrunner.yaml"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, interpolates, defaults and validates a config file. Every
// failure is returned as *Error.
func Load(configPath string) (*Config, error) {
	// Resolve to absolute path for consistent relative path resolution
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, &Error{Path: configPath, Err: fmt.Errorf("failed to resolve config path: %w", err)}
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, &Error{Path: absPath, Err: errors.New("config file not found\nHint: Check the path or run with --config flag")}
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, DefaultFileName)
		if _, err := os.Stat(absPath); err != nil {
			return nil, &Error{Path: absPath, Err: fmt.Errorf("directory provided but %s not found", DefaultFileName)}
		}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, &Error{Path: absPath, Err: fmt.Errorf("failed to read file: %w", err)}
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, withPath(err, absPath)
	}
	cfg.SourcePath = absPath
	cfg.Hash = hashBytes(data)

	resolvePaths(cfg, filepath.Dir(absPath))

	if err := Validate(cfg); err != nil {
		return nil, withPath(err, absPath)
	}
	return cfg, nil
}

// Parse decodes YAML config data on top of Defaults. Unknown keys are
// rejected. Relative paths are left untouched.
func Parse(data []byte) (*Config, error) {
	interpolated := interpolateEnv(string(data))

	cfg := Defaults()
	decoder := yaml.NewDecoder(bytes.NewReader([]byte(interpolated)))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, &Error{Err: fmt.Errorf("failed to parse YAML: %w", err)}
	}
	if cfg.Worker.Env == nil {
		cfg.Worker.Env = make(map[string]string)
	}
	return cfg, nil
}

// resolvePaths makes pipeline paths absolute relative to the config file's
// directory.
func resolvePaths(cfg *Config, baseDir string) {
	cfg.Pipeline.Dir = resolve(baseDir, cfg.Pipeline.Dir)
	if cfg.Pipeline.Artifact != "" {
		cfg.Pipeline.Artifact = resolve(cfg.Pipeline.Dir, cfg.Pipeline.Artifact)
	}
	for i, w := range cfg.Pipeline.Watch {
		cfg.Pipeline.Watch[i] = resolve(cfg.Pipeline.Dir, w)
	}
	if cfg.LockPath != "" {
		cfg.LockPath = resolve(baseDir, cfg.LockPath)
	}
	if cfg.History.Path != "" {
		cfg.History.Path = resolve(baseDir, cfg.History.Path)
	}
}

func resolve(base, p string) string {
	if p == "" {
		return base
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

func withPath(err error, path string) error {
	var cfgErr *Error
	if errors.As(err, &cfgErr) && cfgErr.Path == "" {
		cfgErr.Path = path
		return cfgErr
	}
	return err
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// If not found, leave the placeholder (will fail validation if required)
		return match
	})
}

// unresolvedVar returns the name of the first ${VAR} left in s.
func unresolvedVar(s string) (string, bool) {
	matches := envVarPattern.FindStringSubmatch(s)
	if len(matches) > 1 {
		return matches[1], true
	}
	return "", false
}

// ParseEnvPairs parses KEY=VALUE assignments as given on the command line.
func ParseEnvPairs(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fieldError("--env", "expected KEY=VALUE, got %q", pair)
		}
		out[strings.TrimSpace(key)] = value
	}
	return out, nil
}

// WorkerEnv returns the environment overrides for the worker: worker.env,
// then APP_ENV=development when dev is set, then extra on top.
func (c *Config) WorkerEnv(dev bool, extra map[string]string) map[string]string {
	env := make(map[string]string, len(c.Worker.Env)+len(extra)+1)
	for k, v := range c.Worker.Env {
		env[k] = v
	}
	if dev {
		env["APP_ENV"] = "development"
	}
	for k, v := range extra {
		env[k] = v
	}
	return env
}
