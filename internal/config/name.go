package config

import (
	"path/filepath"
	"regexp"
)

var redundantWords = []string{"js", "yaml", "yml", "devrunner", "runner", "configuration", "config"}

var redundantPatterns = func() []*regexp.Regexp {
	var out []*regexp.Regexp
	for _, w := range redundantWords {
		out = append(out,
			regexp.MustCompile(`^`+w+`[._-]`),
			regexp.MustCompile(`[._-]`+w+`$`),
			regexp.MustCompile(`^`+w+`$`),
		)
	}
	return out
}()

// DisplayName is the short runner name shown in console output and used for
// the instance lock. An explicit name wins; otherwise it is derived from the
// config file name.
func DisplayName(cfg *Config) string {
	if cfg.Name != "" {
		return cfg.Name
	}
	return NameFromPath(cfg.SourcePath)
}

// NameFromPath strips redundant words like "devrunner" or "yaml" from the
// file's basename until nothing more changes, e.g. "api.devrunner.yaml"
// becomes "api". An empty result is "default".
func NameFromPath(path string) string {
	if path == "" {
		return "default"
	}
	result := filepath.Base(path)
	for prev := ""; prev != result; {
		prev = result
		for _, re := range redundantPatterns {
			result = re.ReplaceAllString(result, "")
		}
	}
	if result == "" {
		return "default"
	}
	return result
}
