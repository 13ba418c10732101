package config

import "testing"

func TestNameFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/srv/api.devrunner.yaml", "api"},
		{"devrunner.yaml", "default"},
		{"config/devrunner.config.yml", "default"},
		{"worker-config.yaml", "worker"},
		{"devrunner-admin.yaml", "admin"},
		{"my.app.yaml", "my.app"},
		{"", "default"},
	}
	for _, tt := range tests {
		if got := NameFromPath(tt.path); got != tt.want {
			t.Errorf("NameFromPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestDisplayName(t *testing.T) {
	cfg := Defaults()
	cfg.SourcePath = "/srv/api.devrunner.yaml"
	if got := DisplayName(cfg); got != "api" {
		t.Errorf("DisplayName() = %q, want api", got)
	}
	cfg.Name = "custom"
	if got := DisplayName(cfg); got != "custom" {
		t.Errorf("DisplayName() = %q, want custom", got)
	}
}
