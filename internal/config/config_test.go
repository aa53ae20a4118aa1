package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.followtheprocess.codes/apidoc/internal/config"
	"go.followtheprocess.codes/test"
)

func TestDefaults(t *testing.T) {
	cfg, err := config.Read(strings.NewReader(""))
	test.Ok(t, err)

	test.Equal(t, cfg.Timeout, config.DefaultTimeout)
	test.Equal(t, cfg.Server.Addr, config.DefaultAddr)
	test.Equal(t, cfg.Server.Debounce, config.DefaultDebounce)
	test.True(t, cfg.Server.Watch)
	test.False(t, cfg.Mock)
	test.Equal(t, cfg.Seed, 0)
}

func TestRead(t *testing.T) {
	src := `
base_url: https://staging.api.com
mock: true
seed: 42
timeout: 5s
vars:
  token: abc
  page: 2
  user:
    id: 7
payloads:
  login:
    username: bob
    tags: [1, 2]
server:
  addr: ":9000"
  watch: false
  debounce: 1s
`
	cfg, err := config.Read(strings.NewReader(src))
	test.Ok(t, err)

	test.Equal(t, cfg.BaseURL, "https://staging.api.com")
	test.True(t, cfg.Mock)
	test.Equal(t, cfg.Seed, 42)
	test.Equal(t, cfg.Timeout, 5*time.Second)
	test.Equal(t, cfg.Server.Addr, ":9000")
	test.False(t, cfg.Server.Watch)
	test.Equal(t, cfg.Server.Debounce, time.Second)

	test.Equal(t, cfg.Vars["token"], any("abc"))
	test.Equal(t, cfg.Vars["page"], any(2.0))

	user, ok := cfg.Vars["user"].(map[string]any)
	test.True(t, ok, test.Context("nested vars should decode to a map, got %T", cfg.Vars["user"]))
	test.Equal(t, user["id"], any(7.0))

	test.Equal(t, cfg.Payloads["login"]["username"], any("bob"))
	tags, ok := cfg.Payloads["login"]["tags"].([]any)
	test.True(t, ok)
	test.Equal(t, tags[1], any(2.0))
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name string // Name of the test case
		src  string // YAML source
	}{
		{name: "unknown key", src: "nope: true\n"},
		{name: "unknown nested key", src: "server:\n  port: 80\n"},
		{name: "bad duration", src: "timeout: forever\n"},
		{name: "zero timeout", src: "timeout: 0s\n"},
		{name: "negative debounce", src: "server:\n  debounce: -1s\n"},
		{name: "empty addr", src: "server:\n  addr: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Read(strings.NewReader(tt.src))
			test.Err(t, err)
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	document := filepath.Join(dir, "demo.api")

	path := config.Beside(document)
	test.Equal(t, path, filepath.Join(dir, config.FileName))

	cfg, err := config.LoadOptional(path)
	test.Ok(t, err)
	test.Equal(t, cfg.Server.Addr, config.DefaultAddr)

	test.Ok(t, os.WriteFile(path, []byte("mock: true\n"), 0o600))

	cfg, err = config.LoadOptional(path)
	test.Ok(t, err)
	test.True(t, cfg.Mock)

	_, err = config.Load(filepath.Join(dir, "missing.yaml"))
	test.Err(t, err)
}
