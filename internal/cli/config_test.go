package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ormsql.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cmd := NewTranslateCommand(&RootOptions{})
	cfg, err := loadConfig(cmd, "")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.Model)
	assert.Equal(t, 3, cfg.Translator.MaxFetchDepth)
	assert.Equal(t, 16, cfg.Translator.CteNameRetries)
	assert.Equal(t, "sqlite", cfg.Translator.Dialect)
	assert.Empty(t, cfg.Translator.FetchProfiles)
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
model: ./model
db: ./shop.db
log_level: warn
dialect: postgresql
max_fetch_depth: 5
cte_name_retries: 4
fetch_profiles: [with-items]
`)
	cfg, err := loadConfig(NewRunCommand(&RootOptions{}), path)
	require.NoError(t, err)

	assert.Equal(t, "./model", cfg.Model)
	assert.Equal(t, "./shop.db", cfg.Database)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "postgresql", cfg.Translator.Dialect)
	assert.Equal(t, 5, cfg.Translator.MaxFetchDepth)
	assert.Equal(t, 4, cfg.Translator.CteNameRetries)
	assert.Equal(t, []string{"with-items"}, cfg.Translator.FetchProfiles)
}

func TestLoadConfig_Precedence(t *testing.T) {
	path := writeConfig(t, "max_fetch_depth: 5\ncte_name_retries: 4\n")
	t.Setenv("ORMSQL_CTE_NAME_RETRIES", "7")
	t.Setenv("ORMSQL_MAX_FETCH_DEPTH", "6")

	cmd := NewTranslateCommand(&RootOptions{})
	require.NoError(t, cmd.ParseFlags([]string{"--max-fetch-depth=-1", "--profile", "a,b"}))

	cfg, err := loadConfig(cmd, path)
	require.NoError(t, err)
	assert.Equal(t, -1, cfg.Translator.MaxFetchDepth, "flag beats env and file")
	assert.Equal(t, 7, cfg.Translator.CteNameRetries, "env beats file")
	assert.Equal(t, []string{"a", "b"}, cfg.Translator.FetchProfiles)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := loadConfig(NewTranslateCommand(&RootOptions{}), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")

	_, err = loadConfig(NewTranslateCommand(&RootOptions{}), writeConfig(t, "max_fetch_depth: [1\n"))
	assert.ErrorContains(t, err, "read config")

	_, err = loadConfig(NewTranslateCommand(&RootOptions{}), writeConfig(t, "max_fetch_depth: deep\n"))
	assert.ErrorContains(t, err, "decode config")
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		level   string
		verbose bool
		want    []string
		notWant []string
	}{
		{
			name:    "text info",
			format:  "text",
			want:    []string{"INF", "translated", "kind=select"},
			notWant: []string{"planning"},
		},
		{
			name:   "text verbose",
			format: "text",
			verbose: true,
			want:   []string{"DBG", "planning", "INF", "translated"},
		},
		{
			name:   "json",
			format: "json",
			want:   []string{`"level":"info"`, `"message":"translated"`, `"kind":"select"`},
		},
		{
			name:    "warn level",
			format:  "text",
			level:   "WARN",
			notWant: []string{"translated", "planning"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger, err := newLogger(buf, tt.format, tt.level, tt.verbose)
			require.NoError(t, err)

			logger.Debug("planning")
			logger.Info("translated", "kind", "select")

			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
			for _, w := range tt.notWant {
				assert.NotContains(t, buf.String(), w)
			}
		})
	}

	_, err := newLogger(&bytes.Buffer{}, "text", "loud", false)
	assert.ErrorContains(t, err, `unknown log level "loud"`)
}
