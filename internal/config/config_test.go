package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olehluchkiv/enhancer/internal/analyzer"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, analyzer.DefaultConventions(), cfg.AnalyzerConventions())
	assert.Equal(t, "propertyChanged", cfg.InstrumentHooks().ChangeHook)
	assert.True(t, cfg.TagInterface)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "enhancer.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
outputDir: out/classes
workers: 2
tagInterface: false
conventions:
  baseType: com.example.BaseEntity
logging:
  level: debug
`), 0o644))

	t.Setenv("ENHANCER_WORKERS", "8")
	t.Setenv("ENHANCER_LOGGING_FORMAT", "text")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("output", "", "")
	flags.String("ledger", "", "")
	require.NoError(t, flags.Parse([]string{"--ledger", "state/ledger.db"}))

	cfg, err := Load(file, flags)
	require.NoError(t, err)
	assert.Equal(t, "out/classes", cfg.OutputDir, "unset flag does not override file")
	assert.Equal(t, 8, cfg.Workers, "env overrides file")
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "state/ledger.db", cfg.Ledger)
	assert.False(t, cfg.TagInterface)
	assert.Equal(t, "com.example.BaseEntity", cfg.AnalyzerConventions().BaseType)
	assert.Equal(t, "com.haulmont.cuba.core.sys.CubaEnhanced", cfg.Conventions.EnhancedMarker)
	require.NoError(t, cfg.Validate())
}

func TestLoadTOML(t *testing.T) {
	file := filepath.Join(t.TempDir(), "enhancer.toml")
	require.NoError(t, os.WriteFile(file, []byte("strict = true\n[report]\nformat = \"mermaid\"\n"), 0o644))
	cfg, err := Load(file, nil)
	require.NoError(t, err)
	assert.True(t, cfg.Strict)
	assert.Equal(t, "mermaid", cfg.Report.Format)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty output", func(c *Config) { c.OutputDir = "" }, "outputDir"},
		{"no workers", func(c *Config) { c.Workers = 0 }, "workers"},
		{"empty base type", func(c *Config) { c.Conventions.BaseType = "" }, "conventions.baseType"},
		{"bad equals helper", func(c *Config) { c.Hooks.EqualsHelper = "equals" }, "hooks.equalsHelper"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad report format", func(c *Config) { c.Report.Format = "html" }, "report.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			var ce *ConfigError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}
