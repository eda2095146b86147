// Package config loads enhancer settings from an optional config file,
// ENHANCER_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/olehluchkiv/enhancer/internal/analyzer"
	"github.com/olehluchkiv/enhancer/internal/instrument"
)

// EnvPrefix prefixes every environment override: ENHANCER_OUTPUTDIR,
// ENHANCER_LOGGING_LEVEL.
const EnvPrefix = "ENHANCER"

// Config is the complete enhancer configuration.
type Config struct {
	Classpath    string `mapstructure:"classpath"`
	OutputDir    string `mapstructure:"outputDir"`
	Workers      int    `mapstructure:"workers"`
	Strict       bool   `mapstructure:"strict"`
	TagInterface bool   `mapstructure:"tagInterface"`
	Ledger       string `mapstructure:"ledger"`

	Conventions ConventionsConfig `mapstructure:"conventions"`
	Hooks       HooksConfig       `mapstructure:"hooks"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Report      ReportConfig      `mapstructure:"report"`
}

// ConventionsConfig names the entity model's types and method prefixes.
type ConventionsConfig struct {
	BaseType             string `mapstructure:"baseType"`
	EnhancedMarker       string `mapstructure:"enhancedMarker"`
	DisabledMarker       string `mapstructure:"disabledMarker"`
	MetaProperty         string `mapstructure:"metaProperty"`
	PersistenceGetPrefix string `mapstructure:"persistenceGetPrefix"`
	PersistenceSetPrefix string `mapstructure:"persistenceSetPrefix"`
}

// HooksConfig names the methods generated setters call.
type HooksConfig struct {
	EqualsHelper string `mapstructure:"equalsHelper"`
	ChangeHook   string `mapstructure:"changeHook"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type ReportConfig struct {
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// DefaultConfig returns the configuration for CUBA entities.
func DefaultConfig() *Config {
	conv := analyzer.DefaultConventions()
	hooks := instrument.DefaultHooks()
	return &Config{
		OutputDir:    "build/enhanced",
		Workers:      4,
		TagInterface: true,
		Conventions: ConventionsConfig{
			BaseType:             conv.BaseType,
			EnhancedMarker:       conv.EnhancedMarker,
			DisabledMarker:       conv.DisabledMarker,
			MetaProperty:         conv.MetaProperty,
			PersistenceGetPrefix: conv.PersistenceGetPrefix,
			PersistenceSetPrefix: conv.PersistenceSetPrefix,
		},
		Hooks: HooksConfig{
			EqualsHelper: hooks.EqualsHelper,
			ChangeHook:   hooks.ChangeHook,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Report: ReportConfig{
			Format: "text",
		},
	}
}

// FlagKeys maps command-line flag names to config keys. Load binds every
// flag of the set that appears here.
var FlagKeys = map[string]string{
	"classpath":     "classpath",
	"output":        "outputDir",
	"workers":       "workers",
	"strict":        "strict",
	"tag-interface": "tagInterface",
	"ledger":        "ledger",
	"log-level":     "logging.level",
	"log-format":    "logging.format",
	"log-file":      "logging.file",
	"report":        "report.format",
	"report-file":   "report.output",
}

// Load reads configuration. file may be empty, in which case an
// enhancer.{yaml,json,toml} in the working directory is used if present.
// flags may be nil.
func Load(file string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("enhancer")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("classpath", d.Classpath)
	v.SetDefault("outputDir", d.OutputDir)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("strict", d.Strict)
	v.SetDefault("tagInterface", d.TagInterface)
	v.SetDefault("ledger", d.Ledger)
	v.SetDefault("conventions.baseType", d.Conventions.BaseType)
	v.SetDefault("conventions.enhancedMarker", d.Conventions.EnhancedMarker)
	v.SetDefault("conventions.disabledMarker", d.Conventions.DisabledMarker)
	v.SetDefault("conventions.metaProperty", d.Conventions.MetaProperty)
	v.SetDefault("conventions.persistenceGetPrefix", d.Conventions.PersistenceGetPrefix)
	v.SetDefault("conventions.persistenceSetPrefix", d.Conventions.PersistenceSetPrefix)
	v.SetDefault("hooks.equalsHelper", d.Hooks.EqualsHelper)
	v.SetDefault("hooks.changeHook", d.Hooks.ChangeHook)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("report.format", d.Report.Format)
	v.SetDefault("report.output", d.Report.Output)
}

// Validate checks the fields the enhancer cannot run without.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return &ConfigError{Field: "outputDir", Message: "must not be empty"}
	}
	if c.Workers < 1 {
		return &ConfigError{Field: "workers", Message: "must be at least 1"}
	}
	required := []struct {
		field, value string
	}{
		{"conventions.baseType", c.Conventions.BaseType},
		{"conventions.enhancedMarker", c.Conventions.EnhancedMarker},
		{"conventions.disabledMarker", c.Conventions.DisabledMarker},
		{"conventions.metaProperty", c.Conventions.MetaProperty},
		{"conventions.persistenceGetPrefix", c.Conventions.PersistenceGetPrefix},
		{"conventions.persistenceSetPrefix", c.Conventions.PersistenceSetPrefix},
		{"hooks.changeHook", c.Hooks.ChangeHook},
	}
	for _, r := range required {
		if r.value == "" {
			return &ConfigError{Field: r.field, Message: "must not be empty"}
		}
	}
	if i := strings.LastIndexByte(c.Hooks.EqualsHelper, '.'); i <= 0 || i == len(c.Hooks.EqualsHelper)-1 {
		return &ConfigError{Field: "hooks.equalsHelper", Message: "must be a qualified static method name"}
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return &ConfigError{Field: "logging.format", Message: fmt.Sprintf("unknown format %q", c.Logging.Format)}
	}
	switch c.Report.Format {
	case "text", "yaml", "mermaid":
	default:
		return &ConfigError{Field: "report.format", Message: fmt.Sprintf("unknown format %q", c.Report.Format)}
	}
	return nil
}

// AnalyzerConventions converts the conventions section. The setter and
// getter prefixes are fixed by the JavaBeans naming pattern.
func (c *Config) AnalyzerConventions() analyzer.Conventions {
	conv := analyzer.DefaultConventions()
	conv.BaseType = c.Conventions.BaseType
	conv.EnhancedMarker = c.Conventions.EnhancedMarker
	conv.DisabledMarker = c.Conventions.DisabledMarker
	conv.MetaProperty = c.Conventions.MetaProperty
	conv.PersistenceGetPrefix = c.Conventions.PersistenceGetPrefix
	conv.PersistenceSetPrefix = c.Conventions.PersistenceSetPrefix
	return conv
}

func (c *Config) InstrumentHooks() instrument.Hooks {
	return instrument.Hooks{EqualsHelper: c.Hooks.EqualsHelper, ChangeHook: c.Hooks.ChangeHook}
}

// ConfigError names an invalid field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
