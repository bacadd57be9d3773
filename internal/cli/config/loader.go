package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/leapstack-labs/viewgraph/pkg/catalog"
)

// loggerKey is used to store the logger in context.
type loggerKey struct{}

// configKey is used to store the loaded config in context.
type configKey struct{}

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// EnvPrefix prefixes environment overrides. A double underscore separates
// nested keys: VIEWGRAPH_CACHE__TTL sets cache.ttl.
const EnvPrefix = "VIEWGRAPH_"

// flagKeys maps flag names to config keys where they differ.
var flagKeys = map[string]string{
	"state":    "state_path",
	"addr":     "server.addr",
	"graphviz": "graphviz.path",
}

// findConfigFile returns the explicit path, or the first config file found
// in the working directory or one of its parents.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for i := 0; i < maxUpwardSearchLevels; i++ {
		for _, name := range ConfigFileNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// defaults returns the built-in configuration.
func defaults() map[string]any {
	return map[string]any{
		"state_path":        DefaultStateFile,
		"output":            DefaultOutput,
		"verbose":           false,
		"cache.ttl":         DefaultCacheTTL.String(),
		"cache.size":        DefaultCacheSize,
		"graphviz.path":     DefaultGraphviz,
		"server.addr":       DefaultAddr,
		"server.watch":      false,
		"snapshot.schedule": DefaultSchedule,
		"snapshot.keep":     DefaultKeep,
	}
}

// Load loads configuration from defaults, the config file, VIEWGRAPH_*
// environment variables and flags, in increasing precedence.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	used := findConfigFile(cfgFile)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	// VIEWGRAPH_STATE_PATH -> state_path, VIEWGRAPH_SERVER__ADDR -> server.addr
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			// Only load flags that were explicitly set
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			if mapped, ok := flagKeys[key]; ok {
				key = mapped
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
				mapstructure.TextUnmarshallerHookFunc(),
			),
			Result:           &cfg,
			WeaklyTypedInput: true,
		},
	}); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	cfg.ConfigFile = used
	// Relative state paths are anchored at the config file unless given as a flag.
	stateFromFlag := flags != nil && flags.Lookup("state") != nil && flags.Changed("state")
	if used != "" && !stateFromFlag {
		cfg.StatePath = resolvePathRelativeTo(cfg.StatePath, filepath.Dir(used))
	}

	for name, conn := range cfg.Connections {
		cfg.Connections[name] = expandConnection(conn)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() any {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	// Return discard logger as safe fallback
	return slog.New(slog.DiscardHandler)
}

// WithConfig stores cfg in ctx.
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext retrieves the config stored by WithConfig, or the defaults.
func FromContext(ctx context.Context) *Config {
	if c, ok := ctx.Value(configKey{}).(*Config); ok {
		return c
	}
	return Default()
}

// Default returns the built-in configuration with no connections.
func Default() *Config {
	return &Config{
		StatePath:    DefaultStateFile,
		OutputFormat: DefaultOutput,
		Cache:        CacheConfig{TTL: DefaultCacheTTL, Size: DefaultCacheSize},
		Graphviz:     GraphvizConfig{Path: DefaultGraphviz},
		Server:       ServerConfig{Addr: DefaultAddr},
		Snapshot:     SnapshotConfig{Schedule: DefaultSchedule, Keep: DefaultKeep},
	}
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match // Return original if not found
	})
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty, in-memory or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// expandConnection expands ${VAR} references in connection fields that
// commonly carry secrets or per-environment values.
func expandConnection(c catalog.Config) catalog.Config {
	c.Host = expandEnvVars(c.Host)
	c.User = expandEnvVars(c.User)
	c.Password = expandEnvVars(c.Password)
	c.Database = expandEnvVars(c.Database)
	c.Path = expandEnvVars(c.Path)
	for k, v := range c.Options {
		c.Options[k] = expandEnvVars(v)
	}
	return c
}
