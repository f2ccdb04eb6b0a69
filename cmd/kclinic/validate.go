package main

import (
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/goodtune/kclinic/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	validateDump bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the KClinic configuration file for syntax and semantic errors.`,
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateDump, "dump", false, "Dump full configuration with defaults highlighted")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation failed: %v\n", err)
		return err
	}

	// Check for unknown keys (always, not just with --dump)
	unknownKeys, err := findUnknownKeys(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "⚠️  Warning: Could not check for unknown keys: %v\n", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "✅ Configuration is valid: %s\n", configPath)

	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)
		fmt.Fprintln(os.Stdout)
		_, _ = red.Fprintf(os.Stdout, "⚠️  WARNING: Found %d unknown configuration key(s):\n", len(unknownKeys))
		for _, key := range unknownKeys {
			_, _ = red.Fprintf(os.Stdout, "   - %s\n", key)
		}
		fmt.Fprintln(os.Stdout, "\nThese keys will be ignored and may indicate typos or deprecated settings.")
	}

	if validateDump {
		_, _ = fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
		_, _ = fmt.Fprintln(os.Stdout, "FULL CONFIGURATION (values different from defaults are highlighted)")
		_, _ = fmt.Fprintln(os.Stdout, strings.Repeat("=", 80))

		dumpConfig(cfg, config.Defaults(), unknownKeys)
	}

	return nil
}

// findUnknownKeys parses the config file and reports dotted keys the Config struct does not define
func findUnknownKeys(configPath string) ([]string, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}

	valid := validKeys(reflect.TypeOf(config.Config{}), "")

	unknown := []string{}
	for _, key := range flattenKeys(raw, "") {
		if !valid[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)

	return unknown, nil
}

// flattenKeys turns nested YAML maps into lower-case dotted leaf keys, matching viper
func flattenKeys(m map[string]interface{}, prefix string) []string {
	var keys []string
	for k, v := range m {
		key := strings.ToLower(k)
		if prefix != "" {
			key = prefix + "." + key
		}
		if nested, ok := v.(map[string]interface{}); ok && len(nested) > 0 {
			keys = append(keys, flattenKeys(nested, key)...)
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

// validKeys collects the dotted mapstructure paths of every leaf field in t
func validKeys(t reflect.Type, prefix string) map[string]bool {
	keys := map[string]bool{}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name := field.Tag.Get("mapstructure")
		if name == "" || name == "-" {
			continue
		}
		if prefix != "" {
			name = prefix + "." + name
		}
		if field.Type.Kind() == reflect.Struct {
			for k := range validKeys(field.Type, name) {
				keys[k] = true
			}
			continue
		}
		keys[name] = true
	}
	return keys
}

// dumpConfig dumps configuration with color highlighting for non-default values
func dumpConfig(cfg, defaultCfg *config.Config, unknownKeys []string) {
	yellow := color.New(color.FgYellow, color.Bold)
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan, color.Bold)

	// Server
	_, _ = cyan.Println("\n[server]")
	dumpField("  name", cfg.Server.Name, defaultCfg.Server.Name, yellow, green)
	dumpField("  bind_address", cfg.Server.BindAddress, defaultCfg.Server.BindAddress, yellow, green)
	dumpField("  api_port", cfg.Server.APIPort, defaultCfg.Server.APIPort, yellow, green)
	dumpField("  metrics_port", cfg.Server.MetricsPort, defaultCfg.Server.MetricsPort, yellow, green)

	// Storage
	_, _ = cyan.Println("\n[storage]")
	dumpField("  type", cfg.Storage.Type, defaultCfg.Storage.Type, yellow, green)
	dumpField("  state_key", cfg.Storage.StateKey, defaultCfg.Storage.StateKey, yellow, green)
	_, _ = cyan.Println("  [storage.redis]")
	dumpField("    host", cfg.Storage.Redis.Host, defaultCfg.Storage.Redis.Host, yellow, green)
	dumpField("    port", cfg.Storage.Redis.Port, defaultCfg.Storage.Redis.Port, yellow, green)
	dumpField("    password", redactSecret(cfg.Storage.Redis.Password), redactSecret(defaultCfg.Storage.Redis.Password), yellow, green)
	dumpField("    db", cfg.Storage.Redis.DB, defaultCfg.Storage.Redis.DB, yellow, green)
	dumpField("    pool_size", cfg.Storage.Redis.PoolSize, defaultCfg.Storage.Redis.PoolSize, yellow, green)
	dumpField("    min_idle_conns", cfg.Storage.Redis.MinIdleConns, defaultCfg.Storage.Redis.MinIdleConns, yellow, green)
	dumpField("    dial_timeout", cfg.Storage.Redis.DialTimeout, defaultCfg.Storage.Redis.DialTimeout, yellow, green)
	dumpField("    read_timeout", cfg.Storage.Redis.ReadTimeout, defaultCfg.Storage.Redis.ReadTimeout, yellow, green)
	dumpField("    write_timeout", cfg.Storage.Redis.WriteTimeout, defaultCfg.Storage.Redis.WriteTimeout, yellow, green)
	_, _ = cyan.Println("  [storage.bolt]")
	dumpField("    path", cfg.Storage.Bolt.Path, defaultCfg.Storage.Bolt.Path, yellow, green)
	_, _ = cyan.Println("  [storage.sqlite]")
	dumpField("    path", cfg.Storage.SQLite.Path, defaultCfg.Storage.SQLite.Path, yellow, green)
	_, _ = cyan.Println("  [storage.mongo]")
	dumpField("    uri", redactURI(cfg.Storage.Mongo.URI), redactURI(defaultCfg.Storage.Mongo.URI), yellow, green)
	dumpField("    database", cfg.Storage.Mongo.Database, defaultCfg.Storage.Mongo.Database, yellow, green)
	dumpField("    timeout", cfg.Storage.Mongo.Timeout, defaultCfg.Storage.Mongo.Timeout, yellow, green)

	// Tracker
	_, _ = cyan.Println("\n[tracker]")
	dumpField("  persist_timeout", cfg.Tracker.PersistTimeout, defaultCfg.Tracker.PersistTimeout, yellow, green)

	// Archive
	_, _ = cyan.Println("\n[archive]")
	dumpField("  retention_days", cfg.Archive.RetentionDays, defaultCfg.Archive.RetentionDays, yellow, green)
	dumpField("  cleanup_time", cfg.Archive.CleanupTime, defaultCfg.Archive.CleanupTime, yellow, green)

	// Remote
	_, _ = cyan.Println("\n[remote]")
	dumpField("  base_url", cfg.Remote.BaseURL, defaultCfg.Remote.BaseURL, yellow, green)
	dumpField("  token", redactSecret(cfg.Remote.Token), redactSecret(defaultCfg.Remote.Token), yellow, green)
	dumpField("  timeout", cfg.Remote.Timeout, defaultCfg.Remote.Timeout, yellow, green)
	dumpField("  retries", cfg.Remote.Retries, defaultCfg.Remote.Retries, yellow, green)
	dumpField("  queue_path", cfg.Remote.QueuePath, defaultCfg.Remote.QueuePath, yellow, green)
	dumpField("  events_path", cfg.Remote.EventsPath, defaultCfg.Remote.EventsPath, yellow, green)
	dumpField("  events_enabled", cfg.Remote.EventsEnabled, defaultCfg.Remote.EventsEnabled, yellow, green)
	dumpField("  reconnect_min", cfg.Remote.ReconnectMin, defaultCfg.Remote.ReconnectMin, yellow, green)
	dumpField("  reconnect_max", cfg.Remote.ReconnectMax, defaultCfg.Remote.ReconnectMax, yellow, green)
	dumpField("  cache_size", cfg.Remote.CacheSize, defaultCfg.Remote.CacheSize, yellow, green)
	dumpField("  cache_ttl", cfg.Remote.CacheTTL, defaultCfg.Remote.CacheTTL, yellow, green)

	// API
	_, _ = cyan.Println("\n[api]")
	dumpField("  jwt_secret", redactSecret(cfg.API.JWTSecret), redactSecret(defaultCfg.API.JWTSecret), yellow, green)
	dumpField("  token_expiration", cfg.API.TokenExpiration, defaultCfg.API.TokenExpiration, yellow, green)
	dumpField("  allowed_origins", cfg.API.AllowedOrigins, defaultCfg.API.AllowedOrigins, yellow, green)

	// Logging
	_, _ = cyan.Println("\n[logging]")
	dumpField("  level", cfg.Logging.Level, defaultCfg.Logging.Level, yellow, green)
	dumpField("  format", cfg.Logging.Format, defaultCfg.Logging.Format, yellow, green)

	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)

		_, _ = cyan.Println("\n[UNKNOWN KEYS - These will be ignored!]")
		for _, key := range unknownKeys {
			_, _ = red.Printf("  %s = (unknown key - check for typos)\n", key)
		}
	}

	_, _ = fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
}

// dumpField prints a field with color if it differs from default
func dumpField(name string, value, defaultValue interface{}, modifiedColor, defaultColor *color.Color) {
	valueStr := fmt.Sprintf("%v", value)

	if reflect.DeepEqual(value, defaultValue) {
		_, _ = defaultColor.Printf("%s = %s\n", name, valueStr)
	} else {
		_, _ = modifiedColor.Printf("%s = %s  (modified from default: %v)\n", name, valueStr, defaultValue)
	}
}

// redactSecret redacts a secret if not empty
func redactSecret(secret string) string {
	if secret == "" {
		return ""
	}
	return "***REDACTED***"
}

// redactURI hides credentials embedded in a connection URI
func redactURI(uri string) string {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return uri
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		return scheme + "://***REDACTED***@" + rest[at+1:]
	}
	return uri
}
