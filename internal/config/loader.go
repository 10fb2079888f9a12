package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is the prefix for pgboot environment variables. Nested keys use
// a double underscore: PGBOOT_POOL__MAX_CONNS -> pool.max_conns.
const EnvPrefix = "PGBOOT_"

// ConfigFileNames are searched for in the working directory.
var ConfigFileNames = []string{"pgboot.yaml", "pgboot.yml"}

// DotEnvFile is read from the working directory when present.
const DotEnvFile = ".env"

// bareEnv maps conventional unprefixed variables to config keys.
var bareEnv = map[string]string{
	"DATABASE_URL": "database_url",
	"APP_ENV":      "environment",
}

// envAliases are accepted below bareEnv; APP_ENV wins over NODE_ENV.
var envAliases = map[string]string{
	"NODE_ENV": "environment",
}

// flagKeys maps CLI flag names to config keys. Flags not listed here are
// not configuration.
var flagKeys = map[string]string{
	"database-url":    "database_url",
	"env":             "environment",
	"tls-mode":        "tls_mode",
	"max-conns":       "pool.max_conns",
	"grace-period":    "shutdown.grace_period",
	"extensions":      "extensions",
	"log-level":       "log.level",
	"log-format":      "log.format",
	"http-addr":       "http.addr",
	"output":          "output",
	"idle-timeout":    "pool.idle_timeout",
	"acquire-timeout": "pool.acquire_timeout",
}

// findConfigFile finds the config file to use.
// Priority: explicit path > pgboot.yaml > pgboot.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range ConfigFileNames {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > PGBOOT_ env > DATABASE_URL/APP_ENV
// > NODE_ENV > .env file > config file > defaults
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(defaultMap(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	used := findConfigFile(cfgFile)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	// 3. .env file
	dotVars, err := loadDotEnv(DotEnvFile)
	if err != nil {
		return nil, err
	}
	if err := k.Load(confmap.Provider(envKeys(dotVars), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", DotEnvFile, err)
	}

	// 4. Conventional unprefixed variables, aliases first
	for _, table := range []map[string]string{envAliases, bareEnv} {
		if err := k.Load(env.ProviderWithValue("", ".", func(key, value string) (string, interface{}) {
			if value == "" {
				return "", nil
			}
			return table[key], value
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load env vars: %w", err)
		}
	}

	// 5. PGBOOT_ variables
	if err := k.Load(env.Provider(EnvPrefix, ".", prefixedKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 6. Flags (highest priority)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			// Only load flags that were explicitly set
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if used != "" {
		if abs, err := filepath.Abs(used); err == nil {
			used = abs
		}
	}
	cfg.File = used
	cfg.DatabaseURL = expandEnvVars(cfg.DatabaseURL, dotVars)
	cfg.Extensions = splitList(cfg.Extensions)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// splitList flattens comma-separated entries, as env vars deliver lists
// as a single string.
func splitList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in a string with environment variable
// values, falling back to the .env file.
func expandEnvVars(s string, dotVars map[string]string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR}
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		if val := dotVars[varName]; val != "" {
			return val
		}
		return match // Return original if not found
	})
}

// prefixedKey transforms PGBOOT_POOL__MAX_CONNS -> pool.max_conns.
func prefixedKey(name string) string {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

// loadDotEnv reads path as a dotenv file. A missing file yields no
// variables.
func loadDotEnv(path string) (map[string]string, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}

	dk := koanf.New(".")
	if err := dk.Load(file.Provider(path), dotenv.Parser()); err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}

	vars := make(map[string]string)
	for name, val := range dk.All() {
		vars[name] = fmt.Sprint(val)
	}
	return vars, nil
}

// envKeys maps environment-style variables to config keys with the same
// precedence the process environment gets: aliases, then bare names, then
// PGBOOT_ names. Empty values are skipped.
func envKeys(vars map[string]string) map[string]interface{} {
	out := make(map[string]interface{})
	for _, table := range []map[string]string{envAliases, bareEnv} {
		for name, key := range table {
			if v := vars[name]; v != "" {
				out[key] = v
			}
		}
	}
	for name, v := range vars {
		if strings.HasPrefix(name, EnvPrefix) && v != "" {
			out[prefixedKey(name)] = v
		}
	}
	return out
}
