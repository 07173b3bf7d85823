package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/bronto-tap/pkg/errors"
)

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "BRONTO"

// Load reads, overrides and validates the configuration at filePath.
func Load(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: path comes from the command line
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file").
			WithDetail("path", filePath)
	}
	return Parse(data, configType(filePath))
}

// Parse decodes a configuration document of the given type ("json" or "yaml").
func Parse(data []byte, format string) (*Config, error) {
	content := []byte(substituteEnvVars(string(data)))

	// YAML is a superset of JSON, so one decoder tells a missing token from a
	// null one for both formats.
	var raw map[string]interface{}
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse config")
	}
	if err := checkRequired(raw); err != nil {
		return nil, err
	}

	v := newViper()
	v.SetConfigType(format)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to decode config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// requiredKeys must be present and non-null, in the file or the environment.
var requiredKeys = []string{"token"}

func checkRequired(raw map[string]interface{}) error {
	var missing, null []string
	for _, key := range requiredKeys {
		if os.Getenv(envName(key)) != "" {
			continue
		}
		val, ok := raw[key]
		switch {
		case !ok:
			missing = append(missing, key)
		case val == nil:
			null = append(null, key)
		}
	}

	if len(missing) > 0 {
		return errors.Newf(errors.ErrorTypeConfig, "config is missing required keys: %s", strings.Join(missing, ", "))
	}
	if len(null) > 0 {
		return errors.Newf(errors.ErrorTypeConfig, "config has null required keys: %s", strings.Join(null, ", "))
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("token", "")
	v.SetDefault("start_date", DefaultStartDate)
	v.SetDefault("endpoint", DefaultEndpoint)
	v.SetDefault("request_timeout", DefaultRequestTimeout)
	v.SetDefault("retry_attempts", DefaultRetryAttempts)
	v.SetDefault("retry_delay", DefaultRetryDelay)
	v.SetDefault("rate_limit_per_sec", 0)
	v.SetDefault("page_size", DefaultPageSize)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("state_store.backend", "")
	v.SetDefault("state_store.path", "")
	v.SetDefault("state_store.bucket", "")
	v.SetDefault("state_store.key", "state.json")
	v.SetDefault("state_store.region", "")
	v.SetDefault("state_store.credentials_file", "")
	v.SetDefault("state_store.dsn", "")
	v.SetDefault("state_store.table", "tap_state")
	v.SetDefault("state_store.name", "bronto")
	v.SetDefault("output.path", "")
	v.SetDefault("output.compression", "none")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "bronto-tap")
	v.SetDefault("tracing.sample_rate", 1.0)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func configType(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}
