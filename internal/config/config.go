// Package config provides configuration management for the service-spawning
// middleware, following the teacher's viper-based Load(configPath) shape.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for svcrund.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Services  ServicesConfig  `mapstructure:"services"`
	Transpile TranspileConfig `mapstructure:"transpile"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// RedisConfig holds Redis connection configuration, consulted when
// Transpile.CacheBackend is "redis".
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig holds bearer-token authentication configuration. Secrets maps
// a caller name to its shared secret; an empty map disables auth entirely
// (internal/httpapi skips the auth middleware when no Validator is built).
type AuthConfig struct {
	Secrets map[string]string `mapstructure:"secrets"`
}

// ServicesConfig holds the executor/language configuration shared by every
// registered service.
type ServicesConfig struct {
	// BinariesRoot is the directory language executor binaries are
	// resolved under (internal/language.Registry's root).
	BinariesRoot string `mapstructure:"binaries_root"`

	// LanguagesFile is an optional path to a YAML language table
	// (internal/language.LoadRegistry). Empty means use DefaultEntries.
	LanguagesFile string `mapstructure:"languages_file"`

	// MaxTimeout is the global default invocation timeout in milliseconds,
	// used when a service has no CustomTimeout of its own.
	MaxTimeout int `mapstructure:"max_timeout_ms"`

	// DefaultEnv is injected into __env.env when a caller supplies none.
	DefaultEnv map[string]interface{} `mapstructure:"default_env"`

	// ArgMax overrides the default argv size limit (0 means platform default).
	ArgMax int `mapstructure:"arg_max"`

	// Descriptors lists the services to register at startup; each becomes
	// one internal/httpapi route, keyed by its Code.
	Descriptors []ServiceDescriptorConfig `mapstructure:"descriptors"`
}

// ServiceDescriptorConfig mirrors internal/service.Options' stable field
// names (legacy aliases are resolved inside service.New, not here).
type ServiceDescriptorConfig struct {
	Code          string                 `mapstructure:"code"`
	Language      string                 `mapstructure:"language"`
	View          string                 `mapstructure:"view"`
	Presenter     string                 `mapstructure:"presenter"`
	CustomTimeout int                    `mapstructure:"custom_timeout_ms"`
	Config        map[string]interface{} `mapstructure:"config"`
	IsHookio      bool                   `mapstructure:"is_hookio"`
}

// TranspileConfig holds transpiler registry and cache configuration.
type TranspileConfig struct {
	// CacheBackend is "memory" (default) or "redis".
	CacheBackend string `mapstructure:"cache_backend"`

	// Script is the source of the Entrypoint(source) function run against
	// each service's code before spawn (spec.md §6's transpile step). Empty
	// means the identity transform: the transpiler still runs, but passes
	// source through unchanged. Set this to a real babel/coffee-script
	// bundle to make transpilation do actual work.
	Script string `mapstructure:"script"`

	// Sandbox configures the out-of-process worker pool used for
	// isolated transpilation (internal/sandboxworker.Pool). If
	// WorkerCount is 0, transpilation runs in-process instead.
	Sandbox SandboxConfig `mapstructure:"sandbox"`
}

// SandboxConfig mirrors internal/sandboxworker.Config's mapstructure tags.
type SandboxConfig struct {
	WorkerCount int           `mapstructure:"worker_count"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxMemoryMB int           `mapstructure:"max_memory_mb"`
}

// Load reads configuration from file and environment variables, following
// the teacher's config.Load: an optional explicit path, otherwise
// "config.yaml" searched in ".", "./configs" and "/etc/svcrun", with SVCRUN_-prefixed
// environment overrides for anything unset.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.secrets", map[string]string{})

	v.SetDefault("services.binaries_root", "/opt/svcrun")
	v.SetDefault("services.languages_file", "")
	v.SetDefault("services.max_timeout_ms", 30000)
	v.SetDefault("services.arg_max", 0)

	v.SetDefault("transpile.cache_backend", "memory")
	v.SetDefault("transpile.script", "")
	v.SetDefault("transpile.sandbox.worker_count", 0)
	v.SetDefault("transpile.sandbox.timeout", 5*time.Second)
	v.SetDefault("transpile.sandbox.max_memory_mb", 128)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/svcrun")
	}

	v.SetEnvPrefix("SVCRUN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
