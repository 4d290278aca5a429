package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	mw "github.com/edgeflare/restful/pkg/httputil/middleware"
	"github.com/edgeflare/restful/pkg/events"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Version is set at build time with -ldflags "-X ...config.Version=...".
var Version = "dev"

// Config holds application-wide configuration
type Config struct {
	REST      RESTConfig       `mapstructure:"rest"`
	API       API              `mapstructure:"api"`
	Resources []ResourceConfig `mapstructure:"resources"`
	Metrics   MetricsConfig    `mapstructure:"metrics"`
	// NATS enables the event publisher when present.
	NATS *events.NATSConfig `mapstructure:"nats"`
}

type RESTConfig struct {
	PG         PGConfig `mapstructure:"pg"`
	ListenAddr string   `mapstructure:"listen_addr"`
	BaseURL    string   `mapstructure:"base_url"`
	// Prefix mounts every resource under a path, e.g. /api/v1.
	Prefix        string `mapstructure:"prefix"`
	TrailingSlash bool   `mapstructure:"trailing_slash"`
	// BasicAuth maps usernames to passwords.
	BasicAuth map[string]string     `mapstructure:"basic_auth"`
	OIDC      mw.OIDCProviderConfig `mapstructure:"oidc"`
	// AnonymousEnabled lets unauthenticated requests through to resource
	// permissions instead of answering 401.
	AnonymousEnabled bool          `mapstructure:"anonymous_enabled"`
	CORSOrigins      []string      `mapstructure:"cors_origins"`
	TLS              TLSConfig     `mapstructure:"tls"`
	Schema           bool          `mapstructure:"schema_endpoint"`
	OpenAPI          bool          `mapstructure:"openapi_endpoint"`
	Shutdown         time.Duration `mapstructure:"shutdown_timeout"`
}

type PGConfig struct {
	ConnString string      `mapstructure:"conn_string"`
	Retry      RetryConfig `mapstructure:"retry"`
}

type RetryConfig struct {
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	MaxElapsed      time.Duration `mapstructure:"max_elapsed"`
}

type TLSConfig struct {
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

func DefaultRESTConfig() RESTConfig {
	return RESTConfig{
		ListenAddr:       ":8080",
		TrailingSlash:    true,
		AnonymousEnabled: true,
		Schema:           true,
		OpenAPI:          true,
		Shutdown:         10 * time.Second,
		PG: PGConfig{Retry: RetryConfig{
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			MaxElapsed:      time.Minute,
		}},
	}
}

func setDefaults(v *viper.Viper) {
	rest := DefaultRESTConfig()
	v.SetDefault("rest.listen_addr", rest.ListenAddr)
	v.SetDefault("rest.trailing_slash", rest.TrailingSlash)
	v.SetDefault("rest.anonymous_enabled", rest.AnonymousEnabled)
	v.SetDefault("rest.schema_endpoint", rest.Schema)
	v.SetDefault("rest.openapi_endpoint", rest.OpenAPI)
	v.SetDefault("rest.shutdown_timeout", rest.Shutdown)
	v.SetDefault("rest.pg.retry.initial_interval", rest.PG.Retry.InitialInterval)
	v.SetDefault("rest.pg.retry.max_interval", rest.PG.Retry.MaxInterval)
	v.SetDefault("rest.pg.retry.max_elapsed", rest.PG.Retry.MaxElapsed)

	api := DefaultAPI()
	v.SetDefault("api.default_pagination", api.DefaultPagination)
	v.SetDefault("api.page_query_param", api.PageQueryParam)
	v.SetDefault("api.count_cache_ttl", api.CountCacheTTL)

	v.SetDefault("metrics.addr", ":9100")
	v.SetDefault("metrics.path", "/metrics")
}

func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	)
}

// Load reads config from file or environment. Nested keys map to
// environment variables as RESTFUL_REST_LISTEN_ADDR.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("restful")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("RESTFUL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.API.validate(); err != nil {
		return nil, err
	}
	for i, res := range cfg.Resources {
		if err := res.validate(); err != nil {
			return nil, fmt.Errorf("resources[%d]: %w", i, err)
		}
	}
	return &cfg, nil
}
