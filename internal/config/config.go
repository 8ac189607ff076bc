// Package config charge la configuration: fichier, variables ANISYNC_* puis
// valeurs par défaut.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Guilhem-Bonnet/anisync/internal/validation"
)

const (
	EnvPrefix       = "ANISYNC"
	DefaultEndpoint = "https://graphql.anilist.co"
	DBFileName      = "anisync.db"
	CredentialFile  = "credential.json"
)

type Config struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri" validate:"required,url"`

	OfflineMode   bool `mapstructure:"offline_mode"`
	CacheTTLHours int  `mapstructure:"cache_ttl_hours" validate:"gte=1"`

	DataDir  string `mapstructure:"data_dir" validate:"required"`
	Addr     string `mapstructure:"addr" validate:"required,hostname_port"`
	LogLevel string `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
	LogFile  string `mapstructure:"log_file"`

	TokenStore      string        `mapstructure:"token_store" validate:"oneof=file sqlite"`
	SyncInterval    time.Duration `mapstructure:"sync_interval" validate:"gte=1s"`
	RetryInterval   time.Duration `mapstructure:"retry_interval" validate:"gte=1s"`
	PushConcurrency int           `mapstructure:"push_concurrency" validate:"gte=1,lte=16"`

	GraphQLEndpoint string `mapstructure:"graphql_endpoint" validate:"required,url"`
	AuthURL         string `mapstructure:"auth_url" validate:"required,url"`
	TokenURL        string `mapstructure:"token_url" validate:"required,url"`
}

func Default() Config {
	return Config{
		RedirectURI:     "http://localhost:8080/callback",
		CacheTTLHours:   24,
		DataDir:         defaultDataDir(),
		Addr:            "127.0.0.1:8787",
		LogLevel:        "info",
		TokenStore:      "file",
		SyncInterval:    15 * time.Minute,
		RetryInterval:   5 * time.Second,
		PushConcurrency: 1,
		GraphQLEndpoint: DefaultEndpoint,
		AuthURL:         "https://anilist.co/api/v2/oauth/authorize",
		TokenURL:        "https://anilist.co/api/v2/oauth/token",
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "anisync")
	}
	return ".anisync"
}

type LoadOptions struct {
	// ConfigFile force un fichier précis; absent = recherche dans le dossier
	// de config utilisateur, sans erreur si rien n'est trouvé.
	ConfigFile string
	// SearchPaths remplace les dossiers de recherche (tests).
	SearchPaths []string
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("config")
		paths := opts.SearchPaths
		if paths == nil {
			paths = []string{defaultDataDir()}
		}
		for _, p := range paths {
			v.AddConfigPath(p)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := validation.New().Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("client_id", d.ClientID)
	v.SetDefault("client_secret", d.ClientSecret)
	v.SetDefault("redirect_uri", d.RedirectURI)
	v.SetDefault("offline_mode", d.OfflineMode)
	v.SetDefault("cache_ttl_hours", d.CacheTTLHours)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("addr", d.Addr)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("token_store", d.TokenStore)
	v.SetDefault("sync_interval", d.SyncInterval)
	v.SetDefault("retry_interval", d.RetryInterval)
	v.SetDefault("push_concurrency", d.PushConcurrency)
	v.SetDefault("graphql_endpoint", d.GraphQLEndpoint)
	v.SetDefault("auth_url", d.AuthURL)
	v.SetDefault("token_url", d.TokenURL)
}

func (c *Config) normalize() {
	c.DataDir = expandHome(strings.TrimSpace(c.DataDir))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.TokenStore = strings.ToLower(strings.TrimSpace(c.TokenStore))
	if strings.TrimSpace(c.LogFile) == "" && c.DataDir != "" {
		c.LogFile = filepath.Join(c.DataDir, "logs", "anisync.log")
	} else {
		c.LogFile = expandHome(c.LogFile)
	}
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

func (c Config) DBPath() string { return filepath.Join(c.DataDir, DBFileName) }

func (c Config) CredentialPath() string { return filepath.Join(c.DataDir, CredentialFile) }

func (c Config) CacheTTL() time.Duration { return time.Duration(c.CacheTTLHours) * time.Hour }
