package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/monoklix/mkx-cli/internal/adapters/activity"
	filecache "github.com/monoklix/mkx-cli/internal/adapters/cache/file"
	"github.com/monoklix/mkx-cli/internal/adapters/repo/sqlite"
	"github.com/monoklix/mkx-cli/internal/application"
	"github.com/monoklix/mkx-cli/internal/domain"
	"github.com/monoklix/mkx-cli/internal/imaging"
)

type app struct {
	session   domain.Session
	store     *sqlite.Store
	cache     *filecache.Store
	sink      *activity.Sink
	directory *application.Directory
	imagen    *application.ImagenService
	veo       *application.VeoService
	claims    *application.PoolClaimService
	probes    *application.TokenTestService
	logger    *slog.Logger
}

type serverConfig struct {
	ID   string   `mapstructure:"id"`
	URL  string   `mapstructure:"url"`
	Tags []string `mapstructure:"tags"`
}

func wireApp() (*app, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	configDir := filepath.Join(homeDir, ".mkx")

	v := viper.New()
	v.SetConfigFile(filepath.Join(configDir, "config.toml"))
	v.SetConfigType("toml")
	v.SetEnvPrefix("MKX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("paths.db", filepath.Join(configDir, "mkx.db"))
	v.SetDefault("paths.cache", filepath.Join(configDir, "current-user.toml"))
	v.SetDefault("server.default", "")
	v.SetDefault("server.selected", "")
	v.SetDefault("user.id", "local")
	v.SetDefault("user.name", "")
	v.SetDefault("user.role", string(domain.RoleMember))
	v.SetDefault("log.level", "info")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	logger := newLogger(v.GetString("log.level"))

	var servers []serverConfig
	if err := v.UnmarshalKey("servers", &servers); err != nil {
		return nil, fmt.Errorf("decode server list: %w", err)
	}
	static := make([]domain.ServerEndpoint, 0, len(servers))
	for _, s := range servers {
		endpoint := domain.ServerEndpoint{ID: domain.ServerID(s.ID), URL: s.URL, Tags: s.Tags}
		if err := endpoint.Validate(); err != nil {
			logger.Warn("skipping invalid server entry", "id", s.ID, "error", err)
			continue
		}
		static = append(static, endpoint)
	}

	store, err := sqlite.Open(v.GetString("paths.db"))
	if err != nil {
		return nil, fmt.Errorf("wire durable store: %w", err)
	}

	cache, err := filecache.NewStore(v.GetString("paths.cache"))
	if err != nil {
		return nil, fmt.Errorf("wire profile cache: %w", err)
	}

	session := domain.Session{
		UserID:         v.GetString("user.id"),
		Username:       v.GetString("user.name"),
		Role:           domain.Role(v.GetString("user.role")),
		SelectedServer: v.GetString("server.selected"),
	}

	defaultServer := v.GetString("server.default")
	refreshURL := ""
	if defaultServer != "" {
		refreshURL = defaultServer + "/api/servers"
	}

	sink := activity.NewSink(store, logger)
	httpClient := &http.Client{Timeout: 60 * time.Second}
	resolver := application.NewResolver(cache, store, logger)
	executor := application.NewExecutor(resolver, store, sink, httpClient, defaultServer, logger)
	imagen := application.NewImagenService(executor, sink, imaging.CropToAspect, logger)
	veo := application.NewVeoService(executor, sink, &http.Client{Timeout: 5 * time.Minute}, imaging.CropToAspect, logger)

	return &app{
		session:   session,
		store:     store,
		cache:     cache,
		sink:      sink,
		directory: application.NewDirectory(static, refreshURL, httpClient, logger),
		imagen:    imagen,
		veo:       veo,
		claims:    application.NewPoolClaimService(store, store, cache, logger),
		probes:    application.NewTokenTestService(imagen, veo, store, logger),
		logger:    logger,
	}, nil
}

func (a *app) close() {
	a.sink.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing durable store", "error", err)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
