package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vbonduro/famshop/internal/access"
	"github.com/vbonduro/famshop/internal/auth"
	"github.com/vbonduro/famshop/internal/config"
	"github.com/vbonduro/famshop/internal/db"
	"github.com/vbonduro/famshop/internal/events"
	"github.com/vbonduro/famshop/internal/logging"
	"github.com/vbonduro/famshop/internal/metrics"
	"github.com/vbonduro/famshop/internal/plugin"
	"github.com/vbonduro/famshop/internal/service"
	"github.com/vbonduro/famshop/internal/store"
	"github.com/vbonduro/famshop/internal/suggest"
	claudesuggest "github.com/vbonduro/famshop/internal/suggest/claude"
	ollamasuggest "github.com/vbonduro/famshop/internal/suggest/ollama"
	"github.com/vbonduro/famshop/internal/web"
)

// limiterIdle is how long a caller's bucket survives without requests.
const limiterIdle = 10 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and background jobs",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer cleanup()

	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET is not set; every authenticated request will be rejected")
	}

	plug, err := config.LoadPlugin(cfg.PluginFile)
	if err != nil {
		return err
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer closeWithLog(database, "database", logger)

	limits := store.Limits{
		MaxListsPerFamily: plug.Limits.MaxListsPerFamily,
		MaxItemsPerList:   plug.Limits.MaxItemsPerList,
	}
	itemStore := store.NewItemStore(database, limits)
	listStore := store.NewListStore(database, limits)
	users := store.NewUserStore(database)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := newBus(ctx, cfg, logger)
	defer closeWithLog(bus, "event bus", logger)

	var suggester suggest.Suggester
	if plug.Features.ItemSuggestionsEnabled() {
		suggester = newSuggester(cfg, itemStore, logger)
	}

	limiter := web.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	var jobs []plugin.Job
	if limiter != nil {
		jobs = append(jobs, plugin.Job{
			Name:     "rate limiter cleanup",
			Interval: time.Minute,
			Run: func(context.Context) {
				if n := limiter.Cleanup(limiterIdle); n > 0 {
					logger.Debug("dropped idle rate limiters", "count", n, "remaining", limiter.Len())
				}
			},
		})
	}

	collector := metrics.NewCollector(listStore, itemStore)
	p := plugin.New(database, collector, bus, itemStore, plugin.Config{
		MetricsInterval: cfg.MetricsInterval,
		AutoArchive:     plug.Features.AutoArchiveEnabled(),
		ArchiveAfter:    time.Duration(plug.Limits.ArchiveAfterDays) * 24 * time.Hour,
		Jobs:            jobs,
	}, logger)
	p.Init(ctx)
	if err := p.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := p.Stop(); err != nil {
			logger.Error("failed to stop plugin", "error", err)
		}
	}()

	server := web.NewServer(web.Deps{
		Items:        service.NewItemService(itemStore, limits, bus, suggester, logger),
		Lists:        service.NewListService(listStore, itemStore, limits, bus, logger),
		Authorizer:   service.NewAuthorizer(access.NewGuard(users)),
		Resolver:     auth.NewResolver(cfg.JWTSecret, logger),
		Capabilities: access.NewCapabilities(plug.Roles),
		Plugin:       p,
		Metrics:      collector,
		Limiter:      limiter,
		Logger:       logger,
	})
	return server.ListenAndServe(ctx, cfg.ListenAddr)
}

// newBus returns the redis bus when REDIS_ADDR is set and reachable, and the
// logging bus otherwise.
func newBus(ctx context.Context, cfg *config.Config, logger *slog.Logger) events.Bus {
	if cfg.RedisAddr == "" {
		logger.Info("using log event bus")
		return events.NewLogBus(logger)
	}
	bus := events.NewRedisBus(cfg.RedisAddr, cfg.EventsPrefix, logger)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := bus.Ping(pingCtx); err != nil {
		logger.Error("redis unreachable, falling back to log event bus", "addr", cfg.RedisAddr, "error", err)
		closeWithLog(bus, "redis", logger)
		return events.NewLogBus(logger)
	}
	logger.Info("using redis event bus", "addr", cfg.RedisAddr, "prefix", cfg.EventsPrefix)
	return bus
}

func newSuggester(cfg *config.Config, history suggest.History, logger *slog.Logger) suggest.Suggester {
	switch {
	case cfg.ClaudeAPIKey != "":
		logger.Info("using Claude suggestion backend", "model", cfg.ClaudeModel)
		return claudesuggest.NewClaudeSuggester(cfg.ClaudeAPIKey, cfg.ClaudeModel, history, logger)
	case cfg.OllamaHost != "":
		logger.Info("using Ollama suggestion backend", "model", cfg.OllamaModel)
		return ollamasuggest.NewOllamaSuggester(cfg.OllamaHost, cfg.OllamaModel, history, logger)
	default:
		logger.Info("using purchase history suggestions")
		return suggest.NewHistorySuggester(history)
	}
}
