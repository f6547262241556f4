// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/cordless/internal/account"
	"github.com/jason-s-yu/cordless/internal/auth"
	"github.com/jason-s-yu/cordless/internal/config"
	"github.com/jason-s-yu/cordless/internal/database"
	"github.com/jason-s-yu/cordless/internal/feed"
	"github.com/jason-s-yu/cordless/internal/friends"
	"github.com/jason-s-yu/cordless/internal/handlers"
	"github.com/jason-s-yu/cordless/internal/notify"
	"github.com/jason-s-yu/cordless/internal/session"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

// userStore is what the services need from whichever store backs users.
type userStore interface {
	account.UserStore
	friends.UserStore
	handlers.UserLookup
}

type stores struct {
	users    userStore
	sessions session.Store
	friends  database.FriendStore
	close    func()
}

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}
	configureLogger(logger, cfg)
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to open stores")
	}
	defer st.close()

	changes, closeFeed, err := openFeed(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to open change feed")
	}
	defer closeFeed()

	tickets, err := newTicketSigner(cfg)
	if err != nil {
		logger.WithError(err).Fatal("failed to set up realtime tickets")
	}

	sessions := session.NewManager(session.Config{MaxAge: cfg.SessionMaxAge}, st.sessions, logger)
	accounts := account.NewService(st.users, sessions, auth.NewHasher(nil), logger)
	engine := friends.NewEngine(st.users, database.NewPublishingFriends(st.friends, changes, logger), logger)

	var source notify.Source
	if cfg.RealtimeMode == config.RealtimePoll {
		source = notify.NewPollSource(engine, cfg.PollInterval, logger)
	} else {
		source = notify.NewPushSource(changes, engine, logger)
	}

	api := &handlers.APIServer{
		Accounts:      accounts,
		Sessions:      sessions,
		Friends:       engine,
		Tickets:       tickets,
		Users:         st.users,
		Source:        source,
		Names:         st.users,
		SecureCookies: cfg.Production(),
		Logger:        logger,
	}

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":     server.Addr,
			"store":    cfg.Store,
			"realtime": cfg.RealtimeMode,
		}).Info("listening")
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("failed to serve")
		}
	case <-ctx.Done():
		logger.Info("terminating")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("shutdown did not complete cleanly")
	}
}

func configureLogger(logger *logrus.Logger, cfg *config.Config) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warnf("unknown LOG_LEVEL %q, using info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
}

func openStores(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*stores, error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using in-memory store, data is lost on restart")
		mem := database.NewMemory()
		return &stores{users: mem, sessions: mem, friends: mem, close: func() {}}, nil
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.RunMigrations {
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("database migrations applied")
	}
	return &stores{
		users:    database.NewUsers(pool),
		sessions: database.NewSessions(pool),
		friends:  database.NewFriends(pool),
		close:    pool.Close,
	}, nil
}

// openFeed returns the Redis feed when REDIS_ADDR is set. Without Redis,
// push mode only sees changes made by this process.
func openFeed(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (feed.Feed, func(), error) {
	if cfg.RedisAddr == "" {
		logger.Info("using in-process change feed")
		return feed.NewMemory(), func() {}, nil
	}

	rdb, err := feed.DialRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		return nil, nil, err
	}
	return feed.NewRedis(rdb, logger), func() { _ = rdb.Close() }, nil
}

func newTicketSigner(cfg *config.Config) (*auth.TicketSigner, error) {
	if cfg.TicketSigningSeed != "" {
		return auth.NewTicketSignerFromSeed(cfg.TicketSigningSeed, cfg.TicketTTL)
	}
	return auth.NewTicketSigner(cfg.TicketTTL)
}
