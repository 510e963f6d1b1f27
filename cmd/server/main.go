// Package main is the entry point of the application
package main

import (
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cbatu/game-server/internal/auth"
	"github.com/cbatu/game-server/pkg/config"
	"github.com/cbatu/game-server/pkg/events"
	"github.com/cbatu/game-server/pkg/repository"
	"github.com/cbatu/game-server/pkg/server"
	"github.com/cbatu/game-server/pkg/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,

	CheckOrigin: func(r *http.Request) bool {
		path := os.Getenv("FRONTEND_PATH")
		if path == "" {
			return true
		}
		return path == r.Header.Get("Origin")
	},
}

// application encapsulates global dependencies
type application struct {
	Auth     *auth.APIKeyAuth
	Logger   *zap.Logger
	Config   *config.Config
	Sessions *session.Store
	Hub      *server.Hub
	Server   *http.Server

	closers []func() error

	StartTime time.Time
}

func main() {
	debug := flag.Bool("debug", false, "enable debug logging")
	port := flag.String("port", "8080", "server port")
	flag.Parse()

	cfg := &config.Config{
		Debug: *debug,
		Port:  *port,
	}

	// Initialize logger
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file loaded", zap.Error(err))
	}
	cfg.FromEnv()

	app := &application{
		Auth:      auth.NewAPIKeyAuth(cfg.APIKeys),
		Logger:    logger,
		Config:    cfg,
		StartTime: time.Now(),
	}

	// Durable game-record store: redis when configured, memory otherwise.
	var records repository.GameStore
	if cfg.RedisURL != "" {
		redisStore, err := repository.NewRedisStore(cfg.RedisURL, cfg.RecordTTL)
		if err != nil {
			logger.Fatal("connect redis", zap.Error(err))
		}
		app.closers = append(app.closers, redisStore.Close)
		records = redisStore
	} else {
		logger.Warn("REDIS_URL not set, game records are in-memory only")
		records = repository.NewMemoryStore(logger)
	}

	// Optional archive of finished games.
	var archive repository.ResultArchive
	if cfg.DatabaseURL != "" {
		pg, err := repository.NewArchive(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("connect postgres archive", zap.Error(err))
		}
		app.closers = append(app.closers, pg.Close)
		archive = pg
	}

	publisher := events.NewPublisher()

	app.Sessions = session.NewStore(records, archive, publisher, session.Settings{
		DefaultInitialTime: cfg.DefaultInitialTime,
		DefaultIncrement:   cfg.DefaultIncrement,
		ReconnectGrace:     cfg.ReconnectGrace,
		ReconcileThreshold: cfg.ReconcileThreshold,
		RetentionWindow:    cfg.RetentionWindow,
	}, logger)

	app.Hub = server.NewHub(app.Sessions, publisher, logger)
	go app.Hub.Run()

	if err := app.serve(); err != nil {
		logger.Fatal("error serving", zap.Error(err))
	}
}

func initLogger(debug bool) *zap.Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	return logger
}

// Shutdown cleans up resources
func (app *application) Shutdown() {
	if app.Hub != nil {
		app.Hub.Shutdown()
	}
	if app.Sessions != nil {
		app.Sessions.Shutdown()
	}
	for _, closeFn := range app.closers {
		if err := closeFn(); err != nil {
			app.Logger.Warn("close dependency", zap.Error(err))
		}
	}

	app.Logger.Info("All components shut down successfully")
}
