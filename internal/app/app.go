// Package app initializes and runs the user API.
// It configures logging, storage and routing, starts the HTTP server
// and the optional gRPC health server, and handles graceful shutdown.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/patric-chuzhbe/userapi/internal/config"
	"github.com/patric-chuzhbe/userapi/internal/db/memorystorage"
	"github.com/patric-chuzhbe/userapi/internal/db/postgresdb"
	"github.com/patric-chuzhbe/userapi/internal/db/sqlitedb"
	"github.com/patric-chuzhbe/userapi/internal/grpcserver"
	"github.com/patric-chuzhbe/userapi/internal/ipchecker"
	"github.com/patric-chuzhbe/userapi/internal/logger"
	"github.com/patric-chuzhbe/userapi/internal/models"
	"github.com/patric-chuzhbe/userapi/internal/router"
	"github.com/patric-chuzhbe/userapi/internal/service"
)

const shutdownTimeout = 10 * time.Second

type transactioner interface {
	BeginTransaction(ctx context.Context) (*sql.Tx, error)

	RollbackTransaction(transaction *sql.Tx) error

	CommitTransaction(transaction *sql.Tx) error
}

type userKeeper interface {
	GetUsers(ctx context.Context) (models.Users, error)

	FindUserByUsernameOrEmail(
		ctx context.Context,
		username,
		email string,
		transaction *sql.Tx,
	) (*models.User, bool, error)

	GetUserByID(ctx context.Context, id int64, transaction *sql.Tx) (*models.User, bool, error)

	InsertUser(
		ctx context.Context,
		username,
		email string,
		transaction *sql.Tx,
	) (*models.User, error)

	DeleteUserByID(ctx context.Context, id int64, transaction *sql.Tx) error

	GetNumberOfUsers(ctx context.Context) (int64, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type storage interface {
	userKeeper
	transactioner
	pinger
	Close() error
}

// App encapsulates the configuration, HTTP handler, storage backend
// and gRPC health handler needed to run the user API.
type App struct {
	cfg           *config.Config
	db            storage
	httpHandler   http.Handler
	healthHandler *grpcserver.HealthHandler
}

// New initializes a new instance of App by:
// - loading configuration
// - initializing logger
// - selecting and setting up storage
// - setting up the service, the router and the health handler
func New() (*App, error) {
	var err error
	app := &App{}

	app.cfg, err = config.New()
	if err != nil {
		return nil, err
	}

	err = logger.Init(app.cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	if app.cfg.IsDefaultSecretKey() {
		logger.Log.Warnln("SECRET_KEY is not set, the development default is in use")
	}

	app.db, err = getStorageByType(app.cfg)
	if err != nil {
		return nil, err
	}

	checker, err := ipchecker.New(app.cfg.TrustedSubnet)
	if err != nil {
		_ = app.db.Close()
		return nil, err
	}

	userService := service.New(app.db)

	app.httpHandler = router.New(userService, checker, app.cfg.AllowedOrigins())
	app.healthHandler = grpcserver.NewHealthHandler(userService)

	return app, nil
}

// Run starts the HTTP server, and the gRPC health server when GRPC_ADDRESS
// is set, with graceful shutdown support.
// It listens for system signals and cleans up resources upon termination.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Log.Infoln("server running", "RunAddr", a.cfg.RunAddr)

	server := &http.Server{
		Addr:    a.cfg.RunAddr,
		Handler: a.httpHandler,
	}

	serverErrCh := make(chan error, 2)
	go func() {
		serverErrCh <- server.ListenAndServe()
	}()

	var grpcServer *grpc.Server
	if a.cfg.GRPCAddr != "" {
		var lis net.Listener
		var err error
		grpcServer, lis, err = grpcserver.NewGRPCServer(a.cfg.GRPCAddr, a.healthHandler)
		if err != nil {
			_ = server.Close()
			if closeErr := a.db.Close(); closeErr != nil {
				logger.Log.Errorln("unable to close storage", zap.Error(closeErr))
			}
			return fmt.Errorf("in internal/app/app.go/Run(): error while `grpcserver.NewGRPCServer()` calling: %w", err)
		}

		a.healthHandler.Refresh(ctx)
		logger.Log.Infoln("grpc server running", "GRPCAddr", a.cfg.GRPCAddr)

		go func() {
			serverErrCh <- grpcServer.Serve(lis)
		}()
	}

	select {
	case <-ctx.Done():
		logger.Log.Infoln("Received shutdown signal. Closing servers and storage...")

		a.healthHandler.Shutdown()
		if grpcServer != nil {
			grpcServer.GracefulStop()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		return a.db.Close()

	case err := <-serverErrCh:
		if grpcServer != nil {
			grpcServer.Stop()
		}
		_ = server.Close()
		if closeErr := a.db.Close(); closeErr != nil {
			logger.Log.Errorln("unable to close storage", zap.Error(closeErr))
		}

		return fmt.Errorf("server error: %w", err)
	}
}

// Close finalizes resources used by App such as logging.
func (a *App) Close() {
	if err := logger.Sync(); err != nil {
		fmt.Println("Logger sync error:", err)
	}
}

func getAvailableStorageType(databaseURL string) int {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return models.StorageTypeUnknown
	}

	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return models.StorageTypePostgresql
	case "sqlite", "file":
		return models.StorageTypeSQLite
	case "memory":
		return models.StorageTypeMemory
	}

	return models.StorageTypeUnknown
}

// sqlitePath extracts the database file from sqlite:///abs/path.db,
// sqlite://relative/path.db, file:path.db or file:///abs/path.db.
func sqlitePath(databaseURL string) (string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return "", err
	}

	path := parsed.Opaque
	if path == "" {
		path = parsed.Host + parsed.Path
	}
	if path == "" {
		return "", fmt.Errorf("no database file in %q", databaseURL)
	}

	return path, nil
}

func getStorageByType(cfg *config.Config) (storage, error) {
	switch getAvailableStorageType(cfg.DatabaseURL) {
	case models.StorageTypePostgresql:
		return postgresdb.New(
			context.Background(),
			cfg.DatabaseURL,
			cfg.DBConnectionTimeout,
		)

	case models.StorageTypeSQLite:
		path, err := sqlitePath(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("in internal/app/app.go/getStorageByType(): error while `sqlitePath()` calling: %w", err)
		}

		return sqlitedb.New(context.Background(), path, cfg.DBConnectionTimeout)

	case models.StorageTypeMemory:
		return memorystorage.New()
	}

	return nil, errors.New("unknown storage type")
}
