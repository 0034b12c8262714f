package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/avelasquez/identity-cassandra/config"
	"github.com/avelasquez/identity-cassandra/store/cassandra"
)

func main() {
	logger, err := newLogger()
	if err != nil {
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	// Load configuration
	opts, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	// Open session without a bound keyspace: the initializer creates the
	// keyspace itself when it is missing.
	cluster, err := opts.Cluster()
	if err != nil {
		logger.Fatal("failed to build cluster configuration", zap.Error(err))
	}

	session, err := cluster.CreateSession()
	if err != nil {
		logger.Fatal("failed to connect to cassandra", zap.Error(err))
	}
	defer session.Close()
	logger.Info("cassandra connection established",
		zap.Strings("contact_points", opts.ContactPoints),
		zap.String("keyspace", opts.KeyspaceName))

	initializer, err := cassandra.NewInitializer(session, opts, logger)
	if err != nil {
		logger.Fatal("failed to build initializer", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := initializer.Initialize(ctx); err != nil {
		logger.Fatal("schema initialization failed", zap.Error(err))
	}

	logger.Info("identity schema initialized",
		zap.String("users_table", opts.Tables.UsersTable()),
		zap.String("roles_table", opts.Tables.RolesTable()))
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("ENVIRONMENT") == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
