package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/envsync/envsync/internal/config"
	"github.com/envsync/envsync/internal/database"
	"github.com/envsync/envsync/internal/objectstore"
	"github.com/envsync/envsync/internal/paths"
)

// Connection factories, swapped out in tests.
var (
	openDB        = connectDB
	openStore     = connectStore
	openStructure = connectStructure
)

func currentLogger() *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func currentConfig() *config.Config {
	if appCfg != nil {
		return appCfg
	}
	return config.Default()
}

// connectDB connects to the engine database of env.
func connectDB(ctx context.Context, engine config.Engine, env config.Env, layout paths.Layout) (database.DB, error) {
	params, err := config.DBParams(engine, env)
	if err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	cfg := currentConfig()
	db, err := database.New(engine, params, database.Options{
		ChunkSize: cfg.Load.ChunkSize,
		BackupDir: layout.ConstraintBackupDir(),
		Logger:    currentLogger(),
	})
	if err != nil {
		return nil, err
	}
	currentLogger().Info("connecting", "engine", string(engine), "env", string(env), "db", params.String())
	if err := db.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connecting to %s %s: %w", engine, env, err)
	}
	return db, nil
}

// connectStore opens the object store bucket of env.
func connectStore(ctx context.Context, env config.Env) (*objectstore.Store, error) {
	params, err := config.ObjectStoreParams(env)
	if err != nil {
		return nil, err
	}
	client, err := objectstore.NewS3Client(ctx, params, currentConfig().ObjectStore.Region)
	if err != nil {
		return nil, err
	}
	return objectstore.New(client, params.Bucket, currentLogger()), nil
}

// connectStructure connects to the Oracle database the structure commands
// read their catalog from.
func connectStructure(ctx context.Context) (structureDB, func() error, error) {
	params, err := config.StructureParams()
	if err != nil {
		return nil, nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, nil, err
	}
	db := database.NewOracle(params, database.Options{Logger: currentLogger()})
	if err := db.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("connecting to %s: %w", params.String(), err)
	}
	return db, db.Close, nil
}

// parseTarget validates the database and environment arguments before any
// connection is made.
func parseTarget(dbArg, envArg string) (config.Engine, config.Env, error) {
	engine, err := config.ParseEngine(dbArg)
	if err != nil {
		return "", "", err
	}
	env, err := config.ParseEnv(envArg)
	if err != nil {
		return "", "", err
	}
	return engine, env, nil
}

func layoutFor(engine config.Engine, env config.Env) paths.Layout {
	cfg := currentConfig()
	return paths.New(cfg.DataDir, env, database.TypeFor(engine), cfg.ObjectStore.Prefix)
}
