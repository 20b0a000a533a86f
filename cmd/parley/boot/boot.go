// Package boot loads configuration and builds the App for parley commands.
package boot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/pkg/app"
	"github.com/papercomputeco/parley/pkg/config"
	"github.com/papercomputeco/parley/pkg/conversations"
	"github.com/papercomputeco/parley/pkg/engine"
	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/storage"
)

// Logger builds the CLI logger honouring the global --debug flag.
func Logger(cmd *cobra.Command) *slog.Logger {
	debug, _ := cmd.Flags().GetBool("debug")
	return logger.New(
		logger.WithDebug(debug),
		logger.WithPretty(true),
		logger.WithWriter(cmd.ErrOrStderr()),
	)
}

// Config resolves the configuration for cmd. Flags named by flagKeys take
// precedence over the environment, the config file and the defaults.
func Config(cmd *cobra.Command, flagKeys []string) (*config.Config, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, err
	}
	config.BindRegisteredFlags(v, cmd, config.Flags, flagKeys)

	cfg, err := config.Load(v)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// Open builds the App for cmd. The caller closes it.
func Open(ctx context.Context, cmd *cobra.Command, flagKeys []string) (*app.App, *slog.Logger, error) {
	cfg, err := Config(cmd, flagKeys)
	if err != nil {
		return nil, nil, err
	}

	log := Logger(cmd)
	configDir, _ := cmd.Flags().GetString("config-dir")

	a, err := app.New(ctx, cfg, app.Options{ConfigDir: configDir, Logger: log})
	if err != nil {
		return nil, nil, err
	}
	return a, log, nil
}

// StoreFlags are the flags every command that touches the record store takes.
var StoreFlags = []string{
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgres,
}

// AddStoreFlags registers StoreFlags on cmd.
func AddStoreFlags(cmd *cobra.Command) {
	var driver, sqlitePath, dsn string
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &driver)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &dsn)
}

// EngineFlags are the flags of commands that run negotiations.
var EngineFlags = append([]string{
	config.FlagChatBaseURL,
	config.FlagCompletionProvider,
	config.FlagCompletionURL,
	config.FlagCompletionModel,
	config.FlagMaxRounds,
	config.FlagPeerLimit,
	config.FlagEventsProvider,
	config.FlagEventsBrokers,
	config.FlagEventsWorkers,
	config.FlagProgressProvider,
	config.FlagRedisAddr,
}, StoreFlags...)

// AddEngineFlags registers EngineFlags on cmd.
func AddEngineFlags(cmd *cobra.Command) {
	AddStoreFlags(cmd)

	var chatURL, provider, completionURL, model, events, brokers, progress, redisAddr string
	var maxRounds, peerLimit, workers uint
	config.AddStringFlag(cmd, config.Flags, config.FlagChatBaseURL, &chatURL)
	config.AddStringFlag(cmd, config.Flags, config.FlagCompletionProvider, &provider)
	config.AddStringFlag(cmd, config.Flags, config.FlagCompletionURL, &completionURL)
	config.AddStringFlag(cmd, config.Flags, config.FlagCompletionModel, &model)
	config.AddUintFlag(cmd, config.Flags, config.FlagMaxRounds, &maxRounds)
	config.AddUintFlag(cmd, config.Flags, config.FlagPeerLimit, &peerLimit)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventsProvider, &events)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventsBrokers, &brokers)
	config.AddUintFlag(cmd, config.Flags, config.FlagEventsWorkers, &workers)
	config.AddStringFlag(cmd, config.Flags, config.FlagProgressProvider, &progress)
	config.AddStringFlag(cmd, config.Flags, config.FlagRedisAddr, &redisAddr)
}

// OpenStore opens only the record store, for commands that need no
// completion provider or proxy backend.
func OpenStore(ctx context.Context, cmd *cobra.Command) (storage.Driver, error) {
	cfg, err := Config(cmd, StoreFlags)
	if err != nil {
		return nil, err
	}
	configDir, _ := cmd.Flags().GetString("config-dir")
	return app.NewStore(ctx, cfg.Storage, configDir, Logger(cmd))
}

// ChatFlags are the flags of commands that talk to proxies directly,
// without a completion provider.
var ChatFlags = append([]string{config.FlagChatBaseURL}, StoreFlags...)

// AddChatFlags registers ChatFlags on cmd.
func AddChatFlags(cmd *cobra.Command) {
	AddStoreFlags(cmd)
	var chatURL string
	config.AddStringFlag(cmd, config.Flags, config.FlagChatBaseURL, &chatURL)
}

// OpenConversations opens the record store and a conversation service backed
// by the proxy chat backend. The caller closes the returned store.
func OpenConversations(ctx context.Context, cmd *cobra.Command) (*conversations.Service, storage.Driver, error) {
	cfg, err := Config(cmd, ChatFlags)
	if err != nil {
		return nil, nil, err
	}
	log := Logger(cmd)
	configDir, _ := cmd.Flags().GetString("config-dir")

	store, err := app.NewStore(ctx, cfg.Storage, configDir, log)
	if err != nil {
		return nil, nil, err
	}
	svc, err := conversations.New(conversations.Config{
		Store:       store,
		Sender:      app.NewSender(cfg, store, log),
		CallTimeout: config.Duration(cfg.Engine.CallTimeout, engine.DefaultCallTimeout),
		Logger:      log.With("component", "conversations"),
	})
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return svc, store, nil
}

// Context returns cmd's context, or a background context when unset.
func Context(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
