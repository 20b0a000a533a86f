package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands and descriptions inline, so the same logical flag cannot drift
// between "parley serve" and "parley broadcast".
type Flag struct {
	// Name is the long flag name (e.g. "max-rounds").
	Name string

	// Shorthand is the one-letter short flag. Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "engine.max_rounds").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of registry keys to Flag definitions.
type FlagSet map[string]Flag

// Flag registry keys.
const (
	FlagListen             = "listen"
	FlagStorageDriver      = "storage-driver"
	FlagSQLite             = "sqlite"
	FlagPostgres           = "postgres"
	FlagChatBaseURL        = "chat-url"
	FlagCompletionProvider = "completion-provider"
	FlagCompletionURL      = "completion-url"
	FlagCompletionModel    = "completion-model"
	FlagMaxRounds          = "max-rounds"
	FlagPeerLimit          = "peer-limit"
	FlagEventsProvider     = "events-provider"
	FlagEventsBrokers      = "kafka-brokers"
	FlagEventsWorkers      = "events-workers"
	FlagProgressProvider   = "progress-provider"
	FlagRedisAddr          = "redis-addr"
)

// Flags is the registry shared by every parley command.
var Flags = FlagSet{
	FlagListen:             {Name: "listen", Shorthand: "l", ViperKey: "api.listen", Description: "Address for the API server to listen on"},
	FlagStorageDriver:      {Name: "storage", ViperKey: "storage.driver", Description: "Record store driver (sqlite, postgres, memory)"},
	FlagSQLite:             {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to SQLite database"},
	FlagPostgres:           {Name: "postgres", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string"},
	FlagChatBaseURL:        {Name: "chat-url", ViperKey: "chat.base_url", Description: "Base URL of the digital proxy chat backend"},
	FlagCompletionProvider: {Name: "completion-provider", ViperKey: "completion.provider", Description: "Completion provider (openrouter, openai, anthropic, ollama)"},
	FlagCompletionURL:      {Name: "completion-url", ViperKey: "completion.base_url", Description: "Completion provider base URL"},
	FlagCompletionModel:    {Name: "completion-model", Shorthand: "m", ViperKey: "completion.model", Description: "Completion model"},
	FlagMaxRounds:          {Name: "max-rounds", ViperKey: "engine.max_rounds", Description: "Maximum rounds per negotiation"},
	FlagPeerLimit:          {Name: "peer-limit", ViperKey: "engine.peer_limit", Description: "Maximum peers contacted per broadcast"},
	FlagEventsProvider:     {Name: "events", ViperKey: "events.provider", Description: "Event publisher (none, kafka)"},
	FlagEventsBrokers:      {Name: "kafka-brokers", ViperKey: "events.brokers", Description: "Comma separated Kafka broker addresses"},
	FlagEventsWorkers:      {Name: "events-workers", ViperKey: "events.workers", Description: "Number of async event publishing workers"},
	FlagProgressProvider:   {Name: "progress", ViperKey: "progress.provider", Description: "Progress store (memory, redis)"},
	FlagRedisAddr:          {Name: "redis-addr", ViperKey: "progress.redis_addr", Description: "Redis address for the progress store"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper. Call this in
// PreRunE after InitViper to connect flags to the precedence chain
// (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}
