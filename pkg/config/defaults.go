package config

const (
	defaultStorageDriver = "sqlite"
	defaultSQLiteFile    = "parley.db"

	defaultChatBaseURL = "https://app.mindos.com/gate/lab"
	defaultChatTimeout = "2m"

	defaultOAuthBaseURL = "https://app.mindos.com/gate/lab"

	defaultCompletionProvider = "openrouter"
	defaultCompletionBaseURL  = "https://openrouter.ai/api/v1"
	defaultCompletionModel    = "deepseek/deepseek-chat"
	defaultCompletionTimeout  = "60s"

	defaultMaxRounds   = 5
	defaultPeerLimit   = 10
	defaultCallTimeout = "2m"

	defaultAPIListen = ":8081"

	defaultEventsProvider  = "none"
	defaultEventsTopic     = "parley.events"
	defaultEventsWorkers   = 2
	defaultEventsQueueSize = 256

	defaultProgressProvider = "memory"
	defaultProgressTTL      = "24h"
)

// NewDefaultConfig returns a Config with every field set to its default.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver: defaultStorageDriver,
		},
		Chat: ChatConfig{
			BaseURL: defaultChatBaseURL,
			Timeout: defaultChatTimeout,
		},
		OAuth: OAuthConfig{
			BaseURL: defaultOAuthBaseURL,
		},
		Completion: CompletionConfig{
			Provider: defaultCompletionProvider,
			BaseURL:  defaultCompletionBaseURL,
			Model:    defaultCompletionModel,
			Timeout:  defaultCompletionTimeout,
		},
		Engine: EngineConfig{
			MaxRounds:   defaultMaxRounds,
			PeerLimit:   defaultPeerLimit,
			CallTimeout: defaultCallTimeout,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Events: EventsConfig{
			Provider:  defaultEventsProvider,
			Topic:     defaultEventsTopic,
			Workers:   defaultEventsWorkers,
			QueueSize: defaultEventsQueueSize,
		},
		Progress: ProgressConfig{
			Provider: defaultProgressProvider,
			TTL:      defaultProgressTTL,
		},
	}
}

// DefaultSQLiteFile is the database file created inside .parley/ when the
// sqlite driver is selected without an explicit path.
func DefaultSQLiteFile() string {
	return defaultSQLiteFile
}
