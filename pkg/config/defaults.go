package config

const (
	defaultStoreProvider   = "sqlite-vec"
	defaultStoreCollection = "memories"

	defaultLedgerProvider = "sqlite"

	defaultLLMProvider = "ollama"
	defaultLLMTarget   = "http://localhost:11434"
	defaultLLMModel    = "llama3.1"

	defaultEmbeddingModel      = "nomic-embed-text"
	defaultEmbeddingDimensions = 768
	defaultEmbeddingTarget     = "http://localhost:11434"

	defaultAPIListen = ":8321"

	defaultEngineCandidateLimit = 10
	defaultEngineMaxAttempts    = 3
	defaultEngineNumWorkers     = 3
	defaultEngineQueueSize      = 256

	defaultEventStreamProvider = "none"
	defaultEventStreamTopic    = "engram.memory.changes"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Store: StoreConfig{
			Provider:   defaultStoreProvider,
			Collection: defaultStoreCollection,
		},
		Ledger: LedgerConfig{
			Provider: defaultLedgerProvider,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultLLMProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		LLM: LLMConfig{
			Provider: defaultLLMProvider,
			Target:   defaultLLMTarget,
			Model:    defaultLLMModel,
		},
		Engine: EngineConfig{
			CandidateLimit: defaultEngineCandidateLimit,
			MaxAttempts:    defaultEngineMaxAttempts,
			NumWorkers:     defaultEngineNumWorkers,
			QueueSize:      defaultEngineQueueSize,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventStreamProvider,
			Topic:    defaultEventStreamTopic,
		},
	}
}
