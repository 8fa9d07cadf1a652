// Package engram assembles a complete memory system from configuration:
// store, ledger, embedder, LLM-backed extractor and classifier, change
// publisher, and the reconciliation engine on top of them.
package engram

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	classifyllm "github.com/papercomputeco/engram/pkg/classify/llm"
	"github.com/papercomputeco/engram/pkg/completion"
	"github.com/papercomputeco/engram/pkg/config"
	"github.com/papercomputeco/engram/pkg/dotdir"
	"github.com/papercomputeco/engram/pkg/embeddings"
	embeddingutils "github.com/papercomputeco/engram/pkg/embeddings/utils"
	"github.com/papercomputeco/engram/pkg/eventstream"
	"github.com/papercomputeco/engram/pkg/eventstream/kafka"
	"github.com/papercomputeco/engram/pkg/eventstream/nop"
	extractllm "github.com/papercomputeco/engram/pkg/extract/llm"
	"github.com/papercomputeco/engram/pkg/ledger"
	ledgerutils "github.com/papercomputeco/engram/pkg/ledger/utils"
	"github.com/papercomputeco/engram/pkg/reconcile"
	"github.com/papercomputeco/engram/pkg/store"
	storeutils "github.com/papercomputeco/engram/pkg/store/utils"
)

const (
	storeDBFile  = "memories.db"
	ledgerDBFile = "ledger.db"

	defaultQdrantPort = 6334
)

// System is a fully wired memory layer. The Engine owns every collaborator;
// the driver fields are exposed for read paths (search, get, history) that
// bypass reconciliation.
type System struct {
	Engine   *reconcile.Engine
	Store    store.Driver
	Ledger   ledger.Driver
	Embedder embeddings.Embedder
}

// New builds a System from the resolved configuration. Empty sqlite targets
// default to files in the .engram/ directory identified by configDir.
func New(ctx context.Context, cfg *config.Config, configDir string, logger *zap.Logger) (*System, error) {
	storeDriver, err := newStoreDriver(ctx, cfg, configDir, logger)
	if err != nil {
		return nil, fmt.Errorf("creating store driver: %w", err)
	}

	ledgerDriver, err := newLedgerDriver(ctx, cfg, configDir, logger)
	if err != nil {
		return nil, fmt.Errorf("creating ledger driver: %w", err)
	}

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: cfg.Embedding.Provider,
		TargetURL:    cfg.Embedding.Target,
		Model:        cfg.Embedding.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	call, err := completion.NewCaller(completion.Config{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.Target,
	})
	if err != nil {
		return nil, fmt.Errorf("creating completion caller: %w", err)
	}

	publisher, err := newPublisher(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating change publisher: %w", err)
	}

	engine, err := reconcile.NewEngine(reconcile.Config{
		Store:          storeDriver,
		Ledger:         ledgerDriver,
		Embedder:       embedder,
		Extractor:      extractllm.NewExtractor(call, logger),
		Classifier:     classifyllm.NewClassifier(call, logger),
		Publisher:      publisher,
		CandidateLimit: int(cfg.Engine.CandidateLimit),
		MaxAttempts:    int(cfg.Engine.MaxAttempts),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}

	return &System{
		Engine:   engine,
		Store:    storeDriver,
		Ledger:   ledgerDriver,
		Embedder: embedder,
	}, nil
}

// Close releases every collaborator via the engine.
func (s *System) Close() error {
	return s.Engine.Close()
}

func newStoreDriver(ctx context.Context, cfg *config.Config, configDir string, logger *zap.Logger) (store.Driver, error) {
	opts := &storeutils.NewStoreDriverOpts{
		ProviderType: cfg.Store.Provider,
		TargetURL:    cfg.Store.Target,
		Collection:   cfg.Store.Collection,
		Dimensions:   cfg.Embedding.Dimensions,
		Logger:       logger,
	}

	switch cfg.Store.Provider {
	case "sqlite-vec":
		path := cfg.Store.Target
		if path == "" {
			var err error
			path, err = dotdirFile(configDir, storeDBFile)
			if err != nil {
				return nil, err
			}
		}
		opts.DBPath = path

	case "qdrant":
		host, port, err := splitHostPort(cfg.Store.Target, defaultQdrantPort)
		if err != nil {
			return nil, fmt.Errorf("parsing qdrant target: %w", err)
		}
		opts.Host = host
		opts.Port = port
	}

	return storeutils.NewStoreDriver(ctx, opts)
}

func newLedgerDriver(ctx context.Context, cfg *config.Config, configDir string, logger *zap.Logger) (ledger.Driver, error) {
	opts := &ledgerutils.NewLedgerDriverOpts{
		ProviderType: cfg.Ledger.Provider,
		ConnString:   cfg.Ledger.Target,
		Logger:       logger,
	}

	if cfg.Ledger.Provider == "sqlite" {
		path := cfg.Ledger.Target
		if path == "" {
			var err error
			path, err = dotdirFile(configDir, ledgerDBFile)
			if err != nil {
				return nil, err
			}
		}
		opts.DBPath = path
	}

	return ledgerutils.NewLedgerDriver(ctx, opts)
}

func newPublisher(cfg *config.Config, logger *zap.Logger) (eventstream.Publisher, error) {
	switch cfg.EventStream.Provider {
	case "", "none":
		return nop.NewPublisher(), nil
	case "kafka":
		return kafka.NewPublisher(kafka.Config{
			Brokers: cfg.EventStream.BrokerList(),
			Topic:   cfg.EventStream.Topic,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported event stream provider: %s", cfg.EventStream.Provider)
	}
}

func dotdirFile(configDir, name string) (string, error) {
	target, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(target, name), nil
}

// splitHostPort parses "host:port" targets, tolerating a bare host.
func splitHostPort(target string, defaultPort int) (string, int, error) {
	if target == "" {
		return "localhost", defaultPort, nil
	}

	host, rawPort, err := net.SplitHostPort(target)
	if err != nil {
		return target, defaultPort, nil
	}

	port, err := strconv.Atoi(rawPort)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q", rawPort)
	}

	return host, port, nil
}
