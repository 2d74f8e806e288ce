package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jrsteele09/go-rollcall/credentials"
	"github.com/jrsteele09/go-rollcall/internal/config"
	"github.com/jrsteele09/go-rollcall/internal/logging"
	"github.com/jrsteele09/go-rollcall/token"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const credentialsFile = "credentials.json"

// app holds the pieces every command needs.
type app struct {
	cfg       config.Config
	logger    zerolog.Logger
	durable   *credentials.FileStore
	ephemeral *credentials.MemoryStore
	tokens    *token.Manager
}

// newApp loads configuration and credentials. OIDC discovery is a network
// call, so only commands that talk to the provider ask for it.
func newApp(ctx context.Context, discover bool) (*app, error) {
	cfg := config.New()
	logger := logging.New(cfg.GetLogLevel(), cfg.GetEnv())
	log.Logger = logger

	durable, err := credentials.OpenFileStore(filepath.Join(cfg.GetDataFolder(), credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	ephemeral := credentials.NewMemoryStore(cfg.GetVerifierTTL())

	options := []token.ManagerOption{token.WithLogger(logger)}
	if discover {
		discovery, err := token.Discover(ctx, cfg)
		if err != nil {
			return nil, err
		}
		options = append(options, token.WithDiscovery(discovery))
	}

	tokens, err := token.NewManager(cfg, durable, ephemeral, options...)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		durable:   durable,
		ephemeral: ephemeral,
		tokens:    tokens,
	}, nil
}
