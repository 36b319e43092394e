package ailink

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/namelens/chatgate/internal/core"
)

// DefaultEnvKeys are the environment variables consulted, in order, by the
// last link of the default chain.
var DefaultEnvKeys = []string{"CHATGATE_API_KEY", "OPENAI_API_KEY"}

// CredentialSource is one link of a CredentialChain. An empty Secret with a
// nil error means the source has nothing to offer.
type CredentialSource interface {
	Name() string
	Lookup(ctx context.Context) (Secret, error)
}

// CredentialStore is the primary persistent credential store.
type CredentialStore interface {
	GetCredential(ctx context.Context, provider string) (string, error)
}

// StaticSource is an explicit override.
type StaticSource struct {
	Key Secret
}

func (StaticSource) Name() string { return "explicit" }

func (s StaticSource) Lookup(context.Context) (Secret, error) {
	return NewSecret(strings.TrimSpace(s.Key.Expose())), nil
}

// StoreSource reads the provider's key from the credential store.
type StoreSource struct {
	Store    CredentialStore
	Provider string
}

func (StoreSource) Name() string { return "store" }

func (s StoreSource) Lookup(ctx context.Context) (Secret, error) {
	if s.Store == nil {
		return Secret{}, nil
	}
	key, err := s.Store.GetCredential(ctx, s.Provider)
	if err != nil {
		return Secret{}, err
	}
	return NewSecret(strings.TrimSpace(key)), nil
}

// ConfigSource selects a key from ailink.providers.<id>.credentials.
type ConfigSource struct {
	Registry   *Registry
	ProviderID string
}

func (ConfigSource) Name() string { return "config" }

func (s ConfigSource) Lookup(context.Context) (Secret, error) {
	return NewSecret(s.Registry.ConfigCredential(s.ProviderID)), nil
}

// EnvSource reads the first non-empty variable from Keys.
type EnvSource struct {
	Keys   []string
	Getenv func(string) string
}

func (EnvSource) Name() string { return "env" }

func (s EnvSource) Lookup(context.Context) (Secret, error) {
	getenv := s.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	keys := s.Keys
	if len(keys) == 0 {
		keys = DefaultEnvKeys
	}
	for _, key := range keys {
		if value := strings.TrimSpace(getenv(key)); value != "" {
			return NewSecret(value), nil
		}
	}
	return Secret{}, nil
}

// CredentialChain resolves a credential from its sources, first match wins.
// A failing source is logged and skipped so a broken store does not hide an
// environment key.
type CredentialChain struct {
	Sources []CredentialSource
	Logger  *zap.Logger
}

// NewCredentialChain returns a chain over sources in order.
func NewCredentialChain(sources ...CredentialSource) *CredentialChain {
	return &CredentialChain{Sources: sources}
}

// Prepend returns a new chain with src consulted first.
func (c *CredentialChain) Prepend(src CredentialSource) *CredentialChain {
	next := &CredentialChain{Sources: []CredentialSource{src}}
	if c != nil {
		next.Sources = append(next.Sources, c.Sources...)
		next.Logger = c.Logger
	}
	return next
}

// Resolve returns the first non-empty credential, or "" when none exists.
func (c *CredentialChain) Resolve(ctx context.Context) (string, error) {
	secret, _, err := c.Lookup(ctx)
	return secret.Expose(), err
}

// Lookup is Resolve plus the name of the source that matched.
func (c *CredentialChain) Lookup(ctx context.Context) (Secret, string, error) {
	if c == nil {
		return Secret{}, "", nil
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	for _, src := range c.Sources {
		if err := ctx.Err(); err != nil {
			return Secret{}, "", err
		}
		secret, err := src.Lookup(ctx)
		if err != nil {
			if core.IsContextError(err) {
				return Secret{}, "", err
			}
			logger.Warn("credential source failed", zap.String("source", src.Name()), zap.Error(err))
			continue
		}
		if !secret.IsEmpty() {
			logger.Debug("credential resolved", zap.String("source", src.Name()))
			return secret, src.Name(), nil
		}
	}
	return Secret{}, "", nil
}
