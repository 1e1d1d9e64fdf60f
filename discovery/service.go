package discovery

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/jrsteele09/go-oidc-client/config"
	"github.com/jrsteele09/go-oidc-client/sessions"
	"github.com/jrsteele09/go-oidc-client/transport"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Service resolves ProviderMetadata for the configured issuer. Lookup order:
// in-memory cache, encrypted session store, network fetch. Results are
// persisted so restarted processes skip the network entirely.
type Service struct {
	cfg    *config.Config
	store  *sessions.SecureStore
	sender transport.Sender

	mu     sync.Mutex
	cached *ProviderMetadata
}

// NewService creates a discovery service.
func NewService(cfg *config.Config, store *sessions.SecureStore, sender transport.Sender) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("[discovery.NewService] config is required")
	}
	if store == nil {
		return nil, errors.New("[discovery.NewService] store is required")
	}
	if sender == nil {
		return nil, errors.New("[discovery.NewService] sender is required")
	}
	return &Service{cfg: cfg, store: store, sender: sender}, nil
}

// Metadata returns the provider metadata, fetching the discovery document
// if no cached copy exists.
func (s *Service) Metadata(ctx context.Context) (*ProviderMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil {
		return s.cached, nil
	}

	if metadata := s.fromStore(); metadata != nil {
		s.cached = metadata
		return metadata, nil
	}

	metadata, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	s.persist(metadata)
	s.cached = metadata
	return metadata, nil
}

// Cached reports whether metadata is already available without a fetch.
func (s *Service) Cached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cached != nil || s.fromStore() != nil
}

// Invalidate drops the cached document; the next Metadata call re-fetches.
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cached = nil
	if err := s.store.Delete(sessions.KeyProviderMetadata); err != nil {
		log.Warn().Err(err).Msg("failed to remove persisted provider metadata")
	}
}

func (s *Service) fromStore() *ProviderMetadata {
	payload, err := s.store.Get(sessions.KeyProviderMetadata)
	if err != nil {
		return nil
	}
	var metadata ProviderMetadata
	if err := json.Unmarshal(payload, &metadata); err != nil {
		log.Warn().Err(err).Msg("persisted provider metadata is corrupt, refetching")
		_ = s.store.Delete(sessions.KeyProviderMetadata)
		return nil
	}
	if err := metadata.Validate(s.cfg.Issuer); err != nil {
		return nil
	}
	return &metadata
}

func (s *Service) fetch(ctx context.Context) (*ProviderMetadata, error) {
	var metadata ProviderMetadata
	if err := transport.GetJSON(ctx, s.sender, s.cfg.DiscoveryURI, &metadata); err != nil {
		return nil, errors.Wrap(err, "[Service.Metadata] fetching discovery document")
	}
	if err := metadata.Validate(s.cfg.Issuer); err != nil {
		return nil, err
	}
	log.Debug().
		Str("issuer", metadata.Issuer).
		Str("token_endpoint", metadata.TokenEndpoint).
		Msg("discovered provider metadata")
	return &metadata, nil
}

func (s *Service) persist(metadata *ProviderMetadata) {
	payload, err := json.Marshal(metadata)
	if err != nil {
		log.Warn().Err(err).Msg("failed to marshal provider metadata")
		return
	}
	if err := s.store.Put(sessions.KeyProviderMetadata, payload); err != nil {
		// Cache write failure is not fatal; the document stays in memory.
		log.Warn().Err(err).Msg("failed to persist provider metadata")
	}
}
