package ehrconfig

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"

	"github.com/ehr/ehrsync/pkg/fhirmodels"
)

type Service struct {
	configs ConfigurationRepository
}

func NewService(configs ConfigurationRepository) *Service {
	return &Service{configs: configs}
}

// Resolve returns the single configuration for the client and vendor.
// It never writes.
func (s *Service) Resolve(ctx context.Context, clientID uuid.UUID, system fhirmodels.EHRSystem) (*Configuration, error) {
	matches, err := s.configs.ListByClientAndSystem(ctx, clientID, system)
	if err != nil {
		return nil, fmt.Errorf("load ehr configuration: %w", err)
	}
	switch len(matches) {
	case 0:
		return nil, ErrConfigurationNotFound
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%w: client %s, system %s, %d rows",
			ErrConfigurationConflict, clientID, system, len(matches))
	}
}

func (s *Service) SaveConfiguration(ctx context.Context, cfg *Configuration) error {
	if cfg.ClientID == uuid.Nil {
		return fmt.Errorf("client_id is required")
	}
	if !cfg.EHRSystem.Valid() {
		return fmt.Errorf("invalid ehr_system: %s", cfg.EHRSystem)
	}
	u, err := url.Parse(cfg.APIEndpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api_endpoint must be an absolute http(s) URL")
	}
	return s.configs.Upsert(ctx, cfg)
}

func (s *Service) ListConfigurations(ctx context.Context, clientID uuid.UUID) ([]*Configuration, error) {
	return s.configs.ListByClient(ctx, clientID)
}

func (s *Service) DeleteConfiguration(ctx context.Context, clientID uuid.UUID, system fhirmodels.EHRSystem) error {
	return s.configs.Delete(ctx, clientID, system)
}
