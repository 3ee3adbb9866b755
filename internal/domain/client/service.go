package client

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ehr/ehrsync/internal/platform/db"
	"github.com/ehr/ehrsync/pkg/fhirmodels"
)

type Service struct {
	clients ClientRepository
}

func NewService(clients ClientRepository) *Service {
	return &Service{clients: clients}
}

var validClientStatuses = map[string]bool{
	fhirmodels.ClientStatusActive:   true,
	fhirmodels.ClientStatusInactive: true,
}

func (s *Service) normalize(c *Client) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.Status == "" {
		c.Status = fhirmodels.ClientStatusActive
	}
	if !validClientStatuses[c.Status] {
		return fmt.Errorf("invalid status: %s", c.Status)
	}
	return nil
}

func (s *Service) CreateClient(ctx context.Context, c *Client) error {
	if err := s.normalize(c); err != nil {
		return err
	}
	return s.clients.Create(ctx, c)
}

// SaveClient creates c, or updates the client with c.ID when one exists.
func (s *Service) SaveClient(ctx context.Context, c *Client) error {
	if err := s.normalize(c); err != nil {
		return err
	}
	return s.clients.Save(ctx, c)
}

func (s *Service) GetClient(ctx context.Context, id uuid.UUID) (*Client, error) {
	return s.clients.GetByID(ctx, id)
}

func (s *Service) ListClients(ctx context.Context, status string) ([]*Client, error) {
	if status != "" && !validClientStatuses[status] {
		return nil, fmt.Errorf("invalid status: %s", status)
	}
	return s.clients.List(ctx, status)
}

func (s *Service) DeleteClient(ctx context.Context, id uuid.UUID) error {
	return s.clients.Delete(ctx, id)
}

// DefaultClientID is the tenant used when a request names none: the first
// active client by name. It returns db.ErrNoTenant when there is none.
func (s *Service) DefaultClientID(ctx context.Context) (uuid.UUID, error) {
	c, err := s.clients.FirstActive(ctx)
	if errors.Is(err, ErrNotFound) {
		return uuid.Nil, db.ErrNoTenant
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("lookup default client: %w", err)
	}
	return c.ID, nil
}
