package client

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("client not found")

type ClientRepository interface {
	Create(ctx context.Context, c *Client) error
	// Save inserts c or, when its ID exists, overwrites name and status.
	Save(ctx context.Context, c *Client) error
	GetByID(ctx context.Context, id uuid.UUID) (*Client, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, status string) ([]*Client, error)
	// FirstActive returns the active client that sorts first by name.
	FirstActive(ctx context.Context) (*Client, error)
}
