package client

import (
	"time"

	"github.com/google/uuid"
)

// Client is a healthcare organization served by the service. Every
// configuration and synced patient belongs to exactly one client.
type Client struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (c *Client) IsActive() bool {
	return c.Status == "active"
}
