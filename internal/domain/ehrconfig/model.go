package ehrconfig

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/ehrsync/pkg/fhirmodels"
)

// Configuration holds one client's connection settings for one vendor.
// At most one exists per (ClientID, EHRSystem).
type Configuration struct {
	ID                 uuid.UUID            `db:"id" json:"id"`
	ClientID           uuid.UUID            `db:"client_id" json:"client_id"`
	EHRSystem          fhirmodels.EHRSystem `db:"ehr_system" json:"ehr_system"`
	APIEndpoint        string               `db:"api_endpoint" json:"api_endpoint"`
	ClientIDCredential string               `db:"client_id_credential" json:"client_id_credential,omitempty"`
	ClientSecret       string               `db:"client_secret" json:"-"`
	AdditionalConfig   map[string]any       `db:"additional_config" json:"additional_config,omitempty"`
	CreatedAt          time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time            `db:"updated_at" json:"updated_at"`
}

// Headers returns the static request headers listed under
// additional_config.headers. Non-string values are ignored.
func (c *Configuration) Headers() map[string]string {
	raw, ok := c.AdditionalConfig["headers"].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// ConfigurationView is the API representation. The secret is never returned.
type ConfigurationView struct {
	*Configuration
	HasSecret bool `json:"has_secret"`
}

func (c *Configuration) View() ConfigurationView {
	return ConfigurationView{Configuration: c, HasSecret: c.ClientSecret != ""}
}
