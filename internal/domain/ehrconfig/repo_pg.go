package ehrconfig

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/ehrsync/internal/platform/db"
	"github.com/ehr/ehrsync/pkg/fhirmodels"
)

type configRepoPG struct{ pool *pgxpool.Pool }

func NewConfigurationRepoPG(pool *pgxpool.Pool) ConfigurationRepository {
	return &configRepoPG{pool: pool}
}

func (r *configRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const configCols = `id, client_id, ehr_system, api_endpoint, client_id_credential,
	client_secret, additional_config, created_at, updated_at`

func scanConfiguration(row pgx.Row) (*Configuration, error) {
	var c Configuration
	err := row.Scan(&c.ID, &c.ClientID, &c.EHRSystem, &c.APIEndpoint, &c.ClientIDCredential,
		&c.ClientSecret, &c.AdditionalConfig, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *configRepoPG) Upsert(ctx context.Context, cfg *Configuration) error {
	if cfg.AdditionalConfig == nil {
		cfg.AdditionalConfig = map[string]any{}
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO ehr_configurations (id, client_id, ehr_system, api_endpoint,
			client_id_credential, client_secret, additional_config)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (client_id, ehr_system) DO UPDATE SET
			api_endpoint = EXCLUDED.api_endpoint,
			client_id_credential = EXCLUDED.client_id_credential,
			client_secret = EXCLUDED.client_secret,
			additional_config = EXCLUDED.additional_config,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		uuid.New(), cfg.ClientID, cfg.EHRSystem, cfg.APIEndpoint,
		cfg.ClientIDCredential, cfg.ClientSecret, cfg.AdditionalConfig,
	).Scan(&cfg.ID, &cfg.CreatedAt, &cfg.UpdatedAt)
}

func (r *configRepoPG) list(ctx context.Context, query string, args ...interface{}) ([]*Configuration, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Configuration
	for rows.Next() {
		c, err := scanConfiguration(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *configRepoPG) ListByClientAndSystem(ctx context.Context, clientID uuid.UUID, system fhirmodels.EHRSystem) ([]*Configuration, error) {
	return r.list(ctx, `SELECT `+configCols+` FROM ehr_configurations
		WHERE client_id = $1 AND ehr_system = $2`, clientID, system)
}

func (r *configRepoPG) ListByClient(ctx context.Context, clientID uuid.UUID) ([]*Configuration, error) {
	return r.list(ctx, `SELECT `+configCols+` FROM ehr_configurations
		WHERE client_id = $1 ORDER BY ehr_system`, clientID)
}

func (r *configRepoPG) Delete(ctx context.Context, clientID uuid.UUID, system fhirmodels.EHRSystem) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM ehr_configurations WHERE client_id = $1 AND ehr_system = $2`, clientID, system)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConfigurationNotFound
	}
	return nil
}
