package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/ehrsync/internal/platform/db"
)

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const patientCols = `id, client_id, ehr_system, external_patient_id,
	first_name, last_name, date_of_birth, gender, phone, email,
	address, mrn, raw_data, last_synced, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.ClientID, &p.EHRSystem, &p.ExternalPatientID,
		&p.FirstName, &p.LastName, &p.DateOfBirth, &p.Gender, &p.Phone, &p.Email,
		&p.Address, &p.MRN, &p.RawData, &p.LastSynced, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *patientRepoPG) Upsert(ctx context.Context, p *Patient) (*Patient, error) {
	address, raw := p.Address, p.RawData
	if address == nil {
		address = map[string]any{}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return scanPatient(r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, client_id, ehr_system, external_patient_id,
			first_name, last_name, date_of_birth, gender, phone, email,
			address, mrn, raw_data, last_synced)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (client_id, ehr_system, external_patient_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			date_of_birth = EXCLUDED.date_of_birth,
			gender = EXCLUDED.gender,
			phone = EXCLUDED.phone,
			email = EXCLUDED.email,
			address = EXCLUDED.address,
			mrn = EXCLUDED.mrn,
			raw_data = EXCLUDED.raw_data,
			last_synced = EXCLUDED.last_synced,
			updated_at = NOW()
		RETURNING `+patientCols,
		uuid.New(), p.ClientID, p.EHRSystem, p.ExternalPatientID,
		p.FirstName, p.LastName, p.DateOfBirth, p.Gender, p.Phone, p.Email,
		address, p.MRN, raw, p.LastSynced))
}

func (r *patientRepoPG) GetByID(ctx context.Context, clientID, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE client_id = $1 AND id = $2`, clientID, id))
}

func (r *patientRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Patient, int, error) {
	where, args := buildListWhere(f)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM patients WHERE %s
		ORDER BY last_name, first_name, external_patient_id LIMIT $%d OFFSET $%d`,
		patientCols, where, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func buildListWhere(f ListFilter) (string, []interface{}) {
	conds := []string{"client_id = $1"}
	args := []interface{}{f.ClientID}
	idx := 2

	if f.EHRSystem != "" {
		conds = append(conds, fmt.Sprintf("ehr_system = $%d", idx))
		args = append(args, f.EHRSystem)
		idx++
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		conds = append(conds, fmt.Sprintf(
			"(first_name ILIKE $%[1]d OR last_name ILIKE $%[1]d OR mrn ILIKE $%[1]d OR external_patient_id ILIKE $%[1]d)", idx))
		args = append(args, "%"+escapeLike(q)+"%")
	}
	return strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
