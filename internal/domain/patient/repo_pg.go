package patient

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct {
	pool *pgxpool.Pool
}

// NewRepo creates a Postgres-backed patient Repository.
func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const patientColumns = `id, full_name, gender, birth_date, phone, email,
	blood_group, allergies, medications, conditions, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO patient (
			id, full_name, gender, birth_date, phone, email,
			blood_group, allergies, medications, conditions
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.FullName, p.Gender, p.BirthDate, p.Phone, p.Email,
		p.BloodGroup, p.Allergies, p.Medications, p.Conditions,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.scanPatient(r.pool.QueryRow(ctx,
		`SELECT `+patientColumns+` FROM patient WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE patient SET
			full_name = $2, gender = $3, birth_date = $4, phone = $5, email = $6,
			blood_group = $7, allergies = $8, medications = $9, conditions = $10,
			updated_at = NOW()
		WHERE id = $1`,
		p.ID, p.FullName, p.Gender, p.BirthDate, p.Phone, p.Email,
		p.BloodGroup, p.Allergies, p.Medications, p.Conditions,
	)
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	return err
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+patientColumns+` FROM patient ORDER BY full_name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		patients = append(patients, p)
	}
	return patients, total, nil
}

func (r *repoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.FullName, &p.Gender, &p.BirthDate, &p.Phone, &p.Email,
		&p.BloodGroup, &p.Allergies, &p.Medications, &p.Conditions,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

type vitalRepoPG struct {
	pool *pgxpool.Pool
}

// NewVitalRepo creates a Postgres-backed VitalRepository.
func NewVitalRepo(pool *pgxpool.Pool) VitalRepository {
	return &vitalRepoPG{pool: pool}
}

const vitalColumns = `id, patient_id, systolic_bp, diastolic_bp, heart_rate,
	temp_celsius, spo2, weight_kg, height_cm, recorded_at, created_at`

func (r *vitalRepoPG) Create(ctx context.Context, v *Vital) error {
	v.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO vital (
			id, patient_id, systolic_bp, diastolic_bp, heart_rate,
			temp_celsius, spo2, weight_kg, height_cm, recorded_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		v.ID, v.PatientID, v.SystolicBP, v.DiastolicBP, v.HeartRate,
		v.TempCelsius, v.SpO2, v.WeightKg, v.HeightCm, v.RecordedAt,
	)
	return err
}

func (r *vitalRepoPG) Latest(ctx context.Context, patientID uuid.UUID) (*Vital, error) {
	v, err := r.scanVital(r.pool.QueryRow(ctx,
		`SELECT `+vitalColumns+` FROM vital WHERE patient_id = $1 ORDER BY recorded_at DESC LIMIT 1`, patientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

func (r *vitalRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Vital, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM vital WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+vitalColumns+` FROM vital
		WHERE patient_id = $1 ORDER BY recorded_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var vitals []*Vital
	for rows.Next() {
		v, err := r.scanVital(rows)
		if err != nil {
			return nil, 0, err
		}
		vitals = append(vitals, v)
	}
	return vitals, total, nil
}

func (r *vitalRepoPG) scanVital(row pgx.Row) (*Vital, error) {
	var v Vital
	err := row.Scan(
		&v.ID, &v.PatientID, &v.SystolicBP, &v.DiastolicBP, &v.HeartRate,
		&v.TempCelsius, &v.SpO2, &v.WeightKg, &v.HeightCm, &v.RecordedAt, &v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
