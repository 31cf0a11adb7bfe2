package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hmis/hmis/internal/platform/apperr"
	"github.com/hmis/hmis/internal/platform/db"
)

// likePattern wraps q for ILIKE, escaping the wildcard characters.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

func (r *patientRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const patientCols = `id, patient_code, full_name, age, gender, phone, address, blood_group,
	patient_type, admission_date, discharge_date, medical_history, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.PatientCode, &p.FullName, &p.Age, &p.Gender, &p.Phone, &p.Address, &p.BloodGroup,
		&p.PatientType, &p.AdmissionDate, &p.DischargeDate, &p.MedicalHistory, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (id, patient_code, full_name, age, gender, phone, address, blood_group,
			patient_type, admission_date, discharge_date, medical_history)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at, updated_at`,
		p.ID, p.PatientCode, p.FullName, p.Age, p.Gender, p.Phone, p.Address, p.BloodGroup,
		p.PatientType, p.AdmissionDate, p.DischargeDate, p.MedicalHistory,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if db.PgCode(err) == db.UniqueViolation {
		return apperr.Conflict(p.PatientCode, "patient code already registered")
	}
	return err
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("patient", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("get patient %s: %w", id, err)
	}
	return p, nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patient SET patient_code=$2, full_name=$3, age=$4, gender=$5, phone=$6, address=$7,
			blood_group=$8, patient_type=$9, admission_date=$10, discharge_date=$11,
			medical_history=$12, updated_at=NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		p.ID, p.PatientCode, p.FullName, p.Age, p.Gender, p.Phone, p.Address,
		p.BloodGroup, p.PatientType, p.AdmissionDate, p.DischargeDate, p.MedicalHistory,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	switch {
	case db.IsNoRows(err):
		return apperr.NotFound("patient", p.ID.String())
	case db.PgCode(err) == db.UniqueViolation:
		return apperr.Conflict(p.PatientCode, "patient code already registered")
	}
	return err
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	if db.PgCode(err) == db.ForeignKeyViolation {
		return apperr.Conflict(id.String(), "patient has rooms, bills or reports on record")
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient", id.String())
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return r.query(ctx, "", nil, limit, offset)
}

func (r *patientRepoPG) Search(ctx context.Context, q string, limit, offset int) ([]*Patient, int, error) {
	return r.query(ctx, `WHERE full_name ILIKE $1 OR patient_code ILIKE $1 OR phone ILIKE $1`,
		[]interface{}{likePattern(q)}, limit, offset)
}

func (r *patientRepoPG) query(ctx context.Context, where string, args []interface{}, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	n := len(args)
	sql := fmt.Sprintf(`SELECT %s FROM patient %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, patientCols, where, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, sql, append(args, limit, offset)...)
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

// =========== Doctor Repository ===========

type doctorRepoPG struct{ pool *pgxpool.Pool }

func NewDoctorRepoPG(pool *pgxpool.Pool) DoctorRepository { return &doctorRepoPG{pool: pool} }

func (r *doctorRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const doctorCols = `id, first_name, last_name, specialization, qualification, phone, email, created_at, updated_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.FirstName, &d.LastName, &d.Specialization, &d.Qualification,
		&d.Phone, &d.Email, &d.CreatedAt, &d.UpdatedAt)
	return &d, err
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor (id, first_name, last_name, specialization, qualification, phone, email)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		d.ID, d.FirstName, d.LastName, d.Specialization, d.Qualification, d.Phone, d.Email,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("doctor", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("get doctor %s: %w", id, err)
	}
	return d, nil
}

func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE doctor SET first_name=$2, last_name=$3, specialization=$4, qualification=$5,
			phone=$6, email=$7, updated_at=NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		d.ID, d.FirstName, d.LastName, d.Specialization, d.Qualification, d.Phone, d.Email,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.NotFound("doctor", d.ID.String())
	}
	return err
}

func (r *doctorRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctor WHERE id = $1`, id)
	if db.PgCode(err) == db.ForeignKeyViolation {
		return apperr.Conflict(id.String(), "doctor has pathology reports on record")
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("doctor", id.String())
	}
	return nil
}

func (r *doctorRepoPG) List(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	return r.query(ctx, "", nil, limit, offset)
}

func (r *doctorRepoPG) Search(ctx context.Context, q string, limit, offset int) ([]*Doctor, int, error) {
	return r.query(ctx, `WHERE first_name ILIKE $1 OR last_name ILIKE $1 OR specialization ILIKE $1`,
		[]interface{}{likePattern(q)}, limit, offset)
}

func (r *doctorRepoPG) query(ctx context.Context, where string, args []interface{}, limit, offset int) ([]*Doctor, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctor `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	n := len(args)
	sql := fmt.Sprintf(`SELECT %s FROM doctor %s ORDER BY last_name, first_name LIMIT $%d OFFSET $%d`, doctorCols, where, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, sql, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}
