package diagnostics

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hmis/hmis/internal/platform/apperr"
	"github.com/hmis/hmis/internal/platform/db"
)

type reportRepoPG struct{ pool *pgxpool.Pool }

func NewReportRepoPG(pool *pgxpool.Pool) ReportRepository { return &reportRepoPG{pool: pool} }

func (r *reportRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const reportCols = `id, patient_id, doctor_id, test_type, test_date, sample_collection_date, results,
	normal_ranges, remarks, is_critical, cost, created_by, created_at, updated_at`

func scanReport(row pgx.Row) (*Report, error) {
	var rp Report
	err := row.Scan(&rp.ID, &rp.PatientID, &rp.DoctorID, &rp.TestType, &rp.TestDate, &rp.SampleCollectionDate,
		&rp.Results, &rp.NormalRanges, &rp.Remarks, &rp.IsCritical, &rp.Cost, &rp.CreatedBy,
		&rp.CreatedAt, &rp.UpdatedAt)
	return &rp, err
}

func (r *reportRepoPG) Create(ctx context.Context, rp *Report) error {
	rp.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO pathology_report (id, patient_id, doctor_id, test_type, test_date, sample_collection_date,
			results, normal_ranges, remarks, is_critical, cost, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at, updated_at`,
		rp.ID, rp.PatientID, rp.DoctorID, rp.TestType, rp.TestDate, rp.SampleCollectionDate,
		rp.Results, rp.NormalRanges, rp.Remarks, rp.IsCritical, rp.Cost, rp.CreatedBy,
	).Scan(&rp.CreatedAt, &rp.UpdatedAt)
	if db.PgCode(err) == db.ForeignKeyViolation {
		return apperr.Validation("patient_id", "patient or doctor does not exist")
	}
	return err
}

func (r *reportRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Report, error) {
	rp, err := scanReport(r.conn(ctx).QueryRow(ctx, `SELECT `+reportCols+` FROM pathology_report WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("report", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("get report %s: %w", id, err)
	}
	return rp, nil
}

func (r *reportRepoPG) Update(ctx context.Context, rp *Report) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE pathology_report SET doctor_id=$2, test_type=$3, test_date=$4, sample_collection_date=$5,
			results=$6, normal_ranges=$7, remarks=$8, is_critical=$9, cost=$10, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		rp.ID, rp.DoctorID, rp.TestType, rp.TestDate, rp.SampleCollectionDate,
		rp.Results, rp.NormalRanges, rp.Remarks, rp.IsCritical, rp.Cost,
	).Scan(&rp.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.NotFound("report", rp.ID.String())
	}
	return err
}

func (r *reportRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM pathology_report WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("report", id.String())
	}
	return nil
}

func (r *reportRepoPG) List(ctx context.Context, limit, offset int) ([]*Report, int, error) {
	return r.query(ctx, "", nil, limit, offset)
}

func (r *reportRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Report, int, error) {
	return r.query(ctx, "WHERE patient_id = $1", []interface{}{patientID}, limit, offset)
}

func (r *reportRepoPG) query(ctx context.Context, where string, args []interface{}, limit, offset int) ([]*Report, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM pathology_report `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	n := len(args)
	sql := fmt.Sprintf(`SELECT %s FROM pathology_report %s ORDER BY test_date DESC LIMIT $%d OFFSET $%d`, reportCols, where, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, sql, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Report
	for rows.Next() {
		rp, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rp)
	}
	return items, total, rows.Err()
}
