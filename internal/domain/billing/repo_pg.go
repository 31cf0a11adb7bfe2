package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hmis/hmis/internal/platform/apperr"
	"github.com/hmis/hmis/internal/platform/db"
)

type billRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &billRepoPG{pool: pool} }

func (r *billRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const billCols = `id, patient_id, bill_type, payment_method, items, discount, tax_rate,
	subtotal, tax_amount, discount_amount, total, payment_status, created_by,
	version_id, created_at, updated_at`

func scanBill(row pgx.Row) (*Bill, error) {
	var b Bill
	err := row.Scan(&b.ID, &b.PatientID, &b.BillType, &b.PaymentMethod, &b.LineItems,
		&b.DiscountPercent, &b.TaxRatePercent,
		&b.Subtotal, &b.TaxAmount, &b.DiscountAmount, &b.Total,
		&b.PaymentStatus, &b.CreatedBy, &b.VersionID, &b.CreatedAt, &b.UpdatedAt)
	return &b, err
}

func (r *billRepoPG) Create(ctx context.Context, b *Bill) error {
	b.ID = uuid.New()
	b.VersionID = 1
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO bill (id, patient_id, bill_type, payment_method, items, discount, tax_rate,
			subtotal, tax_amount, discount_amount, total, payment_status, created_by,
			version_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		b.ID, b.PatientID, b.BillType, b.PaymentMethod, b.LineItems, b.DiscountPercent, b.TaxRatePercent,
		b.Subtotal, b.TaxAmount, b.DiscountAmount, b.Total, b.PaymentStatus, b.CreatedBy,
		b.VersionID, b.CreatedAt, b.UpdatedAt)
	if db.PgCode(err) == db.ForeignKeyViolation {
		return apperr.NotFound("patient", b.PatientID.String())
	}
	return err
}

func (r *billRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Bill, error) {
	b, err := scanBill(r.conn(ctx).QueryRow(ctx, `SELECT `+billCols+` FROM bill WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("bill", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("get bill %s: %w", id, err)
	}
	return b, nil
}

func (r *billRepoPG) List(ctx context.Context, limit, offset int) ([]*Bill, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM bill`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+billCols+` FROM bill ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return collectBills(rows, total)
}

func (r *billRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Bill, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM bill WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+billCols+` FROM bill WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return collectBills(rows, total)
}

func collectBills(rows pgx.Rows, total int) ([]*Bill, int, error) {
	defer rows.Close()
	var items []*Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, b)
	}
	return items, total, rows.Err()
}

func (r *billRepoPG) Update(ctx context.Context, b *Bill) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE bill SET bill_type=$3, payment_method=$4, items=$5, discount=$6, tax_rate=$7,
			subtotal=$8, tax_amount=$9, discount_amount=$10, total=$11, payment_status=$12,
			version_id=version_id+1, updated_at=$13
		WHERE id = $1 AND version_id = $2
		RETURNING version_id`,
		b.ID, b.VersionID, b.BillType, b.PaymentMethod, b.LineItems, b.DiscountPercent, b.TaxRatePercent,
		b.Subtotal, b.TaxAmount, b.DiscountAmount, b.Total, b.PaymentStatus, b.UpdatedAt,
	).Scan(&b.VersionID)
	if db.IsNoRows(err) {
		var exists bool
		if err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM bill WHERE id = $1)`, b.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return apperr.NotFound("bill", b.ID.String())
		}
		return apperr.Conflict(b.ID.String(), "bill was modified concurrently")
	}
	return err
}

func (r *billRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM bill WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("bill", id.String())
	}
	return nil
}
