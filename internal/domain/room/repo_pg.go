package room

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hmis/hmis/internal/platform/apperr"
	"github.com/hmis/hmis/internal/platform/db"
)

type roomRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &roomRepoPG{pool: pool} }

func (r *roomRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const roomCols = `id, room_number, room_type, charges_per_day, state,
	current_patient_id, occupied_since, version_id, created_at, updated_at`

func scanRoom(row pgx.Row) (*Room, error) {
	var rm Room
	err := row.Scan(&rm.ID, &rm.RoomNumber, &rm.RoomType, &rm.ChargesPerDay, &rm.State,
		&rm.CurrentPatientID, &rm.OccupiedSince, &rm.VersionID, &rm.CreatedAt, &rm.UpdatedAt)
	return &rm, err
}

func (r *roomRepoPG) Create(ctx context.Context, rm *Room) error {
	rm.ID = uuid.New()
	rm.VersionID = 1
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO room (id, room_number, room_type, charges_per_day, state,
			current_patient_id, occupied_since, version_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		rm.ID, rm.RoomNumber, rm.RoomType, rm.ChargesPerDay, rm.State,
		rm.CurrentPatientID, rm.OccupiedSince, rm.VersionID,
	).Scan(&rm.CreatedAt, &rm.UpdatedAt)
	if db.PgCode(err) == db.UniqueViolation {
		return apperr.Conflict(rm.RoomNumber, "room number already registered")
	}
	return err
}

func (r *roomRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Room, error) {
	rm, err := scanRoom(r.conn(ctx).QueryRow(ctx, `SELECT `+roomCols+` FROM room WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("room", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("get room %s: %w", id, err)
	}
	return rm, nil
}

func (r *roomRepoPG) List(ctx context.Context, limit, offset int) ([]*Room, int, error) {
	return r.list(ctx, "", limit, offset)
}

func (r *roomRepoPG) ListAvailable(ctx context.Context, limit, offset int) ([]*Room, int, error) {
	return r.list(ctx, `WHERE state = 'Available'`, limit, offset)
}

func (r *roomRepoPG) list(ctx context.Context, where string, limit, offset int) ([]*Room, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM room `+where).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+roomCols+` FROM room `+where+` ORDER BY room_number LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Room
	for rows.Next() {
		rm, err := scanRoom(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rm)
	}
	return items, total, rows.Err()
}

func (r *roomRepoPG) Update(ctx context.Context, rm *Room) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE room SET room_number=$3, room_type=$4, charges_per_day=$5, state=$6,
			current_patient_id=$7, occupied_since=$8,
			version_id=version_id+1, updated_at=NOW()
		WHERE id = $1 AND version_id = $2
		RETURNING version_id, updated_at`,
		rm.ID, rm.VersionID, rm.RoomNumber, rm.RoomType, rm.ChargesPerDay, rm.State,
		rm.CurrentPatientID, rm.OccupiedSince,
	).Scan(&rm.VersionID, &rm.UpdatedAt)
	if db.IsNoRows(err) {
		return r.missOrStale(ctx, rm.ID, "room was modified concurrently")
	}
	return writeError(rm, err)
}

// writeError maps constraint violations on a room write. A foreign key
// failure means the occupant was deleted after it was checked.
func writeError(rm *Room, err error) error {
	switch db.PgCode(err) {
	case db.UniqueViolation:
		return apperr.Conflict(rm.RoomNumber, "room number already registered")
	case db.ForeignKeyViolation:
		id := ""
		if rm.CurrentPatientID != nil {
			id = rm.CurrentPatientID.String()
		}
		return apperr.NotFound("patient", id)
	}
	return err
}

func (r *roomRepoPG) DeleteAvailable(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM room WHERE id = $1 AND state = 'Available'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missOrStale(ctx, id, "cannot delete an occupied room")
	}
	return nil
}

// missOrStale distinguishes a vanished row from a guarded write that lost.
func (r *roomRepoPG) missOrStale(ctx context.Context, id uuid.UUID, msg string) error {
	var exists bool
	if err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM room WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return apperr.NotFound("room", id.String())
	}
	return apperr.Conflict(id.String(), "%s", msg)
}

// =========== Occupancy Event Repository ===========

type eventRepoPG struct{ pool *pgxpool.Pool }

func NewEventRepoPG(pool *pgxpool.Pool) EventRepository { return &eventRepoPG{pool: pool} }

func (r *eventRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *eventRepoPG) Append(ctx context.Context, e *OccupancyEvent) error {
	e.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO room_occupancy_event (id, room_id, patient_id, previous_patient_id, action, actor_id, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.RoomID, e.PatientID, e.PreviousPatientID, e.Action, e.ActorID, e.OccurredAt)
	return err
}

func (r *eventRepoPG) ListByRoom(ctx context.Context, roomID uuid.UUID, limit, offset int) ([]*OccupancyEvent, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM room_occupancy_event WHERE room_id = $1`, roomID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, room_id, patient_id, previous_patient_id, action, actor_id, occurred_at
		FROM room_occupancy_event WHERE room_id = $1
		ORDER BY occurred_at DESC LIMIT $2 OFFSET $3`, roomID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*OccupancyEvent
	for rows.Next() {
		var e OccupancyEvent
		if err := rows.Scan(&e.ID, &e.RoomID, &e.PatientID, &e.PreviousPatientID, &e.Action, &e.ActorID, &e.OccurredAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &e)
	}
	return items, total, rows.Err()
}
