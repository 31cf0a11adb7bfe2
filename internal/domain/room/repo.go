package room

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *Room) error
	GetByID(ctx context.Context, id uuid.UUID) (*Room, error)
	List(ctx context.Context, limit, offset int) ([]*Room, int, error)
	ListAvailable(ctx context.Context, limit, offset int) ([]*Room, int, error)
	// Update writes r only if the stored version still equals r.VersionID,
	// then advances r.VersionID.
	Update(ctx context.Context, r *Room) error
	// DeleteAvailable removes the room only while it is Available.
	DeleteAvailable(ctx context.Context, id uuid.UUID) error
}

type EventRepository interface {
	Append(ctx context.Context, e *OccupancyEvent) error
	ListByRoom(ctx context.Context, roomID uuid.UUID, limit, offset int) ([]*OccupancyEvent, int, error)
}
