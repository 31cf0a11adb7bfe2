package room

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hmis/hmis/internal/platform/apperr"
	"github.com/hmis/hmis/internal/platform/lock"
)

// PatientLookup confirms a patient is registered before a room is given to
// them.
type PatientLookup interface {
	PatientExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// TxFunc runs fn atomically. The default runs fn directly.
type TxFunc func(ctx context.Context, fn func(ctx context.Context) error) error

func noTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

// Service owns the room registry and its occupancy transitions. Every
// read-check-write on a room runs under the room's lock, and the write is
// version-guarded by the repository.
type Service struct {
	rooms    Repository
	events   EventRepository
	patients PatientLookup
	locker   lock.Locker
	tx       TxFunc
	now      func() time.Time
	logger   zerolog.Logger
}

func NewService(rooms Repository, events EventRepository, patients PatientLookup, locker lock.Locker, logger zerolog.Logger) *Service {
	return &Service{
		rooms:    rooms,
		events:   events,
		patients: patients,
		locker:   locker,
		tx:       noTx,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With().Str("component", "room").Logger(),
	}
}

// SetTxFunc makes the room write and its history entry commit together.
func (s *Service) SetTxFunc(fn TxFunc) {
	if fn != nil {
		s.tx = fn
	}
}

func validateRegistry(r *Room) error {
	r.RoomNumber = strings.TrimSpace(r.RoomNumber)
	if r.RoomNumber == "" {
		return apperr.Validation("room_number", "is required")
	}
	if !r.RoomType.Valid() {
		return apperr.Validation("room_type", "invalid room type: %s", r.RoomType)
	}
	if r.ChargesPerDay.IsNegative() {
		return apperr.Validation("charges_per_day", "must not be negative")
	}
	return nil
}

// CreateRoom registers a room. New rooms are always Available.
func (s *Service) CreateRoom(ctx context.Context, r *Room) error {
	if r.RoomType == "" {
		r.RoomType = General
	}
	if err := validateRegistry(r); err != nil {
		return err
	}
	r.State = Available
	r.CurrentPatientID = nil
	r.OccupiedSince = nil
	if err := s.rooms.Create(ctx, r); err != nil {
		return err
	}
	s.logger.Info().Str("room_id", r.ID.String()).Str("room_number", r.RoomNumber).Msg("room registered")
	return nil
}

func (s *Service) GetRoom(ctx context.Context, id uuid.UUID) (*Room, error) {
	return s.rooms.GetByID(ctx, id)
}

func (s *Service) ListRooms(ctx context.Context, limit, offset int) ([]*Room, int, error) {
	return s.rooms.List(ctx, limit, offset)
}

func (s *Service) ListAvailableRooms(ctx context.Context, limit, offset int) ([]*Room, int, error) {
	return s.rooms.ListAvailable(ctx, limit, offset)
}

// UpdateRoom edits room number, type or daily charge. Occupancy is not
// editable here.
func (s *Service) UpdateRoom(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Room, error) {
	var out *Room
	err := s.withRoom(ctx, id, func(ctx context.Context, cur Room) error {
		if req.RoomNumber != nil {
			cur.RoomNumber = *req.RoomNumber
		}
		if req.RoomType != nil {
			cur.RoomType = *req.RoomType
		}
		if req.ChargesPerDay != nil {
			cur.ChargesPerDay = *req.ChargesPerDay
		}
		if err := validateRegistry(&cur); err != nil {
			return err
		}
		if err := s.rooms.Update(ctx, &cur); err != nil {
			return err
		}
		out = &cur
		return nil
	})
	return out, err
}

// AssignRoom gives an Available room to patientID.
func (s *Service) AssignRoom(ctx context.Context, id, patientID uuid.UUID, actor string) (*Room, error) {
	if patientID == uuid.Nil {
		return nil, apperr.Validation("patient_id", "is required")
	}
	if err := s.requirePatient(ctx, patientID); err != nil {
		return nil, err
	}

	var out *Room
	err := s.withRoom(ctx, id, func(ctx context.Context, cur Room) error {
		next, err := Assign(cur, patientID, s.now())
		if err != nil {
			return err
		}
		if err := s.commit(ctx, &next, ActionAssign, patientID, nil, actor); err != nil {
			return err
		}
		out = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("room_id", id.String()).Str("patient_id", patientID.String()).Msg("room assigned")
	return out, nil
}

// ReleaseRoom frees the room. Releasing an Available room succeeds without
// writing anything.
func (s *Service) ReleaseRoom(ctx context.Context, id uuid.UUID, actor string) (*Room, error) {
	var out *Room
	err := s.withRoom(ctx, id, func(ctx context.Context, cur Room) error {
		if cur.State == Available {
			out = &cur
			return nil
		}
		previous := *cur.CurrentPatientID
		next := Release(cur, s.now())
		if err := s.commit(ctx, &next, ActionRelease, previous, nil, actor); err != nil {
			return err
		}
		s.logger.Info().Str("room_id", id.String()).Str("patient_id", previous.String()).Msg("room released")
		out = &next
		return nil
	})
	return out, err
}

// TransferRoom hands an occupied room from one patient to another.
func (s *Service) TransferRoom(ctx context.Context, id, from, to uuid.UUID, actor string) (*Room, error) {
	if to != uuid.Nil {
		if err := s.requirePatient(ctx, to); err != nil {
			return nil, err
		}
	}

	var out *Room
	err := s.withRoom(ctx, id, func(ctx context.Context, cur Room) error {
		next, err := Transfer(cur, from, to, s.now())
		if err != nil {
			return err
		}
		prev := from
		if err := s.commit(ctx, &next, ActionTransfer, to, &prev, actor); err != nil {
			return err
		}
		out = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("room_id", id.String()).
		Str("from_patient_id", from.String()).Str("to_patient_id", to.String()).
		Msg("room transferred")
	return out, nil
}

// DeleteRoom removes an Available room. An occupied room is left untouched.
func (s *Service) DeleteRoom(ctx context.Context, id uuid.UUID) error {
	err := s.withRoom(ctx, id, func(ctx context.Context, cur Room) error {
		if err := CheckDeletable(cur); err != nil {
			return err
		}
		return s.rooms.DeleteAvailable(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.Info().Str("room_id", id.String()).Msg("room deleted")
	return nil
}

func (s *Service) ListOccupancyEvents(ctx context.Context, id uuid.UUID, limit, offset int) ([]*OccupancyEvent, int, error) {
	if _, err := s.rooms.GetByID(ctx, id); err != nil {
		return nil, 0, err
	}
	return s.events.ListByRoom(ctx, id, limit, offset)
}

// withRoom holds the room lock, reads the current room and hands a copy to
// fn inside the service's transaction.
func (s *Service) withRoom(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, cur Room) error) error {
	unlock, err := s.locker.Lock(ctx, lock.Key("room", id.String()))
	if err != nil {
		return fmt.Errorf("lock room %s: %w", id, err)
	}
	defer unlock()

	return s.tx(ctx, func(ctx context.Context) error {
		cur, err := s.rooms.GetByID(ctx, id)
		if err != nil {
			return err
		}
		return fn(ctx, *cur)
	})
}

func (s *Service) commit(ctx context.Context, next *Room, action Action, patientID uuid.UUID, previous *uuid.UUID, actor string) error {
	if err := next.CheckInvariant(); err != nil {
		return err
	}
	if err := s.rooms.Update(ctx, next); err != nil {
		if !apperr.IsConflict(err) && !apperr.IsNotFound(err) {
			s.logger.Error().Err(err).Str("room_id", next.ID.String()).Msg("failed to persist room")
		}
		return err
	}
	ev := &OccupancyEvent{
		RoomID:            next.ID,
		PatientID:         patientID,
		PreviousPatientID: previous,
		Action:            action,
		OccurredAt:        next.UpdatedAt,
	}
	if actor != "" {
		ev.ActorID = &actor
	}
	return s.events.Append(ctx, ev)
}

func (s *Service) requirePatient(ctx context.Context, id uuid.UUID) error {
	ok, err := s.patients.PatientExists(ctx, id)
	if err != nil {
		return fmt.Errorf("look up patient %s: %w", id, err)
	}
	if !ok {
		return apperr.NotFound("patient", id.String())
	}
	return nil
}
