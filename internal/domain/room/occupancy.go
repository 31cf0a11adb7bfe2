package room

import (
	"time"

	"github.com/google/uuid"

	"github.com/hmis/hmis/internal/platform/apperr"
)

// Assign moves an Available room to Occupied by patientID. An occupied room
// is never silently reassigned; use Transfer for that.
func Assign(r Room, patientID uuid.UUID, now time.Time) (Room, error) {
	if patientID == uuid.Nil {
		return r, apperr.Validation("patient_id", "is required")
	}
	if r.State == Occupied {
		return r, apperr.Conflict(r.ID.String(), "room already occupied")
	}
	pid := patientID
	since := now
	r.State = Occupied
	r.CurrentPatientID = &pid
	r.OccupiedSince = &since
	r.UpdatedAt = now
	return r, nil
}

// Release frees the room. Releasing an Available room returns it unchanged.
func Release(r Room, now time.Time) Room {
	if r.State == Available {
		return r
	}
	r.State = Available
	r.CurrentPatientID = nil
	r.OccupiedSince = nil
	r.UpdatedAt = now
	return r
}

// Transfer hands an occupied room from one patient to another. The room must
// currently be held by from.
func Transfer(r Room, from, to uuid.UUID, now time.Time) (Room, error) {
	if from == uuid.Nil {
		return r, apperr.Validation("from_patient_id", "is required")
	}
	if to == uuid.Nil {
		return r, apperr.Validation("to_patient_id", "is required")
	}
	if from == to {
		return r, apperr.Validation("to_patient_id", "must differ from the current occupant")
	}
	if r.State != Occupied {
		return r, apperr.Conflict(r.ID.String(), "room is not occupied")
	}
	if *r.CurrentPatientID != from {
		return r, apperr.Conflict(r.ID.String(), "room is occupied by a different patient")
	}
	pid := to
	since := now
	r.CurrentPatientID = &pid
	r.OccupiedSince = &since
	r.UpdatedAt = now
	return r, nil
}

// CheckDeletable gates removal from the registry on vacancy.
func CheckDeletable(r Room) error {
	if r.State == Occupied {
		return apperr.Conflict(r.ID.String(), "cannot delete an occupied room")
	}
	return nil
}
