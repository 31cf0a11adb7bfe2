package room

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RoomType string

const (
	General     RoomType = "General"
	SemiPrivate RoomType = "Semi-Private"
	Private     RoomType = "Private"
	ICU         RoomType = "ICU"
)

var validRoomTypes = map[RoomType]bool{
	General: true, SemiPrivate: true, Private: true, ICU: true,
}

func (t RoomType) Valid() bool { return validRoomTypes[t] }

type OccupancyState string

const (
	Available OccupancyState = "Available"
	Occupied  OccupancyState = "Occupied"
)

// Room is a bed or ward registered with the facility. The occupancy fields
// only change through Assign, Release and Transfer.
type Room struct {
	ID               uuid.UUID       `json:"id"`
	RoomNumber       string          `json:"room_number"`
	RoomType         RoomType        `json:"room_type"`
	ChargesPerDay    decimal.Decimal `json:"charges_per_day"`
	State            OccupancyState  `json:"state"`
	CurrentPatientID *uuid.UUID      `json:"current_patient_id,omitempty"`
	OccupiedSince    *time.Time      `json:"occupied_since,omitempty"`
	VersionID        int             `json:"version_id"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (r Room) IsOccupied() bool { return r.State == Occupied }

// CheckInvariant verifies Occupied, a current patient and an occupied-since
// timestamp are either all present or all absent.
func (r Room) CheckInvariant() error {
	occupied := r.State == Occupied
	hasPatient := r.CurrentPatientID != nil
	hasSince := r.OccupiedSince != nil
	if r.State != Available && r.State != Occupied {
		return fmt.Errorf("room %s: unknown state %q", r.ID, r.State)
	}
	if occupied != hasPatient || occupied != hasSince {
		return fmt.Errorf("room %s: state %s inconsistent with occupant (patient=%t, since=%t)",
			r.ID, r.State, hasPatient, hasSince)
	}
	return nil
}

// UpdateRequest edits the registry fields of a room. Nil fields are kept.
type UpdateRequest struct {
	RoomNumber    *string          `json:"room_number"`
	RoomType      *RoomType        `json:"room_type"`
	ChargesPerDay *decimal.Decimal `json:"charges_per_day"`
}

type Action string

const (
	ActionAssign   Action = "assign"
	ActionRelease  Action = "release"
	ActionTransfer Action = "transfer"
)

// OccupancyEvent is one entry in a room's occupancy history.
type OccupancyEvent struct {
	ID                uuid.UUID  `json:"id"`
	RoomID            uuid.UUID  `json:"room_id"`
	PatientID         uuid.UUID  `json:"patient_id"`
	PreviousPatientID *uuid.UUID `json:"previous_patient_id,omitempty"`
	Action            Action     `json:"action"`
	ActorID           *string    `json:"actor_id,omitempty"`
	OccurredAt        time.Time  `json:"occurred_at"`
}
