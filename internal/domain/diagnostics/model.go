package diagnostics

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Report maps to the pathology_report table.
type Report struct {
	ID                   uuid.UUID       `db:"id" json:"id"`
	PatientID            uuid.UUID       `db:"patient_id" json:"patient_id"`
	DoctorID             uuid.UUID       `db:"doctor_id" json:"doctor_id"`
	TestType             string          `db:"test_type" json:"test_type"`
	TestDate             time.Time       `db:"test_date" json:"test_date"`
	SampleCollectionDate time.Time       `db:"sample_collection_date" json:"sample_collection_date"`
	Results              string          `db:"results" json:"results"`
	NormalRanges         *string         `db:"normal_ranges" json:"normal_ranges,omitempty"`
	Remarks              *string         `db:"remarks" json:"remarks,omitempty"`
	IsCritical           bool            `db:"is_critical" json:"is_critical"`
	Cost                 decimal.Decimal `db:"cost" json:"cost"`
	CreatedBy            *string         `db:"created_by" json:"created_by,omitempty"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at" json:"updated_at"`
}

// UpdateRequest carries the editable fields of a report. Nil fields keep the
// stored value.
type UpdateRequest struct {
	DoctorID             *uuid.UUID       `json:"doctor_id"`
	TestType             *string          `json:"test_type"`
	TestDate             *time.Time       `json:"test_date"`
	SampleCollectionDate *time.Time       `json:"sample_collection_date"`
	Results              *string          `json:"results"`
	NormalRanges         *string          `json:"normal_ranges"`
	Remarks              *string          `json:"remarks"`
	IsCritical           *bool            `json:"is_critical"`
	Cost                 *decimal.Decimal `json:"cost"`
}

func (u UpdateRequest) apply(r *Report) {
	if u.DoctorID != nil {
		r.DoctorID = *u.DoctorID
	}
	if u.TestType != nil {
		r.TestType = *u.TestType
	}
	if u.TestDate != nil {
		r.TestDate = *u.TestDate
	}
	if u.SampleCollectionDate != nil {
		r.SampleCollectionDate = *u.SampleCollectionDate
	}
	if u.Results != nil {
		r.Results = *u.Results
	}
	if u.NormalRanges != nil {
		r.NormalRanges = u.NormalRanges
	}
	if u.Remarks != nil {
		r.Remarks = u.Remarks
	}
	if u.IsCritical != nil {
		r.IsCritical = *u.IsCritical
	}
	if u.Cost != nil {
		r.Cost = *u.Cost
	}
}
