package identity

import (
	"time"

	"github.com/google/uuid"
)

type Gender string

const (
	Male   Gender = "Male"
	Female Gender = "Female"
	Other  Gender = "Other"
)

type PatientType string

const (
	InPatient  PatientType = "In-Patient"
	OutPatient PatientType = "Out-Patient"
)

var (
	validGenders      = map[Gender]bool{Male: true, Female: true, Other: true}
	validPatientTypes = map[PatientType]bool{InPatient: true, OutPatient: true}
	validBloodGroups  = map[string]bool{
		"A+": true, "A-": true, "B+": true, "B-": true,
		"AB+": true, "AB-": true, "O+": true, "O-": true,
	}
)

// Patient maps to the patient table. PatientCode is the human-facing
// registration number printed on cards and bills.
type Patient struct {
	ID             uuid.UUID    `db:"id" json:"id"`
	PatientCode    string       `db:"patient_code" json:"patient_code"`
	FullName       string       `db:"full_name" json:"full_name"`
	Age            *int         `db:"age" json:"age,omitempty"`
	Gender         *Gender      `db:"gender" json:"gender,omitempty"`
	Phone          *string      `db:"phone" json:"phone,omitempty"`
	Address        *string      `db:"address" json:"address,omitempty"`
	BloodGroup     *string      `db:"blood_group" json:"blood_group,omitempty"`
	PatientType    *PatientType `db:"patient_type" json:"patient_type,omitempty"`
	AdmissionDate  *time.Time   `db:"admission_date" json:"admission_date,omitempty"`
	DischargeDate  *time.Time   `db:"discharge_date" json:"discharge_date,omitempty"`
	MedicalHistory *string      `db:"medical_history" json:"medical_history,omitempty"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updated_at"`
}

// Doctor maps to the doctor table.
type Doctor struct {
	ID             uuid.UUID `db:"id" json:"id"`
	FirstName      string    `db:"first_name" json:"first_name"`
	LastName       string    `db:"last_name" json:"last_name"`
	Specialization *string   `db:"specialization" json:"specialization,omitempty"`
	Qualification  *string   `db:"qualification" json:"qualification,omitempty"`
	Phone          *string   `db:"phone" json:"phone,omitempty"`
	Email          *string   `db:"email" json:"email,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

func (d *Doctor) DisplayName() string {
	return "Dr. " + d.FirstName + " " + d.LastName
}
