package identity

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hmis/hmis/internal/platform/apperr"
)

// Service manages the patient and doctor registries. It also answers the
// existence checks the room, billing and diagnostics services make before
// they reference a patient or doctor.
type Service struct {
	patients PatientRepository
	doctors  DoctorRepository
	logger   zerolog.Logger
}

func NewService(patients PatientRepository, doctors DoctorRepository, logger zerolog.Logger) *Service {
	return &Service{
		patients: patients,
		doctors:  doctors,
		logger:   logger.With().Str("component", "identity").Logger(),
	}
}

// -- Patient --

// newPatientCode derives a registration number from a fresh UUID.
func newPatientCode() string {
	return "PT-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func validatePatient(p *Patient) error {
	p.FullName = strings.TrimSpace(p.FullName)
	if p.FullName == "" {
		return apperr.Validation("full_name", "is required")
	}
	if p.Age != nil && *p.Age < 0 {
		return apperr.Validation("age", "must not be negative")
	}
	if p.Gender != nil && !validGenders[*p.Gender] {
		return apperr.Validation("gender", "invalid gender: %s", *p.Gender)
	}
	if p.BloodGroup != nil && !validBloodGroups[*p.BloodGroup] {
		return apperr.Validation("blood_group", "invalid blood group: %s", *p.BloodGroup)
	}
	if p.PatientType != nil && !validPatientTypes[*p.PatientType] {
		return apperr.Validation("patient_type", "invalid patient type: %s", *p.PatientType)
	}
	if p.AdmissionDate != nil && p.DischargeDate != nil && p.DischargeDate.Before(*p.AdmissionDate) {
		return apperr.Validation("discharge_date", "must not precede admission_date")
	}
	return nil
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if err := validatePatient(p); err != nil {
		return err
	}
	p.PatientCode = strings.TrimSpace(p.PatientCode)
	if p.PatientCode == "" {
		p.PatientCode = newPatientCode()
	}
	if err := s.patients.Create(ctx, p); err != nil {
		return err
	}
	s.logger.Info().Str("patient_id", p.ID.String()).Str("patient_code", p.PatientCode).Msg("patient registered")
	return nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

// UpdatePatient replaces the editable fields of an existing patient. An empty
// patient code keeps the stored one.
func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if err := validatePatient(p); err != nil {
		return err
	}
	if strings.TrimSpace(p.PatientCode) == "" {
		existing, err := s.patients.GetByID(ctx, p.ID)
		if err != nil {
			return err
		}
		p.PatientCode = existing.PatientCode
	}
	return s.patients.Update(ctx, p)
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	if err := s.patients.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("patient_id", id.String()).Msg("patient removed")
	return nil
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

func (s *Service) SearchPatients(ctx context.Context, q string, limit, offset int) ([]*Patient, int, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, 0, apperr.Validation("q", "search query cannot be empty")
	}
	return s.patients.Search(ctx, q, limit, offset)
}

// PatientExists reports whether id is registered. Lookup failures other than
// not-found are returned.
func (s *Service) PatientExists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := s.patients.GetByID(ctx, id)
	if apperr.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

// PatientName returns the patient's full name, used on exported bills.
func (s *Service) PatientName(ctx context.Context, id uuid.UUID) (string, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return p.FullName, nil
}

// -- Doctor --

func validateDoctor(d *Doctor) error {
	d.FirstName = strings.TrimSpace(d.FirstName)
	d.LastName = strings.TrimSpace(d.LastName)
	if d.FirstName == "" {
		return apperr.Validation("first_name", "is required")
	}
	if d.LastName == "" {
		return apperr.Validation("last_name", "is required")
	}
	if d.Email != nil && *d.Email != "" && !strings.Contains(*d.Email, "@") {
		return apperr.Validation("email", "invalid email: %s", *d.Email)
	}
	return nil
}

func (s *Service) CreateDoctor(ctx context.Context, d *Doctor) error {
	if err := validateDoctor(d); err != nil {
		return err
	}
	if err := s.doctors.Create(ctx, d); err != nil {
		return err
	}
	s.logger.Info().Str("doctor_id", d.ID.String()).Msg("doctor registered")
	return nil
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) UpdateDoctor(ctx context.Context, d *Doctor) error {
	if err := validateDoctor(d); err != nil {
		return err
	}
	return s.doctors.Update(ctx, d)
}

func (s *Service) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	return s.doctors.Delete(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, limit, offset)
}

func (s *Service) SearchDoctors(ctx context.Context, q string, limit, offset int) ([]*Doctor, int, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, 0, apperr.Validation("q", "search query cannot be empty")
	}
	return s.doctors.Search(ctx, q, limit, offset)
}

func (s *Service) DoctorExists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := s.doctors.GetByID(ctx, id)
	if apperr.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}
