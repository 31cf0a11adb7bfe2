package diagnostics

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hmis/hmis/internal/platform/apperr"
)

// Registry confirms the patient and ordering doctor exist.
type Registry interface {
	PatientExists(ctx context.Context, id uuid.UUID) (bool, error)
	DoctorExists(ctx context.Context, id uuid.UUID) (bool, error)
}

type Service struct {
	reports  ReportRepository
	registry Registry
	now      func() time.Time
	logger   zerolog.Logger
}

func NewService(reports ReportRepository, registry Registry, logger zerolog.Logger) *Service {
	return &Service{
		reports:  reports,
		registry: registry,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With().Str("component", "diagnostics").Logger(),
	}
}

func validateReport(r *Report) error {
	r.TestType = strings.TrimSpace(r.TestType)
	if r.TestType == "" {
		return apperr.Validation("test_type", "is required")
	}
	if strings.TrimSpace(r.Results) == "" {
		return apperr.Validation("results", "is required")
	}
	if r.Cost.IsNegative() {
		return apperr.Validation("cost", "must not be negative")
	}
	if r.SampleCollectionDate.After(r.TestDate) {
		return apperr.Validation("sample_collection_date", "must not be after test_date")
	}
	return nil
}

func (s *Service) requireDoctor(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return apperr.Validation("doctor_id", "is required")
	}
	ok, err := s.registry.DoctorExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("doctor", id.String())
	}
	return nil
}

// CreateReport records a pathology result for an existing patient, ordered
// by an existing doctor. Missing dates default to now.
func (s *Service) CreateReport(ctx context.Context, r *Report, actor string) error {
	if r.PatientID == uuid.Nil {
		return apperr.Validation("patient_id", "is required")
	}
	now := s.now()
	if r.TestDate.IsZero() {
		r.TestDate = now
	}
	if r.SampleCollectionDate.IsZero() {
		r.SampleCollectionDate = r.TestDate
	}
	if err := validateReport(r); err != nil {
		return err
	}

	ok, err := s.registry.PatientExists(ctx, r.PatientID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("patient", r.PatientID.String())
	}
	if err := s.requireDoctor(ctx, r.DoctorID); err != nil {
		return err
	}

	if actor != "" {
		r.CreatedBy = &actor
	}
	if err := s.reports.Create(ctx, r); err != nil {
		return err
	}
	ev := s.logger.Info()
	if r.IsCritical {
		ev = s.logger.Warn()
	}
	ev.Str("report_id", r.ID.String()).Str("patient_id", r.PatientID.String()).
		Bool("critical", r.IsCritical).Msg("pathology report recorded")
	return nil
}

func (s *Service) GetReport(ctx context.Context, id uuid.UUID) (*Report, error) {
	return s.reports.GetByID(ctx, id)
}

func (s *Service) ListReports(ctx context.Context, limit, offset int) ([]*Report, int, error) {
	return s.reports.List(ctx, limit, offset)
}

func (s *Service) ListReportsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Report, int, error) {
	return s.reports.ListByPatient(ctx, patientID, limit, offset)
}

// UpdateReport merges req onto the stored report.
func (s *Service) UpdateReport(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Report, error) {
	r, err := s.reports.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	prevDoctor := r.DoctorID
	req.apply(r)
	if err := validateReport(r); err != nil {
		return nil, err
	}
	if r.DoctorID != prevDoctor {
		if err := s.requireDoctor(ctx, r.DoctorID); err != nil {
			return nil, err
		}
	}
	if err := s.reports.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) DeleteReport(ctx context.Context, id uuid.UUID) error {
	return s.reports.Delete(ctx, id)
}
