package billing

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hmis/hmis/internal/platform/apperr"
	"github.com/hmis/hmis/internal/platform/lock"
)

// PatientLookup resolves the patient a bill is raised against.
type PatientLookup interface {
	PatientExists(ctx context.Context, id uuid.UUID) (bool, error)
	PatientName(ctx context.Context, id uuid.UUID) (string, error)
}

type Service struct {
	bills    Repository
	patients PatientLookup
	locker   lock.Locker
	now      func() time.Time
	logger   zerolog.Logger
}

func NewService(bills Repository, patients PatientLookup, locker lock.Locker, logger zerolog.Logger) *Service {
	return &Service{
		bills:    bills,
		patients: patients,
		locker:   locker,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With().Str("component", "billing").Logger(),
	}
}

func (s *Service) CreateBill(ctx context.Context, d Draft, actor string) (*Bill, error) {
	if d.PatientID == uuid.Nil {
		return nil, apperr.Validation("patient_id", "is required")
	}
	b, err := NewBill(d, s.now())
	if err != nil {
		return nil, err
	}
	ok, err := s.patients.PatientExists(ctx, d.PatientID)
	if err != nil {
		return nil, fmt.Errorf("look up patient %s: %w", d.PatientID, err)
	}
	if !ok {
		return nil, apperr.NotFound("patient", d.PatientID.String())
	}
	if actor != "" {
		b.CreatedBy = &actor
	}
	if err := s.bills.Create(ctx, b); err != nil {
		return nil, err
	}
	s.logger.Info().Str("bill_id", b.ID.String()).Str("patient_id", b.PatientID.String()).
		Str("total", b.Total.String()).Msg("bill created")
	return b, nil
}

func (s *Service) GetBill(ctx context.Context, id uuid.UUID) (*Bill, error) {
	return s.bills.GetByID(ctx, id)
}

func (s *Service) ListBills(ctx context.Context, limit, offset int) ([]*Bill, int, error) {
	return s.bills.List(ctx, limit, offset)
}

func (s *Service) ListBillsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Bill, int, error) {
	return s.bills.ListByPatient(ctx, patientID, limit, offset)
}

// ReviseBill applies patch under the bill's lock so the read, recompute and
// write cannot interleave with another revision.
func (s *Service) ReviseBill(ctx context.Context, id uuid.UUID, patch Patch) (*Bill, error) {
	unlock, err := s.locker.Lock(ctx, lock.Key("bill", id.String()))
	if err != nil {
		return nil, fmt.Errorf("lock bill %s: %w", id, err)
	}
	defer unlock()

	existing, err := s.bills.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := Revise(existing, patch, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.bills.Update(ctx, next); err != nil {
		if !apperr.IsConflict(err) && !apperr.IsNotFound(err) {
			s.logger.Error().Err(err).Str("bill_id", id.String()).Msg("failed to persist bill")
		}
		return nil, err
	}

	_, recomputed := patch.(FinancialPatch)
	s.logger.Info().Str("bill_id", id.String()).Bool("recomputed", recomputed).
		Str("payment_status", string(next.PaymentStatus)).Msg("bill revised")
	return next, nil
}

func (s *Service) DeleteBill(ctx context.Context, id uuid.UUID) error {
	unlock, err := s.locker.Lock(ctx, lock.Key("bill", id.String()))
	if err != nil {
		return fmt.Errorf("lock bill %s: %w", id, err)
	}
	defer unlock()
	return s.bills.Delete(ctx, id)
}

// ExportBill writes the bill as an .xlsx workbook to w.
func (s *Service) ExportBill(ctx context.Context, id uuid.UUID, w io.Writer) error {
	b, err := s.bills.GetByID(ctx, id)
	if err != nil {
		return err
	}
	name, err := s.patients.PatientName(ctx, b.PatientID)
	if err != nil && !apperr.IsNotFound(err) {
		return fmt.Errorf("look up patient %s: %w", b.PatientID, err)
	}
	return WriteWorkbook(w, b, name)
}
