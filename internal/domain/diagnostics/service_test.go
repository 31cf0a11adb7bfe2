package diagnostics

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hmis/hmis/internal/platform/apperr"
)

// -- Mocks --

type mockReportRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]Report
}

func newMockReportRepo() *mockReportRepo {
	return &mockReportRepo{items: make(map[uuid.UUID]Report)}
}

func (m *mockReportRepo) Create(_ context.Context, r *Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	m.items[r.ID] = *r
	return nil
}

func (m *mockReportRepo) GetByID(_ context.Context, id uuid.UUID) (*Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("report", id.String())
	}
	return &r, nil
}

func (m *mockReportRepo) Update(_ context.Context, r *Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[r.ID]; !ok {
		return apperr.NotFound("report", r.ID.String())
	}
	r.UpdatedAt = time.Now()
	m.items[r.ID] = *r
	return nil
}

func (m *mockReportRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return apperr.NotFound("report", id.String())
	}
	delete(m.items, id)
	return nil
}

func (m *mockReportRepo) filter(keep func(Report) bool) ([]*Report, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*Report
	for _, r := range m.items {
		if keep(r) {
			r := r
			result = append(result, &r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].TestDate.After(result[j].TestDate) })
	return result, len(result), nil
}

func (m *mockReportRepo) List(_ context.Context, _, _ int) ([]*Report, int, error) {
	return m.filter(func(Report) bool { return true })
}

func (m *mockReportRepo) ListByPatient(_ context.Context, patientID uuid.UUID, _, _ int) ([]*Report, int, error) {
	return m.filter(func(r Report) bool { return r.PatientID == patientID })
}

type mockRegistry struct {
	patients map[uuid.UUID]bool
	doctors  map[uuid.UUID]bool
}

func (m *mockRegistry) PatientExists(_ context.Context, id uuid.UUID) (bool, error) {
	return m.patients[id], nil
}

func (m *mockRegistry) DoctorExists(_ context.Context, id uuid.UUID) (bool, error) {
	return m.doctors[id], nil
}

type testEnv struct {
	svc     *Service
	patient uuid.UUID
	doctor  uuid.UUID
	now     time.Time
}

func newTestEnv() *testEnv {
	env := &testEnv{
		patient: uuid.New(),
		doctor:  uuid.New(),
		now:     time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC),
	}
	reg := &mockRegistry{
		patients: map[uuid.UUID]bool{env.patient: true},
		doctors:  map[uuid.UUID]bool{env.doctor: true},
	}
	env.svc = NewService(newMockReportRepo(), reg, zerolog.Nop())
	env.svc.now = func() time.Time { return env.now }
	return env
}

func (env *testEnv) report() *Report {
	return &Report{
		PatientID: env.patient,
		DoctorID:  env.doctor,
		TestType:  "CBC",
		Results:   "Hb 13.2 g/dL",
		Cost:      decimal.NewFromInt(450),
	}
}

func TestCreateReport_DefaultsDates(t *testing.T) {
	env := newTestEnv()
	r := env.report()
	if err := env.svc.CreateReport(context.Background(), r, "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.TestDate.Equal(env.now) || !r.SampleCollectionDate.Equal(env.now) {
		t.Errorf("expected dates to default to now, got %v / %v", r.TestDate, r.SampleCollectionDate)
	}
	if r.CreatedBy == nil || *r.CreatedBy != "user-1" {
		t.Errorf("expected created_by user-1, got %v", r.CreatedBy)
	}
}

func TestCreateReport_UnknownPatientOrDoctor(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	r := env.report()
	r.PatientID = uuid.New()
	if err := env.svc.CreateReport(ctx, r, ""); !apperr.IsNotFound(err) {
		t.Errorf("expected patient not found, got %v", err)
	}

	r = env.report()
	r.DoctorID = uuid.New()
	if err := env.svc.CreateReport(ctx, r, ""); !apperr.IsNotFound(err) {
		t.Errorf("expected doctor not found, got %v", err)
	}
}

func TestCreateReport_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Report)
	}{
		{"missing patient", func(r *Report) { r.PatientID = uuid.Nil }},
		{"missing doctor", func(r *Report) { r.DoctorID = uuid.Nil }},
		{"missing test type", func(r *Report) { r.TestType = " " }},
		{"missing results", func(r *Report) { r.Results = "" }},
		{"negative cost", func(r *Report) { r.Cost = decimal.NewFromInt(-1) }},
		{"sample after test", func(r *Report) {
			r.TestDate = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
			r.SampleCollectionDate = r.TestDate.Add(time.Hour)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			r := env.report()
			tt.mutate(r)
			if err := env.svc.CreateReport(context.Background(), r, ""); !apperr.IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestListReportsByPatient_NewestFirst(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	for i, test := range []string{"CBC", "LFT", "KFT"} {
		r := env.report()
		r.TestType = test
		r.TestDate = env.now.Add(time.Duration(i) * 24 * time.Hour)
		r.SampleCollectionDate = r.TestDate
		if err := env.svc.CreateReport(ctx, r, ""); err != nil {
			t.Fatal(err)
		}
	}

	items, total, err := env.svc.ListReportsByPatient(ctx, env.patient, 20, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || items[0].TestType != "KFT" || items[2].TestType != "CBC" {
		t.Errorf("unexpected order: %d items, first %s", total, items[0].TestType)
	}

	_, total, _ = env.svc.ListReportsByPatient(ctx, uuid.New(), 20, 0)
	if total != 0 {
		t.Errorf("expected no reports for unknown patient, got %d", total)
	}
}

func TestUpdateReport_Merges(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	r := env.report()
	if err := env.svc.CreateReport(ctx, r, ""); err != nil {
		t.Fatal(err)
	}

	critical := true
	remarks := "repeat in 24h"
	got, err := env.svc.UpdateReport(ctx, r.ID, UpdateRequest{IsCritical: &critical, Remarks: &remarks})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.IsCritical || got.Remarks == nil || *got.Remarks != remarks {
		t.Errorf("expected merged fields, got %+v", got)
	}
	if got.TestType != "CBC" || !got.Cost.Equal(decimal.NewFromInt(450)) {
		t.Errorf("expected untouched fields to be kept, got %+v", got)
	}
}

func TestUpdateReport_UnknownDoctor(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	r := env.report()
	if err := env.svc.CreateReport(ctx, r, ""); err != nil {
		t.Fatal(err)
	}
	other := uuid.New()
	if _, err := env.svc.UpdateReport(ctx, r.ID, UpdateRequest{DoctorID: &other}); !apperr.IsNotFound(err) {
		t.Errorf("expected doctor not found, got %v", err)
	}
}

func TestDeleteReport(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	r := env.report()
	if err := env.svc.CreateReport(ctx, r, ""); err != nil {
		t.Fatal(err)
	}
	if err := env.svc.DeleteReport(ctx, r.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.GetReport(ctx, r.ID); !apperr.IsNotFound(err) {
		t.Errorf("expected not found after delete, got %v", err)
	}
}
