package room

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
	"github.com/hmis/hmis/internal/platform/lock"
)

// -- Mock Repositories --

type mockRoomRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]Room
}

func newMockRoomRepo() *mockRoomRepo {
	return &mockRoomRepo{items: make(map[uuid.UUID]Room)}
}

func (m *mockRoomRepo) Create(_ context.Context, r *Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if existing.RoomNumber == r.RoomNumber {
			return apperr.Conflict(r.RoomNumber, "room number already registered")
		}
	}
	r.ID = uuid.New()
	r.VersionID = 1
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	m.items[r.ID] = *r
	return nil
}

func (m *mockRoomRepo) GetByID(_ context.Context, id uuid.UUID) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("room", id.String())
	}
	return &r, nil
}

func (m *mockRoomRepo) list(filter func(Room) bool) ([]*Room, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*Room
	for _, r := range m.items {
		if filter(r) {
			r := r
			result = append(result, &r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RoomNumber < result[j].RoomNumber })
	return result, len(result), nil
}

func (m *mockRoomRepo) List(_ context.Context, _, _ int) ([]*Room, int, error) {
	return m.list(func(Room) bool { return true })
}

func (m *mockRoomRepo) ListAvailable(_ context.Context, _, _ int) ([]*Room, int, error) {
	return m.list(func(r Room) bool { return r.State == Available })
}

func (m *mockRoomRepo) Update(_ context.Context, r *Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.items[r.ID]
	if !ok {
		return apperr.NotFound("room", r.ID.String())
	}
	if stored.VersionID != r.VersionID {
		return apperr.Conflict(r.ID.String(), "room was modified concurrently")
	}
	r.VersionID++
	m.items[r.ID] = *r
	return nil
}

func (m *mockRoomRepo) DeleteAvailable(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.items[id]
	if !ok {
		return apperr.NotFound("room", id.String())
	}
	if r.State != Available {
		return apperr.Conflict(id.String(), "cannot delete an occupied room")
	}
	delete(m.items, id)
	return nil
}

type mockEventRepo struct {
	mu     sync.Mutex
	events []*OccupancyEvent
}

func (m *mockEventRepo) Append(_ context.Context, e *OccupancyEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = uuid.New()
	m.events = append(m.events, e)
	return nil
}

func (m *mockEventRepo) ListByRoom(_ context.Context, roomID uuid.UUID, _, _ int) ([]*OccupancyEvent, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*OccupancyEvent
	for _, e := range m.events {
		if e.RoomID == roomID {
			result = append(result, e)
		}
	}
	return result, len(result), nil
}

type mockPatients map[uuid.UUID]bool

func (m mockPatients) PatientExists(_ context.Context, id uuid.UUID) (bool, error) {
	return m[id], nil
}

type testEnv struct {
	svc      *Service
	rooms    *mockRoomRepo
	events   *mockEventRepo
	patients mockPatients
}

func newTestEnv() *testEnv {
	env := &testEnv{
		rooms:    newMockRoomRepo(),
		events:   &mockEventRepo{},
		patients: mockPatients{},
	}
	env.svc = NewService(env.rooms, env.events, env.patients, lock.NewLocal(), zerolog.Nop())
	return env
}

func (env *testEnv) patient() uuid.UUID {
	id := uuid.New()
	env.patients[id] = true
	return id
}

func (env *testEnv) room(t *testing.T, number string) *Room {
	t.Helper()
	r := &Room{RoomNumber: number, RoomType: Private, ChargesPerDay: decimal.NewFromInt(2500)}
	if err := env.svc.CreateRoom(context.Background(), r); err != nil {
		t.Fatalf("create room: %v", err)
	}
	return r
}

// -- Tests --

func TestService_CreateRoom(t *testing.T) {
	env := newTestEnv()
	pid := uuid.New()
	now := time.Now()
	r := &Room{RoomNumber: " 204 ", RoomType: ICU, State: Occupied, CurrentPatientID: &pid, OccupiedSince: &now}

	if err := env.svc.CreateRoom(context.Background(), r); err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.ID == uuid.Nil {
		t.Error("expected ID assigned")
	}
	if r.RoomNumber != "204" {
		t.Errorf("expected trimmed room number, got %q", r.RoomNumber)
	}
	if r.State != Available || r.CurrentPatientID != nil || r.OccupiedSince != nil {
		t.Errorf("new rooms must start Available, got %+v", r)
	}
}

func TestService_CreateRoom_Defaults(t *testing.T) {
	env := newTestEnv()
	r := &Room{RoomNumber: "1"}
	if err := env.svc.CreateRoom(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	if r.RoomType != General {
		t.Errorf("expected default room type General, got %s", r.RoomType)
	}
}

func TestService_CreateRoom_Validation(t *testing.T) {
	env := newTestEnv()
	tests := []*Room{
		{RoomNumber: "", RoomType: General},
		{RoomNumber: "1", RoomType: "Suite"},
		{RoomNumber: "1", RoomType: General, ChargesPerDay: decimal.NewFromInt(-1)},
	}
	for _, r := range tests {
		if err := env.svc.CreateRoom(context.Background(), r); !apperr.IsValidation(err) {
			t.Errorf("expected validation error for %+v, got %v", r, err)
		}
	}
}

func TestService_CreateRoom_DuplicateNumber(t *testing.T) {
	env := newTestEnv()
	env.room(t, "101")
	err := env.svc.CreateRoom(context.Background(), &Room{RoomNumber: "101", RoomType: General})
	if !apperr.IsConflict(err) {
		t.Errorf("expected conflict, got %v", err)
	}
}

func TestService_AssignRoom(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	r := env.room(t, "101")
	p7, p9 := env.patient(), env.patient()

	got, err := env.svc.AssignRoom(ctx, r.ID, p7, "user-1")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if got.State != Occupied || *got.CurrentPatientID != p7 {
		t.Errorf("expected room held by patient 7, got %+v", got)
	}

	if _, err := env.svc.AssignRoom(ctx, r.ID, p9, "user-1"); !apperr.IsConflict(err) {
		t.Fatalf("expected conflict on second assign, got %v", err)
	}
	stored, _ := env.rooms.GetByID(ctx, r.ID)
	if *stored.CurrentPatientID != p7 {
		t.Error("second assign must not overwrite the occupant")
	}

	events, _, _ := env.events.ListByRoom(ctx, r.ID, 10, 0)
	if len(events) != 1 || events[0].Action != ActionAssign || events[0].PatientID != p7 {
		t.Errorf("expected one assign event, got %+v", events)
	}
	if events[0].ActorID == nil || *events[0].ActorID != "user-1" {
		t.Errorf("expected actor recorded, got %v", events[0].ActorID)
	}
}

func TestService_AssignRoom_UnknownPatient(t *testing.T) {
	env := newTestEnv()
	r := env.room(t, "101")
	if _, err := env.svc.AssignRoom(context.Background(), r.ID, uuid.New(), ""); !apperr.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestService_AssignRoom_UnknownRoom(t *testing.T) {
	env := newTestEnv()
	if _, err := env.svc.AssignRoom(context.Background(), uuid.New(), env.patient(), ""); !apperr.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestService_AssignRoom_Concurrent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	r := env.room(t, "ICU-1")

	const n = 20
	patients := make([]uuid.UUID, n)
	for i := range patients {
		patients[i] = env.patient()
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, conflicts := 0, 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(p uuid.UUID) {
			defer wg.Done()
			_, err := env.svc.AssignRoom(ctx, r.ID, p, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case apperr.IsConflict(err):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(patients[i])
	}
	wg.Wait()

	if succeeded != 1 {
		t.Errorf("expected exactly one successful assign, got %d", succeeded)
	}
	if conflicts != n-1 {
		t.Errorf("expected %d conflicts, got %d", n-1, conflicts)
	}
	stored, _ := env.rooms.GetByID(ctx, r.ID)
	if err := stored.CheckInvariant(); err != nil {
		t.Error(err)
	}
}

func TestService_ReleaseRoom(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	r := env.room(t, "101")
	p := env.patient()
	if _, err := env.svc.AssignRoom(ctx, r.ID, p, ""); err != nil {
		t.Fatal(err)
	}

	got, err := env.svc.ReleaseRoom(ctx, r.ID, "")
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if got.State != Available || got.CurrentPatientID != nil || got.OccupiedSince != nil {
		t.Errorf("expected free room, got %+v", got)
	}

	again, err := env.svc.ReleaseRoom(ctx, r.ID, "")
	if err != nil {
		t.Fatalf("second release: %v", err)
	}
	if again.State != Available || again.VersionID != got.VersionID {
		t.Errorf("second release must be a no-op, got %+v", again)
	}

	events, _, _ := env.events.ListByRoom(ctx, r.ID, 10, 0)
	if len(events) != 2 || events[1].Action != ActionRelease || events[1].PatientID != p {
		t.Errorf("expected assign then release events, got %+v", events)
	}
}

func TestService_TransferRoom(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	r := env.room(t, "101")
	from, to := env.patient(), env.patient()
	if _, err := env.svc.AssignRoom(ctx, r.ID, from, ""); err != nil {
		t.Fatal(err)
	}

	got, err := env.svc.TransferRoom(ctx, r.ID, from, to, "")
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if *got.CurrentPatientID != to {
		t.Errorf("expected occupant %s, got %s", to, got.CurrentPatientID)
	}

	if _, err := env.svc.TransferRoom(ctx, r.ID, from, env.patient(), ""); !apperr.IsConflict(err) {
		t.Errorf("expected conflict when transferring from a former occupant, got %v", err)
	}

	events, _, _ := env.events.ListByRoom(ctx, r.ID, 10, 0)
	last := events[len(events)-1]
	if last.Action != ActionTransfer || last.PreviousPatientID == nil || *last.PreviousPatientID != from {
		t.Errorf("unexpected transfer event: %+v", last)
	}
}

func TestService_DeleteRoom(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	r := env.room(t, "101")
	if _, err := env.svc.AssignRoom(ctx, r.ID, env.patient(), ""); err != nil {
		t.Fatal(err)
	}

	if err := env.svc.DeleteRoom(ctx, r.ID); !apperr.IsConflict(err) {
		t.Fatalf("expected conflict deleting occupied room, got %v", err)
	}
	stored, err := env.rooms.GetByID(ctx, r.ID)
	if err != nil {
		t.Fatalf("occupied room must not be removed: %v", err)
	}
	if stored.State != Occupied {
		t.Error("occupied room must be unchanged")
	}

	if _, err := env.svc.ReleaseRoom(ctx, r.ID, ""); err != nil {
		t.Fatal(err)
	}
	if err := env.svc.DeleteRoom(ctx, r.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.rooms.GetByID(ctx, r.ID); !apperr.IsNotFound(err) {
		t.Errorf("expected room gone, got %v", err)
	}
	if err := env.svc.DeleteRoom(ctx, r.ID); !apperr.IsNotFound(err) {
		t.Errorf("expected not found deleting twice, got %v", err)
	}
}

func TestService_UpdateRoom(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	r := env.room(t, "101")
	p := env.patient()
	if _, err := env.svc.AssignRoom(ctx, r.ID, p, ""); err != nil {
		t.Fatal(err)
	}

	charges := decimal.NewFromInt(3000)
	icu := ICU
	got, err := env.svc.UpdateRoom(ctx, r.ID, UpdateRequest{RoomType: &icu, ChargesPerDay: &charges})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.RoomType != ICU || !got.ChargesPerDay.Equal(charges) {
		t.Errorf("unexpected room after update: %+v", got)
	}
	if got.State != Occupied || *got.CurrentPatientID != p {
		t.Error("update must not touch occupancy")
	}

	bad := RoomType("Suite")
	if _, err := env.svc.UpdateRoom(ctx, r.ID, UpdateRequest{RoomType: &bad}); !apperr.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestService_ListAvailableRooms(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	a := env.room(t, "101")
	env.room(t, "102")
	if _, err := env.svc.AssignRoom(ctx, a.ID, env.patient(), ""); err != nil {
		t.Fatal(err)
	}

	items, total, err := env.svc.ListAvailableRooms(ctx, 20, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || items[0].RoomNumber != "102" {
		t.Errorf("expected only room 102 available, got %d rooms", total)
	}

	_, total, _ = env.svc.ListRooms(ctx, 20, 0)
	if total != 2 {
		t.Errorf("expected 2 rooms, got %d", total)
	}
}

func TestService_ListOccupancyEvents_UnknownRoom(t *testing.T) {
	env := newTestEnv()
	if _, _, err := env.svc.ListOccupancyEvents(context.Background(), uuid.New(), 10, 0); !apperr.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestService_StaleWriteIsConflict(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	r := env.room(t, "101")

	// another writer bumps the version between our read and write
	env.svc.SetTxFunc(func(ctx context.Context, fn func(ctx context.Context) error) error {
		env.rooms.mu.Lock()
		stored := env.rooms.items[r.ID]
		stored.VersionID++
		env.rooms.items[r.ID] = stored
		env.rooms.mu.Unlock()
		return fn(ctx)
	})
	env.svc.rooms = &staleReader{mockRoomRepo: env.rooms, version: r.VersionID}

	if _, err := env.svc.AssignRoom(ctx, r.ID, env.patient(), ""); !apperr.IsConflict(err) {
		t.Errorf("expected conflict on stale write, got %v", err)
	}
}

// staleReader returns rooms as they were at a fixed version.
type staleReader struct {
	*mockRoomRepo
	version int
}

func (s *staleReader) GetByID(ctx context.Context, id uuid.UUID) (*Room, error) {
	r, err := s.mockRoomRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.VersionID = s.version
	return r, nil
}
