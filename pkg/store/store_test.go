package store

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"weighbot/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestIsPostgres(t *testing.T) {
	cases := map[string]bool{
		"postgres://u:p@localhost/db":          true,
		"postgresql://localhost/db":            true,
		"host=localhost user=x dbname=y":       true,
		"data/weighbot.db":                     false,
		"":                                     false,
		"file:test.db?cache=shared&mode=memory": false,
	}
	for dsn, want := range cases {
		if got := IsPostgres(dsn); got != want {
			t.Fatalf("IsPostgres(%q) = %v", dsn, got)
		}
	}
}

func TestRegisterAndUpdateDriver(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.Driver(ctx, "7701"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
	d, err := s.RegisterDriver(ctx, "7701", "Иван Петров", "77011234567", "a123bc")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !d.IsRegistered || d.TruckNumber != "A123BC" {
		t.Fatalf("unexpected driver %+v", d)
	}
	if _, err := s.RegisterDriver(ctx, "7701", "Иван Петров", "77011234567", "b777oo"); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if err := s.UpdateTruck(ctx, "7701", "x001xx"); err != nil {
		t.Fatalf("update truck: %v", err)
	}
	d, _ = s.Driver(ctx, "7701")
	if d.TruckNumber != "X001XX" {
		t.Fatalf("expected X001XX got %s", d.TruckNumber)
	}
	all, _ := s.Drivers(ctx)
	if len(all) != 1 {
		t.Fatalf("expected one driver got %d", len(all))
	}
	if err := s.UpdateTruck(ctx, "nobody", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
}

func TestSaveWeighingComputesDifference(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if w, _ := s.LastWeight(ctx, "A123BC"); w != 0 {
		t.Fatalf("expected 0 for unknown truck got %v", w)
	}
	first := &models.Weighing{DriverChatID: "1", TruckNumber: "a123bc", CurrentWeight: 15000, CreatedAt: time.Now().UTC().Add(-time.Hour)}
	if err := s.SaveWeighing(ctx, first); err != nil {
		t.Fatalf("save: %v", err)
	}
	if first.PreviousWeight != 0 || first.WeightDifference != 15000 {
		t.Fatalf("unexpected first weighing %+v", first)
	}
	second := &models.Weighing{DriverChatID: "1", TruckNumber: "A123BC", CurrentWeight: 23450}
	if err := s.SaveWeighing(ctx, second); err != nil {
		t.Fatalf("save: %v", err)
	}
	if second.PreviousWeight != 15000 || second.WeightDifference != 8450 {
		t.Fatalf("unexpected second weighing %+v", second)
	}
	v, err := s.Vehicle(ctx, "a123bc")
	if err != nil || v.LastWeight != 23450 || v.LastWeighingAt == nil {
		t.Fatalf("vehicle not advanced: %+v %v", v, err)
	}
	hist, _ := s.VehicleHistory(ctx, "A123BC", 10)
	if len(hist) != 2 || hist[0].CurrentWeight != 23450 {
		t.Fatalf("unexpected history %+v", hist)
	}
	mine, _ := s.DriverHistory(ctx, "1", 1)
	if len(mine) != 1 {
		t.Fatalf("limit not applied")
	}
	st, err := s.VehicleStats(ctx, "A123BC")
	if err != nil || st.Count != 2 || st.MaxWeight != 23450 || st.MinWeight != 15000 {
		t.Fatalf("unexpected stats %+v %v", st, err)
	}
	if _, err := s.VehicleStats(ctx, "NONE"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
}

func TestSaveWeighingConcurrentChain(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := &models.Weighing{DriverChatID: "1", TruckNumber: "K555KK", CurrentWeight: float64(1000 * (i + 1))}
			errs <- s.SaveWeighing(ctx, w)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	hist, err := s.VehicleHistory(ctx, "K555KK", n)
	if err != nil || len(hist) != n {
		t.Fatalf("history: %d rows, %v", len(hist), err)
	}
	sort.Slice(hist, func(i, j int) bool { return hist[i].ID < hist[j].ID })
	prev := 0.0
	for _, w := range hist {
		if w.PreviousWeight != prev || w.WeightDifference != w.CurrentWeight-prev {
			t.Fatalf("weighing %d does not chain: prev=%v got %+v", w.ID, prev, w)
		}
		prev = w.CurrentWeight
	}
	v, err := s.Vehicle(ctx, "K555KK")
	if err != nil || v.LastWeight != prev {
		t.Fatalf("vehicle last weight %+v %v, want %v", v, err, prev)
	}
}

func TestStates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.SetState(ctx, "1", "awaiting_client", `{"a":1}`); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.SetState(ctx, "1", "awaiting_photo", `{"a":2}`); err != nil {
		t.Fatalf("set again: %v", err)
	}
	st, err := s.State(ctx, "1")
	if err != nil || st.State != "awaiting_photo" || st.Data != `{"a":2}` {
		t.Fatalf("unexpected state %+v %v", st, err)
	}
	n, err := s.PruneStates(ctx, time.Now().Add(time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("expected one pruned state got %d %v", n, err)
	}
	if _, err := s.State(ctx, "1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after prune got %v", err)
	}
	_ = s.SetState(ctx, "2", "x", "")
	if err := s.ClearState(ctx, "2"); err != nil {
		t.Fatalf("clear: %v", err)
	}
}

func TestScanRecords(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.SaveScanRecord(ctx, &models.ScanRecord{FileName: "a.jpg", Failed: true, FailedReason: "no weight"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	w := 23450.0
	if err := s.SaveScanRecord(ctx, &models.ScanRecord{FileName: "b.jpg", Weight: &w, Method: "primary/tesseract/labeled"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	failed, _ := s.FailedScanRecords(ctx, 10)
	if len(failed) != 1 || failed[0].FileName != "a.jpg" {
		t.Fatalf("unexpected failed records %+v", failed)
	}
	if err := s.SaveScanRecord(ctx, &models.ScanRecord{FileName: "a.jpg", Weight: &w}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	r, _ := s.ScanRecordByFile(ctx, "a.jpg")
	if r.Failed || r.Weight == nil || *r.Weight != 23450 {
		t.Fatalf("record not replaced: %+v", r)
	}
	names, err := s.ScannedFiles(ctx)
	if err != nil || len(names) != 2 {
		t.Fatalf("scanned files %v err=%v", names, err)
	}
}

func TestOperatorsAndRefreshTokens(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.EnsureRoles(ctx); err != nil {
		t.Fatalf("roles: %v", err)
	}
	if err := s.EnsureRoles(ctx); err != nil {
		t.Fatalf("roles are not idempotent: %v", err)
	}
	if err := s.SeedAdmin(ctx, "admin123"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := s.SeedAdmin(ctx, "other-pass"); err != nil {
		t.Fatalf("second seed: %v", err)
	}
	op, err := s.Authenticate(ctx, "admin", "admin123")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if op.Role.Name != models.RoleAdministrator {
		t.Fatalf("expected administrator role got %q", op.Role.Name)
	}
	if _, err := s.Authenticate(ctx, "admin", "other-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("reseed must not change the password, got %v", err)
	}
	if _, err := s.CreateOperator(ctx, "admin", "secret1", models.RoleOperator); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists got %v", err)
	}
	if _, err := s.CreateOperator(ctx, "disp", "123", models.RoleOperator); err == nil {
		t.Fatalf("short password accepted")
	}

	if err := s.SaveRefreshToken(ctx, op.ID, "hash-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("save token: %v", err)
	}
	rt, err := s.RefreshToken(ctx, "hash-1")
	if err != nil || rt.OperatorID != op.ID || rt.Revoked {
		t.Fatalf("unexpected token %+v %v", rt, err)
	}
	if err := s.RevokeRefreshToken(ctx, rt.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if rt, _ := s.RefreshToken(ctx, "hash-1"); !rt.Revoked {
		t.Fatalf("token not revoked")
	}
	if _, err := s.RefreshToken(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}

	if err := s.SaveRefreshToken(ctx, op.ID, "hash-2", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("save token: %v", err)
	}
	if err := s.ResetPassword(ctx, "admin", "new-secret"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := s.Authenticate(ctx, "admin", "new-secret"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
	if rt, _ := s.RefreshToken(ctx, "hash-2"); !rt.Revoked {
		t.Fatalf("reset must revoke refresh tokens")
	}
	if err := s.ResetPassword(ctx, "nobody", "new-secret"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
}
