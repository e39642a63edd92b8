package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/kursadbilgin/fcm-courier/fcm"
)

type fakeStore struct {
	replaceFn       func(ctx context.Context, oldID, newID string) error
	removeFn        func(ctx context.Context, id string) error
	markDeliveredFn func(ctx context.Context, id, messageID string) error

	replaced  [][2]string
	removed   []string
	delivered map[string]string
}

var _ Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{delivered: make(map[string]string)}
}

func (f *fakeStore) Replace(ctx context.Context, oldID, newID string) error {
	if f.replaceFn != nil {
		return f.replaceFn(ctx, oldID, newID)
	}
	f.replaced = append(f.replaced, [2]string{oldID, newID})
	return nil
}

func (f *fakeStore) Remove(ctx context.Context, id string) error {
	if f.removeFn != nil {
		return f.removeFn(ctx, id)
	}
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeStore) MarkDelivered(ctx context.Context, id, messageID string) error {
	if f.markDeliveredFn != nil {
		return f.markDeliveredFn(ctx, id, messageID)
	}
	f.delivered[id] = messageID
	return nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) Close() error { return nil }

func reconcileForTest(t *testing.T, recipients []string, results []fcm.Result) *fcm.Report {
	t.Helper()

	report, err := fcm.Reconcile(recipients, &fcm.Response{Results: results})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	return report
}

func TestApplyFoldsReport(t *testing.T) {
	t.Parallel()

	report := reconcileForTest(t,
		[]string{"gone", "moved", "ok", "flaky"},
		[]fcm.Result{
			{Error: fcm.ReasonNotRegistered},
			{MessageID: "0:moved", RegistrationID: "moved-new"},
			{MessageID: "0:ok"},
			{Error: fcm.ReasonUnavailable},
		},
	)

	store := newFakeStore()
	result, err := Apply(context.Background(), store, report)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if result.Replaced != 1 || result.Removed != 1 || result.Delivered != 2 {
		t.Fatalf("ApplyResult = %+v, want 1 replaced, 1 removed, 2 delivered", result)
	}

	if len(store.replaced) != 1 || store.replaced[0] != [2]string{"moved", "moved-new"} {
		t.Fatalf("replaced = %v, want [[moved moved-new]]", store.replaced)
	}
	if len(store.removed) != 1 || store.removed[0] != "gone" {
		t.Fatalf("removed = %v, want [gone]", store.removed)
	}

	// The rotated recipient's delivery mark lands on its new token;
	// the transiently unavailable token stays registered.
	if got := store.delivered["moved-new"]; got != "0:moved" {
		t.Fatalf("delivered[moved-new] = %q, want 0:moved", got)
	}
	if got := store.delivered["ok"]; got != "0:ok" {
		t.Fatalf("delivered[ok] = %q, want 0:ok", got)
	}
	if _, ok := store.delivered["moved"]; ok {
		t.Fatal("old token should not receive the delivery mark")
	}
}

func TestApplyTransientReasonsKeepTokens(t *testing.T) {
	t.Parallel()

	report := reconcileForTest(t,
		[]string{"a", "b"},
		[]fcm.Result{
			{Error: fcm.ReasonUnavailable},
			{Error: "QuotaExceeded"},
		},
	)

	store := newFakeStore()
	result, err := Apply(context.Background(), store, report)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if result.Removed != 0 {
		t.Fatalf("Removed = %d, want 0", result.Removed)
	}
	if len(store.removed) != 0 {
		t.Fatalf("removed = %v, want none", store.removed)
	}
}

func TestApplyEmptyReport(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	result, err := Apply(context.Background(), store, &fcm.Report{})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if result != (ApplyResult{}) {
		t.Fatalf("ApplyResult = %+v, want zero", result)
	}
}

func TestApplyPropagatesStoreErrors(t *testing.T) {
	t.Parallel()

	report := reconcileForTest(t,
		[]string{"gone"},
		[]fcm.Result{{Error: fcm.ReasonNotRegistered}},
	)

	storeErr := errors.New("backend down")
	store := newFakeStore()
	store.removeFn = func(context.Context, string) error { return storeErr }

	_, err := Apply(context.Background(), store, report)
	if !errors.Is(err, storeErr) {
		t.Fatalf("Apply() error = %v, want wrapped store error", err)
	}
}

func TestApplyRequiresStore(t *testing.T) {
	t.Parallel()

	if _, err := Apply(context.Background(), nil, &fcm.Report{}); err == nil {
		t.Fatal("expected error for nil store")
	}
}

func TestUnrecoverableReasons(t *testing.T) {
	t.Parallel()

	for _, reason := range []string{
		fcm.ReasonNotRegistered,
		fcm.ReasonInvalidRegistration,
		fcm.ReasonMissingRegistration,
	} {
		if !Unrecoverable(reason) {
			t.Fatalf("Unrecoverable(%s) = false, want true", reason)
		}
	}

	if Unrecoverable(fcm.ReasonUnavailable) {
		t.Fatal("Unavailable should not retire tokens")
	}
	if Unrecoverable("SomeNewReason") {
		t.Fatal("unknown reasons should not retire tokens")
	}
}

func TestParseBackendFromString(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		input   string
		want    Backend
		wantErr bool
	}{
		{name: "none", input: "none", want: BackendNone},
		{name: "redis mixed case", input: " Redis ", want: BackendRedis},
		{name: "postgres", input: "postgres", want: BackendPostgres},
		{name: "unknown", input: "etcd", wantErr: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseBackendFromString(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBackendFromString() error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("backend = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestOpenNopBackend(t *testing.T) {
	t.Parallel()

	store, err := Open(BackendNone, "", "")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if err := store.Replace(context.Background(), "a", "b"); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}
