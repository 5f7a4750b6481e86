package migration_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/internquest/backend/core"
	"github.com/internquest/backend/core/authz"
	"github.com/internquest/backend/core/migration"
	"github.com/internquest/backend/storage/docstore/inmem"
	"github.com/internquest/backend/tests"
)

var admin = authz.System()

func newEngine(store core.DocStore, conf *core.Config) *migration.Engine {
	return migration.NewEngine(store, core.NewValidator(), new(testutil.Logger), conf)
}

func boolPtr(b bool) *bool { return &b }

func get(t *testing.T, store *inmemstore.Store, coll, id string) map[string]interface{} {
	doc, err := store.Get(context.Background(), coll, id)
	require.NoError(t, err)
	return doc.Data
}

func TestEffectiveBatchSize(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 300},
		{-5, 300},
		{1, 50},
		{50, 50},
		{120, 120},
		{450, 450},
		{1000, 450},
	}
	for _, tt := range tests {
		if got := migration.EffectiveBatchSize(tt.in); got != tt.want {
			t.Errorf("EffectiveBatchSize(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestEngine_Run_Authorization(t *testing.T) {
	engine := newEngine(testutil.NewDocStore(), testutil.Config())
	tests := []struct {
		name   string
		caller *authz.Caller
		want   core.Kind
	}{
		{"anonymous", nil, core.KindUnauthenticated},
		{"no role", &authz.Caller{UID: "u1"}, core.KindPermissionDenied},
		{"coordinator", &authz.Caller{UID: "u1", RoleClaim: "coordinator"}, core.KindPermissionDenied},
		{"adviser", &authz.Caller{UID: "u1", RoleClaim: "adviser"}, core.KindPermissionDenied},
		{"legacy admin claim", &authz.Caller{UID: "u1", RoleClaim: "Super_Admin"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Run(context.Background(), tt.caller, migration.Options{DryRun: true})
			assert.Equal(t, tt.want, core.KindOf(err))
		})
	}
}

func TestEngine_Run_Backfill(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewDocStore()
	store.Put("users", "a", map[string]interface{}{"studentNumber": "12-345"})
	store.Put("users", "b", map[string]interface{}{"studentId": "67-890"})
	store.Put("users", "c", map[string]interface{}{})
	engine := newEngine(store, testutil.Config())

	report, err := engine.Run(ctx, admin, migration.Options{})
	require.NoError(t, err)

	want := migration.Counts{Scanned: 3, UpdatedStudentID: 1, RemovedStudentNumber: 1, Skipped: 2}
	assert.Equal(t, want, report.Totals)
	assert.Equal(t, want, report.PerCollection["users"].Counts)
	assert.Equal(t, "c", report.PerCollection["users"].LastDocID)
	assert.Equal(t, migration.Counts{}, report.PerCollection["students"].Counts)
	assert.False(t, report.Truncated)
	assert.Nil(t, report.ResumeFrom)
	assert.Equal(t, migration.Config{
		DeleteLegacyField: true,
		BatchSize:         300,
		MaxDocs:           5000,
		Collections:       []string{"users", "students"},
		CanonicalField:    "studentId",
		LegacyField:       "studentNumber",
	}, report.Config)

	a := get(t, store, "users", "a")
	assert.Equal(t, "12-345", a["studentId"])
	assert.NotContains(t, a, "studentNumber")
	assert.IsType(t, time.Time{}, a["updatedAt"])
	assert.Equal(t, map[string]interface{}{"studentId": "67-890"}, get(t, store, "users", "b"))
	assert.Empty(t, get(t, store, "users", "c"))

	// a second run has nothing left to do
	report, err = engine.Run(ctx, admin, migration.Options{})
	require.NoError(t, err)
	assert.Equal(t, migration.Counts{Scanned: 3, Skipped: 3}, report.Totals)
}

func TestEngine_Run_Decisions(t *testing.T) {
	tests := []struct {
		name          string
		data          map[string]interface{}
		keepLegacy    bool
		want          migration.Counts
		wantID        interface{}
		wantLegacy    bool
		wantUnchanged bool
	}{
		{
			name:   "canonical never overwritten",
			data:   map[string]interface{}{"studentId": "KEEP", "studentNumber": "OTHER"},
			want:   migration.Counts{Scanned: 1, RemovedStudentNumber: 1},
			wantID: "KEEP",
		},
		{
			name:          "canonical never overwritten, legacy kept",
			data:          map[string]interface{}{"studentId": "KEEP", "studentNumber": "OTHER"},
			keepLegacy:    true,
			want:          migration.Counts{Scanned: 1, Skipped: 1},
			wantID:        "KEEP",
			wantLegacy:    true,
			wantUnchanged: true,
		},
		{
			name:       "backfill, legacy kept",
			data:       map[string]interface{}{"studentNumber": " 12-345 "},
			keepLegacy: true,
			want:       migration.Counts{Scanned: 1, UpdatedStudentID: 1},
			wantID:     "12-345",
			wantLegacy: true,
		},
		{
			name:   "blank canonical is backfilled",
			data:   map[string]interface{}{"studentId": "  ", "studentNumber": "99"},
			want:   migration.Counts{Scanned: 1, UpdatedStudentID: 1, RemovedStudentNumber: 1},
			wantID: "99",
		},
		{
			name:   "numeric legacy",
			data:   map[string]interface{}{"studentNumber": 2021001},
			want:   migration.Counts{Scanned: 1, UpdatedStudentID: 1, RemovedStudentNumber: 1},
			wantID: "2021001",
		},
		{
			name:   "empty legacy removed next to canonical",
			data:   map[string]interface{}{"studentId": "S1", "studentNumber": ""},
			want:   migration.Counts{Scanned: 1, RemovedStudentNumber: 1},
			wantID: "S1",
		},
		{
			name:          "blank legacy alone is not a target",
			data:          map[string]interface{}{"studentNumber": "  "},
			want:          migration.Counts{Scanned: 1, Skipped: 1},
			wantLegacy:    true,
			wantUnchanged: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewDocStore()
			store.Put("users", "doc", tt.data)
			before := get(t, store, "users", "doc")

			report, err := newEngine(store, testutil.Config()).Run(context.Background(), admin, migration.Options{
				DeleteLegacyField: boolPtr(!tt.keepLegacy),
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, report.Totals)

			after := get(t, store, "users", "doc")
			if tt.wantUnchanged {
				assert.Equal(t, before, after)
				return
			}
			assert.Equal(t, tt.wantID, after["studentId"])
			_, hasLegacy := after["studentNumber"]
			assert.Equal(t, tt.wantLegacy, hasLegacy)
			assert.Contains(t, after, "updatedAt")
		})
	}
}

func seed(store *inmemstore.Store, coll string, n int) {
	for i := 0; i < n; i++ {
		data := map[string]interface{}{}
		switch i % 3 {
		case 0:
			data["studentNumber"] = fmt.Sprintf("N-%d", i)
		case 1:
			data["studentId"] = fmt.Sprintf("I-%d", i)
			data["studentNumber"] = fmt.Sprintf("N-%d", i)
		}
		store.Put(coll, fmt.Sprintf("%s-%05d", coll, i), data)
	}
}

func TestEngine_Run_DryRun(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewDocStore()
	seed(store, "users", 700)
	seed(store, "students", 130)
	engine := newEngine(store, testutil.Config())

	first := get(t, store, "users", "users-00000")
	dry, err := engine.Run(ctx, admin, migration.Options{DryRun: true, BatchSize: 100})
	require.NoError(t, err)
	assert.True(t, dry.Config.DryRun)
	assert.Equal(t, first, get(t, store, "users", "users-00000"))

	live, err := engine.Run(ctx, admin, migration.Options{BatchSize: 100})
	require.NoError(t, err)
	assert.Equal(t, dry.Totals, live.Totals)
	assert.Equal(t, dry.PerCollection, live.PerCollection)
	assert.Equal(t, migration.Counts{Scanned: 830, UpdatedStudentID: 278, RemovedStudentNumber: 554, Skipped: 276}, live.Totals)
	assert.Equal(t, "N-0", get(t, store, "users", "users-00000")["studentId"])
}

func TestEngine_Run_BatchSizeClamped(t *testing.T) {
	report, err := newEngine(testutil.NewDocStore(), testutil.Config()).Run(context.Background(), admin, migration.Options{BatchSize: 1000})
	require.NoError(t, err)
	assert.Equal(t, 450, report.Config.BatchSize)
}

func TestEngine_Run_Cap(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewDocStore()
	seed(store, "users", 4990)
	seed(store, "students", 20)
	engine := newEngine(store, testutil.Config())

	report, err := engine.Run(ctx, admin, migration.Options{BatchSize: 450})
	require.NoError(t, err)
	assert.True(t, report.Truncated)
	assert.Equal(t, 5000, report.Totals.Scanned)
	assert.Equal(t, 4990, report.PerCollection["users"].Scanned)
	assert.Equal(t, 10, report.PerCollection["students"].Scanned)
	assert.Equal(t, "students-00009", report.PerCollection["students"].LastDocID)
	require.NotNil(t, report.ResumeFrom)
	assert.Equal(t, migration.Cursor{Collection: "students", AfterID: "students-00009"}, *report.ResumeFrom)

	// every scanned page was committed, the rest is untouched
	assert.Equal(t, "N-9", get(t, store, "students", "students-00009")["studentId"])
	assert.NotContains(t, get(t, store, "students", "students-00012"), "studentId")

	report, err = engine.Run(ctx, admin, migration.Options{BatchSize: 450, Resume: report.ResumeFrom})
	require.NoError(t, err)
	assert.False(t, report.Truncated)
	assert.NotContains(t, report.PerCollection, "users")
	assert.Equal(t, migration.Counts{Scanned: 10, UpdatedStudentID: 3, RemovedStudentNumber: 7, Skipped: 3}, report.Totals)
	assert.Equal(t, "N-12", get(t, store, "students", "students-00012")["studentId"])
}

func TestEngine_Run_Resume(t *testing.T) {
	engine := newEngine(testutil.NewDocStore(), testutil.Config())
	tests := []struct {
		name   string
		resume *migration.Cursor
		want   core.Kind
	}{
		{"unknown collection", &migration.Cursor{Collection: "companies"}, core.KindInvalidArgument},
		{"blank collection", &migration.Cursor{Collection: " "}, core.KindInvalidArgument},
		{"known collection", &migration.Cursor{Collection: "students", AfterID: "x"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Run(context.Background(), admin, migration.Options{DryRun: true, Resume: tt.resume})
			assert.Equal(t, tt.want, core.KindOf(err))
		})
	}
}

func TestEngine_Run_EmulatorGuard(t *testing.T) {
	ctx := context.Background()
	store := inmemstore.New(true)
	store.Put("users", "a", map[string]interface{}{"studentNumber": "1"})

	conf := testutil.Config()
	_, err := newEngine(store, conf).Run(ctx, admin, migration.Options{})
	assert.Equal(t, core.KindFailedPrecondition, core.KindOf(err))
	assert.NotContains(t, get(t, store, "users", "a"), "studentId")

	report, err := newEngine(store, conf).Run(ctx, admin, migration.Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Totals.UpdatedStudentID)

	conf.AllowEmulatorWrites = true
	_, err = newEngine(store, conf).Run(ctx, admin, migration.Options{})
	require.NoError(t, err)
	assert.Equal(t, "1", get(t, store, "users", "a")["studentId"])
}

// failingStore fails every commit after the first ok ones.
type failingStore struct {
	*inmemstore.Store
	ok int
}

func (s *failingStore) Commit(ctx context.Context, writes []core.DocWrite) error {
	if s.ok == 0 {
		return errors.New("deadline exceeded")
	}
	s.ok--
	return s.Store.Commit(ctx, writes)
}

func TestEngine_Run_CommitFailure(t *testing.T) {
	store := testutil.NewDocStore()
	seed(store, "users", 120)

	report, err := newEngine(&failingStore{Store: store, ok: 1}, testutil.Config()).Run(
		context.Background(), admin, migration.Options{BatchSize: 50},
	)
	assert.Equal(t, core.KindInternal, core.KindOf(err))
	assert.Contains(t, err.Error(), "deadline exceeded")
	assert.Equal(t, 50, report.Totals.Scanned)
	assert.Equal(t, "users-00049", report.PerCollection["users"].LastDocID)
	assert.Equal(t, "N-48", get(t, store, "users", "users-00048")["studentId"])
	assert.NotContains(t, get(t, store, "users", "users-00051"), "updatedAt")
}
