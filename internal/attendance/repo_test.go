package attendance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendguard/internal/session"
	"attendguard/internal/store"
)

func newSQLiteRepo(t *testing.T) *Repository {
	t.Helper()
	ctx := context.Background()
	db, err := store.NewDB(ctx, store.DriverSQLite, filepath.Join(t.TempDir(), "attendance.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))
	return NewRepository(db)
}

func sampleRecords() []session.Record {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return []session.Record{
		{ID: "r1", Date: "2026-03-02", Timestamp: at, IdentityID: "7", Name: "Ada", Department: "Eng", Success: true, Action: session.ActionLogin, Trigger: session.TriggerVerification},
		{ID: "r2", Date: "2026-03-02", Timestamp: at.Add(time.Hour), IdentityID: "8", Name: "Bo", Department: "Ops", Success: true, Action: session.ActionLogin, Trigger: session.TriggerVerification},
		{ID: "r3", Date: "2026-03-02", Timestamp: at.Add(8 * time.Hour), IdentityID: "7", Name: "Ada", Department: "Eng", HoursWorked: 8, Success: true, Action: session.ActionLogout, Trigger: session.TriggerTimeout},
		{ID: "r4", Date: "2026-03-03", Timestamp: at.Add(24 * time.Hour), IdentityID: "7", Name: "Ada", Department: "Eng", Success: true, Action: session.ActionLogin, Trigger: session.TriggerVerification},
	}
}

func TestRepositoryAppendList(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()
	for _, rec := range sampleRecords() {
		require.NoError(t, repo.Append(ctx, rec))
	}
	assert.Error(t, repo.Append(ctx, sampleRecords()[0]), "ids are unique")

	day, err := repo.List(ctx, Filter{Date: "2026-03-02"})
	require.NoError(t, err)
	require.Len(t, day, 3)
	assert.Equal(t, []string{"r1", "r2", "r3"}, []string{day[0].ID, day[1].ID, day[2].ID})
	assert.Equal(t, session.TriggerTimeout, day[2].Trigger)
	assert.InDelta(t, 8.0, day[2].HoursWorked, 1e-9)
	assert.True(t, day[0].Timestamp.Equal(sampleRecords()[0].Timestamp))

	ada, err := repo.List(ctx, Filter{IdentityID: "7", Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, ada, 1)
	assert.Equal(t, "r3", ada[0].ID)
}

func TestRepositoryDevicesAndTokens(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	assert.ErrorIs(t, repo.UpsertDevice(ctx, ""), ErrDeviceRequired)
	require.NoError(t, repo.UpsertDevice(ctx, "kiosk-1"))
	require.NoError(t, repo.UpsertDevice(ctx, "kiosk-1"))

	ok, err := repo.DeviceExists(ctx, "kiosk-1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.DeviceExists(ctx, "kiosk-2")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.SaveRefreshToken(ctx, "kiosk-1", "tok", time.Now().Add(time.Hour)))
	require.NoError(t, repo.RotateRefreshToken(ctx, "kiosk-1", "tok"))
	assert.ErrorIs(t, repo.RotateRefreshToken(ctx, "kiosk-1", "tok"), ErrTokenRevoked)
}

func TestMemoryStore(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	for _, rec := range sampleRecords() {
		require.NoError(t, st.Append(ctx, rec))
	}
	recs, err := st.List(ctx, Filter{Date: "2026-03-02", IdentityID: "7"})
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	recs, err = st.List(ctx, Filter{Limit: 2, Offset: 3})
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	st.FailWith(assert.AnError)
	assert.ErrorIs(t, st.Append(ctx, sampleRecords()[0]), assert.AnError)
}

func TestTotals(t *testing.T) {
	recs := sampleRecords()[:3]
	recs = append(recs, session.Record{IdentityID: "8", Name: "Bo", HoursWorked: 3, Success: false, Action: session.ActionLogout})

	totals := Totals(recs)
	require.Len(t, totals, 2)
	assert.Equal(t, DailyTotal{IdentityID: "7", Name: "Ada", Department: "Eng", Hours: 8, Logins: 1, Logouts: 1}, totals[0])
	assert.Equal(t, 0.0, totals[1].Hours, "failed records do not count")
	assert.Equal(t, 1, totals[1].Logins)
}
