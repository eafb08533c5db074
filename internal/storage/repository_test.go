package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/garyellow/osvita-occupancy/internal/errors"
	"github.com/garyellow/osvita-occupancy/internal/occupancy"
)

func sampleRooms() occupancy.Snapshot {
	return occupancy.Snapshot{
		{
			Name:     "2-204",
			Building: "2",
			Slots: map[int]occupancy.Cell{
				1: {Groups: []string{"A", "B"}, Instructor: "Іванов І.І.", Discipline: "Фізика"},
			},
		},
	}
}

func TestOccupancy_SaveAndGet(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	rec := &Occupancy{Date: "2024-03-11", ScanID: "scan-1", Rooms: sampleRooms()}
	require.NoError(t, db.SaveOccupancy(ctx, rec, time.Hour))
	assert.False(t, rec.ExpiresAt.IsZero())

	got, err := db.GetOccupancy(ctx, "2024-03-11")
	require.NoError(t, err)
	assert.Equal(t, "scan-1", got.ScanID)
	assert.Equal(t, sampleRooms(), got.Rooms)
	assert.WithinDuration(t, rec.ExpiresAt, got.ExpiresAt, time.Second)
}

func TestOccupancy_Overwrite(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveOccupancy(ctx, &Occupancy{Date: "2024-03-11", Rooms: sampleRooms()}, time.Hour))
	require.NoError(t, db.SaveOccupancy(ctx, &Occupancy{Date: "2024-03-11"}, time.Hour))

	got, err := db.GetOccupancy(ctx, "2024-03-11")
	require.NoError(t, err)
	assert.Empty(t, got.Rooms)
}

func TestOccupancy_NotFound(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)

	_, err := db.GetOccupancy(context.Background(), "2030-01-01")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestOccupancy_RejectsEmptyDate(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)

	err := db.SaveOccupancy(context.Background(), &Occupancy{}, time.Hour)
	assert.True(t, apperrors.IsInvalidInput(err))
}

func TestOccupancy_Expiry(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	now := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return now }

	require.NoError(t, db.SaveOccupancy(ctx, &Occupancy{Date: "2024-03-11", Rooms: sampleRooms()}, time.Hour))
	require.NoError(t, db.SaveOccupancy(ctx, &Occupancy{Date: "2024-03-12"}, 3*time.Hour))

	now = now.Add(time.Hour)
	_, err := db.GetOccupancy(ctx, "2024-03-11")
	assert.ErrorIs(t, err, apperrors.ErrNotFound, "entry expires exactly at ttl")

	_, err = db.GetOccupancy(ctx, "2024-03-12")
	assert.NoError(t, err)

	now = now.Add(2 * time.Hour)
	n, err := db.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestLinks_SetAndDelete(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	links, err := db.GetLinks(ctx)
	require.NoError(t, err)
	assert.Empty(t, links)

	require.NoError(t, db.SetLink(ctx, "Фізика|Іванов", json.RawMessage(`"https://meet.example/abc"`)))
	require.NoError(t, db.SetLink(ctx, "Хімія", json.RawMessage(`{"url":"https://x"}`)))

	links, err = db.GetLinks(ctx)
	require.NoError(t, err)
	assert.Len(t, links, 2)
	assert.JSONEq(t, `"https://meet.example/abc"`, string(links["Фізика|Іванов"]))

	require.NoError(t, db.SetLink(ctx, "Фізика|Іванов", json.RawMessage("null")))
	require.NoError(t, db.SetLink(ctx, "missing", nil))

	links, err = db.GetLinks(ctx)
	require.NoError(t, err)
	assert.Len(t, links, 1)
	assert.Contains(t, links, "Хімія")
}

func TestLinks_EmptyKey(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)

	err := db.SetLink(context.Background(), "", json.RawMessage(`"x"`))
	var ve *apperrors.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestTimes(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	times, err := db.GetTimes(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(times))

	require.NoError(t, db.SetTimes(ctx, Times(`{"1":{"start":"08:30","end":"09:50"}}`)))
	times, err = db.GetTimes(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"1":{"start":"08:30","end":"09:50"}}`, string(times))

	assert.Error(t, db.SetTimes(ctx, Times(`[1,2]`)))

	require.NoError(t, db.SetTimes(ctx, nil))
	times, err = db.GetTimes(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(times))
}

func TestTimes_JSONRoundTrip(t *testing.T) {
	t.Parallel()
	var body struct {
		Times Times `json:"times"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"times":{"2":{"start":"10:05"}}}`), &body))
	assert.JSONEq(t, `{"2":{"start":"10:05"}}`, string(body.Times))

	out, err := json.Marshal(struct {
		Times Times `json:"times"`
	}{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"times":{}}`, string(out))
}
