package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *BoltDB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMagnetLifecycle(t *testing.T) {
	db := openTestDB(t)

	old := &Magnet{
		ID:       "ad_deadbeef_1",
		InfoHash: "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef",
		Provider: "alldebrid",
		AddedAt:  time.Now().Add(-48 * time.Hour),
	}
	fresh := &Magnet{
		ID:       "ad_cafebabe_2",
		InfoHash: "cafebabecafebabecafebabecafebabecafebabe",
		Provider: "alldebrid",
	}
	require.NoError(t, db.StoreMagnet(old))
	require.NoError(t, db.StoreMagnet(fresh))

	assert.False(t, fresh.AddedAt.IsZero(), "AddedAt is stamped on store")

	aged, err := db.GetOldMagnets(24 * time.Hour)
	require.NoError(t, err)
	require.Len(t, aged, 1)
	assert.Equal(t, "ad_deadbeef_1", aged[0].ID)

	require.NoError(t, db.DeleteMagnet("ad_deadbeef_1"))
	aged, err = db.GetOldMagnets(24 * time.Hour)
	require.NoError(t, err)
	assert.Empty(t, aged)
}

func TestResolutionRoundTrip(t *testing.T) {
	db := openTestDB(t)

	res := &Resolution{
		Key:         "resolve:alldebrid:abc123:deadbeefdeadbeefdeadbeefdeadbeefdeadbeef",
		PlayableURL: "https://cdn.example/file.mkv",
		FileName:    "file.mkv",
		Provider:    "alldebrid",
		ExpiresAt:   time.Now().Add(time.Hour),
	}
	require.NoError(t, db.StoreResolution(res))

	got, err := db.GetResolution(res.Key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, res.PlayableURL, got.PlayableURL)
	assert.Equal(t, res.FileName, got.FileName)
}

func TestResolutionMissing(t *testing.T) {
	db := openTestDB(t)

	got, err := db.GetResolution("resolve:none:none:none")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResolutionExpiredDeletedOnRead(t *testing.T) {
	db := openTestDB(t)

	res := &Resolution{
		Key:         "resolve:alldebrid:abc123:cafebabecafebabecafebabecafebabecafebabe",
		PlayableURL: "https://cdn.example/stale.mkv",
		ExpiresAt:   time.Now().Add(-time.Minute),
	}
	require.NoError(t, db.StoreResolution(res))

	got, err := db.GetResolution(res.Key)
	require.NoError(t, err)
	assert.Nil(t, got, "expired records are not returned")

	// The record is gone, not merely hidden.
	got, err = db.GetResolution(res.Key)
	require.NoError(t, err)
	assert.Nil(t, got)
}
