package db

import (
	"database/sql"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YannKr/imgrestore"
	"github.com/YannKr/imgrestore/internal/model"
)

func openTest(t *testing.T) *sql.DB {
	t.Helper()
	database, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, Migrate(database, imgrestore.MigrationFS))
	return database
}

func sampleRun(id, digest string, created time.Time) *model.Run {
	return &model.Run{
		ID:         id,
		SourceName: "lena.png",
		Digest:     digest,
		ParamsKey:  "db8/3",
		Width:      256,
		Height:     200,
		Wavelet:    "db8",
		Level:      3,
		Sigma:      4.25,
		Threshold:  21.1,
		ElapsedMS:  812,
		CreatedAt:  created,
		Scores: []model.StageScore{
			{Stage: "denoised", PSNR: 33.5, SSIM: 0.91},
			{Stage: "gamma", PSNR: math.Inf(1), SSIM: 1},
		},
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	database := openTest(t)
	require.NoError(t, Migrate(database, imgrestore.MigrationFS))

	var n int
	require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM _migrations`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestInsertAndGetRun(t *testing.T) {
	database := openTest(t)
	created := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	require.NoError(t, InsertRun(database, sampleRun("r1", "abc", created)))

	got, err := GetRun(database, "r1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "lena.png", got.SourceName)
	assert.Equal(t, 256, got.Width)
	assert.Equal(t, 4.25, got.Sigma)
	assert.True(t, created.Equal(got.CreatedAt))

	require.Len(t, got.Scores, 2)
	assert.Equal(t, model.StageScore{Stage: "denoised", PSNR: 33.5, SSIM: 0.91}, got.Scores[0])
	g, ok := got.Score("gamma")
	require.True(t, ok)
	assert.True(t, math.IsInf(g.PSNR, 1))

	missing, err := GetRun(database, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDuplicateRunRollsBack(t *testing.T) {
	database := openTest(t)
	r := sampleRun("dup", "d", time.Now())
	require.NoError(t, InsertRun(database, r))
	assert.Error(t, InsertRun(database, r))
}

func TestFindRunByDigest(t *testing.T) {
	database := openTest(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, InsertRun(database, sampleRun("old", "same", base)))
	require.NoError(t, InsertRun(database, sampleRun("new", "same", base.Add(time.Hour))))

	got, err := FindRunByDigest(database, "same", "db8/3")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "new", got.ID)
	assert.Len(t, got.Scores, 2)

	got, err = FindRunByDigest(database, "same", "haar/1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListAndDeleteRuns(t *testing.T) {
	database := openTest(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, InsertRun(database, sampleRun(id, id, base.Add(time.Duration(i)*24*time.Hour))))
	}

	runs, err := ListRuns(database, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)

	ids, err := DeleteRunsBefore(database, base.Add(36*time.Hour))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)

	var scores int
	require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM run_scores`).Scan(&scores))
	assert.Equal(t, 2, scores)

	runs, err = ListRuns(database, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "c", runs[0].ID)
}

func TestSQLiteTimeScan(t *testing.T) {
	var st SQLiteTime
	require.NoError(t, st.Scan("2026-02-03T04:05:06.789Z"))
	assert.Equal(t, 789*int(time.Millisecond), st.Time.Nanosecond())
	require.NoError(t, st.Scan("2026-02-03 04:05:06"))
	require.NoError(t, st.Scan(int64(0)))
	assert.Equal(t, int64(0), st.Time.Unix())
	assert.Error(t, st.Scan("yesterday"))
	assert.Error(t, st.Scan(1.5))
}
