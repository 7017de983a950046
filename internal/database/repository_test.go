package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kdimtricp/mediaverify/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteRepository(t *testing.T) {
	runRepositoryTests(t, setupSQLiteRepo)
}

func TestPostgresRepository(t *testing.T) {
	runRepositoryTests(t, setupPostgresRepo)
}

func TestMongoRepository(t *testing.T) {
	runRepositoryTests(t, setupMongoRepo)
}

func runRepositoryTests(t *testing.T, setup func(t *testing.T) Repository) {
	t.Run("SaveAndLink", func(t *testing.T) { testSaveAndLink(t, setup(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, setup(t)) })
	t.Run("ListReportsNewestFirst", func(t *testing.T) { testListReports(t, setup(t)) })
	t.Run("FindReportsFilters", func(t *testing.T) { testFindReports(t, setup(t)) })
	t.Run("OrphanedUploadIsKept", func(t *testing.T) { testOrphanedUpload(t, setup(t)) })
}

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		panic(err)
	}
	return d.UTC()
}

func seedReport(t *testing.T, repo Repository, name string, mediaType models.MediaType, analyzed time.Time) (*models.MediaUpload, *models.AnalysisReport) {
	t.Helper()
	ctx := context.Background()

	upload := models.NewMediaUpload(name, mediaType, "application/octet-stream", 10, "https://cdn.example.com/"+name)
	_, err := repo.SaveUpload(ctx, upload)
	require.NoError(t, err)

	visual := 80.0
	report := models.NewAnalysisReport(upload)
	report.AuthenticityPercentage = 71
	report.FabricationPercentage = 29
	report.ResultStatus = models.StatusLikelyAuthentic
	report.Explanation = "consistent"
	report.Scores = models.Scores{Visual: &visual}
	report.AspectFindings = map[string]string{"visual": "natural"}
	report.VerificationTips = []string{"reverse search"}
	report.AnalyzedDate = analyzed
	report.CreatedAt = analyzed

	_, err = repo.SaveReport(ctx, report)
	require.NoError(t, err)
	require.NoError(t, repo.LinkReportToUpload(ctx, upload.ID, report.ID))
	return upload, report
}

func testSaveAndLink(t *testing.T, repo Repository) {
	ctx := context.Background()

	upload := &models.MediaUpload{
		FileName:  "clip.mp4",
		MediaType: models.MediaTypeVideo,
		URL:       "https://cdn.example.com/clip.mp4",
	}
	uploadID, err := repo.SaveUpload(ctx, upload)
	require.NoError(t, err)
	assert.NotEmpty(t, uploadID, "id is generated when empty")

	report := models.NewAnalysisReport(upload)
	report.ResultStatus = models.StatusSuspicious
	report.AuthenticityPercentage = 55
	report.FabricationPercentage = 45
	reportID, err := repo.SaveReport(ctx, report)
	require.NoError(t, err)

	require.NoError(t, repo.LinkReportToUpload(ctx, uploadID, reportID))

	storedUpload, err := repo.GetUpload(ctx, uploadID)
	require.NoError(t, err)
	require.NotNil(t, storedUpload.AnalysisReportID)
	assert.Equal(t, reportID, *storedUpload.AnalysisReportID)

	storedReport, err := repo.GetReport(ctx, reportID)
	require.NoError(t, err)
	assert.Equal(t, uploadID, storedReport.MediaUploadID)
	assert.Equal(t, models.StatusSuspicious, storedReport.ResultStatus)
	assert.Equal(t, 55.0, storedReport.AuthenticityPercentage)
	assert.Nil(t, storedReport.Scores.Audio)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Uploads)
	assert.Equal(t, int64(1), stats.Reports)
}

func testNotFound(t *testing.T, repo Repository) {
	ctx := context.Background()

	_, err := repo.GetReport(ctx, "00000000-0000-0000-0000-000000000000")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = repo.GetUpload(ctx, "00000000-0000-0000-0000-000000000000")
	assert.True(t, errors.Is(err, ErrNotFound))

	err = repo.LinkReportToUpload(ctx, "missing", "also-missing")
	var dbErr *DatabaseError
	assert.True(t, errors.As(err, &dbErr))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func testListReports(t *testing.T, repo Repository) {
	_, older := seedReport(t, repo, "old.jpg", models.MediaTypeImage, day("2024-03-01 10:00"))
	_, newer := seedReport(t, repo, "new.jpg", models.MediaTypeImage, day("2024-03-02 10:00"))

	reports, err := repo.ListReports(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, newer.ID, reports[0].ID)
	assert.Equal(t, older.ID, reports[1].ID)
	assert.Equal(t, []string{"reverse search"}, reports[0].VerificationTips)
	assert.Equal(t, "natural", reports[0].AspectFindings["visual"])
	require.NotNil(t, reports[0].Scores.Visual)
	assert.Equal(t, 80.0, *reports[0].Scores.Visual)
}

func testFindReports(t *testing.T, repo Repository) {
	ctx := context.Background()

	seedReport(t, repo, "a.jpg", models.MediaTypeImage, day("2024-03-01 09:00"))
	upload, endDay := seedReport(t, repo, "b.mp4", models.MediaTypeVideo, day("2024-03-03 23:30"))
	seedReport(t, repo, "c.mp3", models.MediaTypeAudio, day("2024-03-04 00:00"))

	from := day("2024-03-01 00:00")
	before := day("2024-03-04 00:00")

	entries, err := repo.FindReports(ctx, ReportFilter{From: &from, Before: &before})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, upload.ID, entries[0].ID, "newest first")
	assert.Equal(t, endDay.ID, entries[0].AnalysisReportID)
	assert.Equal(t, endDay.ID, entries[0].AnalysisResult.ID)
	assert.Equal(t, "b.mp4", entries[0].FileName)

	entries, err = repo.FindReports(ctx, ReportFilter{MediaType: models.MediaTypeAudio})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "c.mp3", entries[0].FileName)

	entries, err = repo.FindReports(ctx, ReportFilter{From: &before})
	require.NoError(t, err)
	assert.Len(t, entries, 1, "lower bound is inclusive")

	entries, err = repo.FindReports(ctx, ReportFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func testOrphanedUpload(t *testing.T, repo Repository) {
	ctx := context.Background()

	upload := models.NewMediaUpload("lonely.png", models.MediaTypeImage, "image/png", 1, "https://cdn.example.com/lonely.png")
	_, err := repo.SaveUpload(ctx, upload)
	require.NoError(t, err)

	stored, err := repo.GetUpload(ctx, upload.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.AnalysisReportID)

	entries, err := repo.FindReports(ctx, ReportFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}
