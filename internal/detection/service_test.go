package detection

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdimtricp/mediaverify/internal/ai"
	"github.com/kdimtricp/mediaverify/internal/database"
	"github.com/kdimtricp/mediaverify/internal/events"
	"github.com/kdimtricp/mediaverify/internal/models"
	"github.com/kdimtricp/mediaverify/internal/storage"
)

type fakeAnalyzer struct {
	mu     sync.Mutex
	scores map[ai.Aspect]float64
	errs   map[ai.Aspect]error
	// fileErrs fails every aspect of the named file.
	fileErrs map[string]error
	inputs   []ai.MediaInput
	calls    int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, aspect ai.Aspect, in ai.MediaInput) (*ai.AspectResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.inputs = append(f.inputs, in)
	if err := f.fileErrs[in.FileName]; err != nil {
		return nil, err
	}
	if err := f.errs[aspect]; err != nil {
		return nil, err
	}
	score, ok := f.scores[aspect]
	if !ok {
		score = 90
	}
	return &ai.AspectResult{Aspect: aspect, Score: score, Authentic: score >= 50, Explanation: string(aspect) + " looks fine"}, nil
}

func (f *fakeAnalyzer) Synthesize(ctx context.Context, in ai.SynthesisInput) ai.Synthesis {
	return ai.Synthesis{Explanation: "summary for " + in.FileName, VerificationTips: []string{"check the source"}}
}

func (f *fakeAnalyzer) ModelName() string { return "fake/model" }

type fakeExtractor struct{}

func (fakeExtractor) Extract(ctx context.Context, data []byte, name string) string {
	return "Make: TestCam"
}

type fakeFrames struct {
	frame []byte
	calls int
}

func (f *fakeFrames) StillFrame(ctx context.Context, video []byte, ext string) ([]byte, error) {
	f.calls++
	return f.frame, nil
}

type memDedup struct {
	mu        sync.Mutex
	entries   map[string]string
	forgotten int
}

func (d *memDedup) Lookup(ctx context.Context, hash string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.entries[hash]
	return id, ok, nil
}

func (d *memDedup) Remember(ctx context.Context, hash, reportID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.entries[hash]; !ok {
		d.entries[hash] = reportID
	}
	return nil
}

func (d *memDedup) Forget(ctx context.Context, hash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entries, hash)
	d.forgotten++
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, key string, event *events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count(t events.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func newTestRepo(t *testing.T) database.Repository {
	t.Helper()
	repo, err := database.NewGormRepository(context.Background(), database.Config{
		Type:       "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "detect.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

// mediaServer serves fixed bytes for every path except /missing.jpg and
// /redirect.jpg.
func mediaServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing.jpg":
			http.NotFound(w, r)
		case "/redirect.jpg":
			http.Redirect(w, r, "http://blocked.invalid/a.jpg", http.StatusFound)
		default:
			w.Write([]byte("bytes of " + r.URL.Path))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDetectBatchKeepsOrderAndIsolatesFailures(t *testing.T) {
	srv := mediaServer(t)
	repo := newTestRepo(t)
	analyzer := &fakeAnalyzer{
		scores:   map[ai.Aspect]float64{ai.AspectVisual: 80, ai.AspectMetadata: 50},
		fileErrs: map[string]error{"b.jpg": errors.New("provider unavailable")},
	}
	publisher := &recordingPublisher{}

	svc := NewService(Deps{
		Repo:      repo,
		Analyzer:  analyzer,
		Extractor: fakeExtractor{},
		Publisher: publisher,
	}, Config{Concurrency: 2})

	results, err := svc.Detect(context.Background(), []FileRef{
		{URL: srv.URL + "/a.jpg", Name: "a.jpg", Type: "image/jpeg"},
		{URL: srv.URL + "/b.jpg", Name: "b.jpg", Type: "image/jpeg"},
		{URL: srv.URL + "/c.png", Name: "c.png", Type: "image/png"},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "a.jpg", results[0].FileName)
	assert.Equal(t, StatusCompleted, results[0].Status)
	assert.Equal(t, "b.jpg", results[1].FileName)
	assert.Equal(t, StatusFailed, results[1].Status)
	assert.Contains(t, results[1].Error, "provider unavailable")
	assert.Nil(t, results[1].Report)
	assert.Empty(t, results[1].UploadID)
	assert.Equal(t, "c.png", results[2].FileName)
	assert.Equal(t, StatusCompleted, results[2].Status)

	report := results[0].Report
	require.NotNil(t, report)
	// 0.7*80 + 0.3*50
	assert.InDelta(t, 71.0, report.AuthenticityPercentage, 0.001)
	assert.InDelta(t, 29.0, report.FabricationPercentage, 0.001)
	assert.Equal(t, models.StatusLikelyAuthentic, report.ResultStatus)
	assert.Equal(t, "summary for a.jpg", report.Explanation)
	assert.Equal(t, "fake/model", report.Model)
	assert.Equal(t, "Make: TestCam", report.MetadataSummary)
	assert.Equal(t, "visual looks fine", report.AspectFindings["visual"])
	assert.Nil(t, report.Scores.Video)

	upload, err := repo.GetUpload(context.Background(), results[0].UploadID)
	require.NoError(t, err)
	require.NotNil(t, upload.AnalysisReportID)
	assert.Equal(t, results[0].ReportID, *upload.AnalysisReportID)
	assert.Equal(t, contentHash([]byte("bytes of /a.jpg")), upload.ContentHash)

	stored, err := repo.ListReports(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	assert.Equal(t, 2, publisher.count(events.AnalysisCompleted))
	assert.Equal(t, 1, publisher.count(events.AnalysisFailed))
}

func TestDetectModelFailureMarksFileFailed(t *testing.T) {
	srv := mediaServer(t)
	repo := newTestRepo(t)
	analyzer := &fakeAnalyzer{errs: map[ai.Aspect]error{
		ai.AspectVisual: &ai.BlockedError{Reason: "SAFETY"},
	}}

	svc := NewService(Deps{Repo: repo, Analyzer: analyzer}, Config{})
	results, err := svc.Detect(context.Background(), []FileRef{
		{URL: srv.URL + "/a.jpg", Name: "a.jpg", Type: "image/jpeg"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StatusFailed, results[0].Status)
	assert.Contains(t, results[0].Error, "SAFETY")

	stored, err := repo.ListReports(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stored, "nothing is persisted when analysis fails")
}

func TestDetectDedupReturnsExistingReport(t *testing.T) {
	srv := mediaServer(t)
	repo := newTestRepo(t)
	analyzer := &fakeAnalyzer{}
	dedup := &memDedup{entries: map[string]string{}}

	svc := NewService(Deps{Repo: repo, Analyzer: analyzer, Dedup: dedup}, Config{})
	file := FileRef{URL: srv.URL + "/song.mp3", Name: "song.mp3", Type: "audio/mpeg"}

	first, err := svc.Detect(context.Background(), []FileRef{file})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, first[0].Status)
	callsAfterFirst := analyzer.calls

	second, err := svc.Detect(context.Background(), []FileRef{file})
	require.NoError(t, err)
	assert.True(t, second[0].Duplicate)
	assert.Equal(t, first[0].ReportID, second[0].ReportID)
	assert.Equal(t, callsAfterFirst, analyzer.calls, "cached files are not re-analysed")

	stored, err := repo.ListReports(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestDetectFetchFailureMarksFileFailed(t *testing.T) {
	srv := mediaServer(t)
	svc := NewService(Deps{Repo: newTestRepo(t), Analyzer: &fakeAnalyzer{}}, Config{})

	results, err := svc.Detect(context.Background(), []FileRef{
		{URL: srv.URL + "/missing.jpg", Name: "missing.jpg", Type: "image/jpeg"},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, results[0].Status)
	assert.Contains(t, results[0].Error, "404")
}

func TestDetectDedupDropsStaleEntry(t *testing.T) {
	srv := mediaServer(t)
	repo := newTestRepo(t)
	analyzer := &fakeAnalyzer{}
	hash := contentHash([]byte("bytes of /song.mp3"))
	dedup := &memDedup{entries: map[string]string{hash: "deleted-report"}}

	svc := NewService(Deps{Repo: repo, Analyzer: analyzer, Dedup: dedup}, Config{})
	file := FileRef{URL: srv.URL + "/song.mp3", Name: "song.mp3", Type: "audio/mpeg"}

	first, err := svc.Detect(context.Background(), []FileRef{file})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, first[0].Status, first[0].Error)
	assert.False(t, first[0].Duplicate)
	assert.Equal(t, 1, dedup.forgotten)
	assert.Equal(t, first[0].ReportID, dedup.entries[hash], "fresh report replaces the stale mapping")
	callsAfterFirst := analyzer.calls

	second, err := svc.Detect(context.Background(), []FileRef{file})
	require.NoError(t, err)
	assert.True(t, second[0].Duplicate)
	assert.Equal(t, first[0].ReportID, second[0].ReportID)
	assert.Equal(t, callsAfterFirst, analyzer.calls)

	stored, err := repo.ListReports(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestDetectAllowedHosts(t *testing.T) {
	srv := mediaServer(t)

	tests := []struct {
		name       string
		hosts      []string
		path       string
		wantStatus string
		wantError  string
	}{
		{"No allowlist", nil, "/a.jpg", StatusCompleted, ""},
		{"Listed host", []string{"127.0.0.1"}, "/a.jpg", StatusCompleted, ""},
		{"Unlisted host", []string{"media.example.com"}, "/a.jpg", StatusFailed, "not in the allowed fetch hosts"},
		{"Redirect to unlisted host", []string{"127.0.0.1"}, "/redirect.jpg", StatusFailed, "not in the allowed fetch hosts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(Deps{Repo: newTestRepo(t), Analyzer: &fakeAnalyzer{}}, Config{AllowedHosts: tt.hosts})
			results, err := svc.Detect(context.Background(), []FileRef{
				{URL: srv.URL + tt.path, Name: "a.jpg", Type: "image/jpeg"},
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, results[0].Status, results[0].Error)
			if tt.wantError != "" {
				assert.Contains(t, results[0].Error, tt.wantError)
			}
		})
	}
}

func TestDetectVideoUsesStillFrame(t *testing.T) {
	srv := mediaServer(t)
	repo := newTestRepo(t)
	analyzer := &fakeAnalyzer{}
	frames := &fakeFrames{frame: []byte("jpeg")}

	svc := NewService(Deps{Repo: repo, Analyzer: analyzer, Frames: frames}, Config{})
	results, err := svc.Detect(context.Background(), []FileRef{
		{URL: srv.URL + "/clip.mp4", Name: "clip.mp4", Type: "video/mp4"},
	})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, results[0].Status)

	assert.Equal(t, 1, frames.calls)
	require.Len(t, analyzer.inputs, 3, "video, audio and metadata aspects")
	for _, in := range analyzer.inputs {
		assert.Equal(t, []byte("jpeg"), in.Frame)
		assert.Equal(t, models.MediaTypeVideo, in.MediaType)
	}
	require.NotNil(t, results[0].Report.Scores.Video)
	require.NotNil(t, results[0].Report.Scores.Audio)
	assert.Nil(t, results[0].Report.Scores.Visual)
}

func TestDetectReadsFromStorePath(t *testing.T) {
	repo := newTestRepo(t)
	store, err := storage.NewLocalStorage(t.TempDir(), "http://localhost:8080", "uploads")
	require.NoError(t, err)

	obj, err := store.Store(context.Background(), []byte("local image"), storage.FileInfo{
		Filename: "photo.jpg", ContentType: "image/jpeg", Size: 11,
	})
	require.NoError(t, err)

	svc := NewService(Deps{Repo: repo, Store: store, Analyzer: &fakeAnalyzer{}}, Config{})
	results, err := svc.Detect(context.Background(), []FileRef{
		{URL: obj.URL, Name: "photo.jpg", Type: "image/jpeg", FilePath: obj.Path},
	})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, results[0].Status, results[0].Error)

	upload, err := repo.GetUpload(context.Background(), results[0].UploadID)
	require.NoError(t, err)
	assert.Equal(t, obj.Path, upload.StoragePath)
	assert.Equal(t, int64(11), upload.Size)
}

func TestDetectRejectsFetchOverLimit(t *testing.T) {
	srv := mediaServer(t)
	svc := NewService(Deps{Repo: newTestRepo(t), Analyzer: &fakeAnalyzer{}}, Config{MaxFetchBytes: 4})

	results, err := svc.Detect(context.Background(), []FileRef{
		{URL: srv.URL + "/a.jpg", Name: "a.jpg", Type: "image/jpeg"},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, results[0].Status)
	assert.Contains(t, results[0].Error, "exceeds")
}

func TestDetectValidation(t *testing.T) {
	svc := NewService(Deps{Repo: newTestRepo(t), Analyzer: &fakeAnalyzer{}}, Config{})

	tests := []struct {
		name  string
		files []FileRef
	}{
		{"empty batch", nil},
		{"no location", []FileRef{{Name: "a.jpg", Type: "image/jpeg"}}},
		{"unsupported type", []FileRef{{URL: "http://x/a.txt", Name: "a.txt", Type: "text/plain"}}},
		{"unknown extension", []FileRef{{URL: "http://x/blob", Name: "blob"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Detect(context.Background(), tt.files)
			var verr *ValidationError
			assert.True(t, errors.As(err, &verr), "got %v", err)
		})
	}
}

func TestDetectNotConfigured(t *testing.T) {
	svc := NewService(Deps{Repo: newTestRepo(t)}, Config{})
	assert.False(t, svc.Ready())

	_, err := svc.Detect(context.Background(), []FileRef{{URL: "http://x/a.jpg", Type: "image/jpeg"}})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestFileRefDisplayName(t *testing.T) {
	tests := []struct {
		ref  FileRef
		want string
	}{
		{FileRef{Name: "given.png", URL: "http://x/other.jpg"}, "given.png"},
		{FileRef{FilePath: "deepfake_detection/abc.mp4"}, "abc.mp4"},
		{FileRef{URL: "https://cdn.example.com/f/clip.webm?tr=so-1"}, "clip.webm"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.ref.displayName())
	}
}
