package detection

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kdimtricp/mediaverify/internal/ai"
	"github.com/kdimtricp/mediaverify/internal/cache"
	"github.com/kdimtricp/mediaverify/internal/database"
	"github.com/kdimtricp/mediaverify/internal/events"
	"github.com/kdimtricp/mediaverify/internal/media"
	"github.com/kdimtricp/mediaverify/internal/metrics"
	"github.com/kdimtricp/mediaverify/internal/models"
	"github.com/kdimtricp/mediaverify/internal/scoring"
	"github.com/kdimtricp/mediaverify/internal/storage"
)

const (
	maxMetadataSummary = 4096
	eventSource        = "detection"

	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrNotConfigured is returned when detection is requested without an AI
// provider or database.
var ErrNotConfigured = errors.New("detection service is not configured")

// ValidationError rejects a batch before any file is processed.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Analyzer is the part of ai.Analyzer the pipeline depends on.
type Analyzer interface {
	Analyze(ctx context.Context, aspect ai.Aspect, in ai.MediaInput) (*ai.AspectResult, error)
	Synthesize(ctx context.Context, in ai.SynthesisInput) ai.Synthesis
	ModelName() string
}

type MetadataExtractor interface {
	Extract(ctx context.Context, data []byte, name string) string
}

type FrameGrabber interface {
	StillFrame(ctx context.Context, video []byte, ext string) ([]byte, error)
}

// FileRef points at a file previously returned by the upload endpoint, or at
// any URL reachable by the server.
type FileRef struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	FilePath string `json:"filePath,omitempty"`
	FileID   string `json:"fileId,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Result is the outcome for one input file. Failed files carry Error and no
// report.
type Result struct {
	Status    string                 `json:"status"`
	FileName  string                 `json:"fileName"`
	MediaType models.MediaType       `json:"mediaType,omitempty"`
	URL       string                 `json:"url"`
	UploadID  string                 `json:"uploadId,omitempty"`
	ReportID  string                 `json:"reportId,omitempty"`
	Duplicate bool                   `json:"duplicate,omitempty"`
	Report    *models.AnalysisReport `json:"report,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

type Deps struct {
	Repo      database.Repository
	Store     storage.Storage
	Analyzer  Analyzer
	Extractor MetadataExtractor
	Frames    FrameGrabber
	Dedup     cache.Dedup
	Publisher events.Publisher
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

type Config struct {
	Concurrency   int
	MaxFetchBytes int64
	FetchTimeout  time.Duration
	// AllowedHosts restricts URL downloads to these hostnames when set.
	AllowedHosts []string
}

type Service struct {
	repo      database.Repository
	store     storage.Storage
	analyzer  Analyzer
	extractor MetadataExtractor
	frames    FrameGrabber
	dedup     cache.Dedup
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger

	httpClient    *http.Client
	concurrency   int
	maxFetchBytes int64
	allowedHosts  map[string]bool
}

func NewService(deps Deps, config Config) *Service {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.MaxFetchBytes <= 0 {
		config.MaxFetchBytes = 100 << 20
	}
	if config.FetchTimeout == 0 {
		config.FetchTimeout = 2 * time.Minute
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NopPublisher{}
	}

	var allowed map[string]bool
	if len(config.AllowedHosts) > 0 {
		allowed = make(map[string]bool, len(config.AllowedHosts))
		for _, h := range config.AllowedHosts {
			allowed[strings.ToLower(h)] = true
		}
	}

	svc := &Service{
		repo:          deps.Repo,
		store:         deps.Store,
		analyzer:      deps.Analyzer,
		extractor:     deps.Extractor,
		frames:        deps.Frames,
		dedup:         deps.Dedup,
		publisher:     deps.Publisher,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		httpClient:    &http.Client{Timeout: config.FetchTimeout},
		concurrency:   config.Concurrency,
		maxFetchBytes: config.MaxFetchBytes,
		allowedHosts:  allowed,
	}
	svc.httpClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return errors.New("stopped after 10 redirects")
		}
		return svc.checkHost(req.URL)
	}
	return svc
}

// Ready reports whether both the AI provider and the database are wired.
func (s *Service) Ready() bool {
	return s.analyzer != nil && s.repo != nil
}

// Validate checks a batch without touching the network.
func Validate(files []FileRef) error {
	if len(files) == 0 {
		return &ValidationError{Message: "no files provided"}
	}
	for i, f := range files {
		if f.URL == "" && f.FilePath == "" {
			return &ValidationError{Message: fmt.Sprintf("file %d: url or filePath is required", i)}
		}
		if _, err := models.MediaTypeFromMIME(f.Type, f.displayName()); err != nil {
			return &ValidationError{Message: fmt.Sprintf("file %d: %v", i, err)}
		}
	}
	return nil
}

// Detect runs every file through the pipeline with bounded parallelism.
// Results keep the input order; a file that fails does not stop the others.
func (s *Service) Detect(ctx context.Context, files []FileRef) ([]Result, error) {
	if !s.Ready() {
		return nil, ErrNotConfigured
	}
	if err := Validate(files); err != nil {
		return nil, err
	}

	results := make([]Result, len(files))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			results[i] = s.detectOne(ctx, file)
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

func (s *Service) detectOne(ctx context.Context, file FileRef) Result {
	start := time.Now()
	mediaType, _ := models.MediaTypeFromMIME(file.Type, file.displayName())
	logger := s.logger.With(zap.String("file", file.displayName()), zap.String("mediaType", string(mediaType)))

	res, err := s.process(ctx, file, mediaType, logger)
	if err != nil {
		logger.Error("detection failed", zap.Error(err))
		if res == nil {
			res = &Result{}
		}
		res.Status = StatusFailed
		res.FileName = file.displayName()
		res.MediaType = mediaType
		res.URL = file.URL
		res.Error = err.Error()

		s.publisher.Publish(ctx, res.UploadID, events.NewEvent(events.AnalysisFailed, eventSource, map[string]interface{}{
			"fileName": res.FileName,
			"url":      file.URL,
			"error":    res.Error,
		}))
		if s.metrics != nil {
			s.metrics.AnalysisFinished(string(mediaType), false, time.Since(start))
		}
		return *res
	}

	if s.metrics != nil {
		s.metrics.AnalysisFinished(string(mediaType), true, time.Since(start))
	}
	return *res
}

// process returns a partial result alongside an error when something was
// already persisted.
func (s *Service) process(ctx context.Context, file FileRef, mediaType models.MediaType, logger *zap.Logger) (*Result, error) {
	data, err := s.fetch(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("fetching media: %w", err)
	}

	hash := contentHash(data)
	if dup := s.lookupDuplicate(ctx, hash, logger); dup != nil {
		return dup, nil
	}

	name := file.displayName()
	contentType := file.Type
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = models.ContentTypeForFile(name)
	}

	in := ai.MediaInput{
		MediaType: mediaType,
		MIMEType:  contentType,
		FileName:  name,
		URL:       file.URL,
		Data:      data,
	}
	in.Metadata = s.extractMetadata(ctx, data, file)
	if mediaType == models.MediaTypeVideo {
		in.Frame = s.stillFrame(ctx, file, data, logger)
	}

	var scores models.Scores
	findings := make(map[string]string)
	for _, aspect := range scoring.Aspects(mediaType) {
		result, err := s.analyzer.Analyze(ctx, ai.Aspect(aspect), in)
		if err != nil {
			s.recordModelCall(aspect, err)
			return nil, err
		}
		s.recordModelCall(aspect, nil)

		score := result.Score
		switch ai.Aspect(aspect) {
		case ai.AspectVisual:
			scores.Visual = &score
		case ai.AspectVideo:
			scores.Video = &score
		case ai.AspectAudio:
			scores.Audio = &score
		case ai.AspectMetadata:
			scores.Metadata = &score
		}
		findings[aspect] = result.Explanation
		logger.Debug("aspect analysed", zap.String("aspect", aspect), zap.Float64("score", score))
	}

	agg := scoring.Aggregate(scores, mediaType)
	synthesis := s.analyzer.Synthesize(ctx, ai.SynthesisInput{
		MediaType:    mediaType,
		FileName:     name,
		Scores:       scores,
		Authenticity: agg.Authenticity,
		Status:       agg.Status,
		Findings:     findings,
	})

	upload := models.NewMediaUpload(name, mediaType, contentType, int64(len(data)), file.URL)
	upload.StoragePath = file.FilePath
	upload.FileID = file.FileID
	upload.ContentHash = hash

	uploadID, err := s.repo.SaveUpload(ctx, upload)
	if err != nil {
		return nil, err
	}
	res := &Result{UploadID: uploadID}

	report := models.NewAnalysisReport(upload)
	report.AuthenticityPercentage = agg.Authenticity
	report.FabricationPercentage = agg.Fabrication
	report.ResultStatus = agg.Status
	report.Explanation = synthesis.Explanation
	report.Scores = scores
	report.AspectFindings = findings
	if synthesis.VerificationTips != nil {
		report.VerificationTips = synthesis.VerificationTips
	}
	report.MetadataSummary = truncate(in.Metadata, maxMetadataSummary)
	report.Model = s.analyzer.ModelName()

	reportID, err := s.repo.SaveReport(ctx, report)
	if err != nil {
		return res, err
	}
	res.ReportID = reportID

	if err := s.repo.LinkReportToUpload(ctx, uploadID, reportID); err != nil {
		return res, err
	}

	if s.dedup != nil {
		if err := s.dedup.Remember(ctx, hash, reportID); err != nil {
			logger.Warn("failed to remember content hash", zap.Error(err))
		}
	}

	s.publisher.Publish(ctx, uploadID, events.NewEvent(events.AnalysisCompleted, eventSource, map[string]interface{}{
		"uploadId":     uploadID,
		"reportId":     reportID,
		"mediaType":    string(mediaType),
		"resultStatus": string(agg.Status),
		"authenticity": agg.Authenticity,
	}))
	logger.Info("detection completed",
		zap.String("reportId", reportID),
		zap.Float64("authenticity", agg.Authenticity),
		zap.String("status", string(agg.Status)))

	res.Status = StatusCompleted
	res.FileName = name
	res.MediaType = mediaType
	res.URL = file.URL
	res.Report = report
	return res, nil
}

func (s *Service) lookupDuplicate(ctx context.Context, hash string, logger *zap.Logger) *Result {
	if s.dedup == nil {
		return nil
	}

	reportID, found, err := s.dedup.Lookup(ctx, hash)
	if err != nil {
		logger.Warn("dedup lookup failed", zap.Error(err))
		return nil
	}
	if !found {
		return nil
	}

	report, err := s.repo.GetReport(ctx, reportID)
	if err != nil {
		logger.Warn("cached report could not be loaded", zap.String("reportId", reportID), zap.Error(err))
		if errors.Is(err, database.ErrNotFound) {
			if err := s.dedup.Forget(ctx, hash); err != nil {
				logger.Warn("failed to drop stale dedup entry", zap.Error(err))
			}
		}
		return nil
	}

	if s.metrics != nil {
		s.metrics.DedupHit()
	}
	logger.Info("serving cached report", zap.String("reportId", reportID))
	return &Result{
		Status:    StatusCompleted,
		FileName:  report.FileName,
		MediaType: report.MediaType,
		URL:       report.URL,
		UploadID:  report.MediaUploadID,
		ReportID:  report.ID,
		Duplicate: true,
		Report:    report,
	}
}

func (s *Service) fetch(ctx context.Context, file FileRef) ([]byte, error) {
	if file.FilePath != "" && s.store != nil {
		rc, err := s.store.Open(ctx, file.FilePath)
		if err == nil {
			defer rc.Close()
			return s.readLimited(rc)
		}
		if file.URL == "" {
			return nil, err
		}
		s.logger.Debug("store read failed, falling back to url", zap.String("path", file.FilePath), zap.Error(err))
	}
	return s.download(ctx, file.URL)
}

// download fetches a client-supplied URL. Without AllowedHosts any reachable
// host is fetched, internal addresses included.
func (s *Service) download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if err := s.checkHost(req.URL); err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download of %s returned status %d", rawURL, resp.StatusCode)
	}
	return s.readLimited(resp.Body)
}

func (s *Service) checkHost(u *url.URL) error {
	if s.allowedHosts == nil || s.allowedHosts[strings.ToLower(u.Hostname())] {
		return nil
	}
	return fmt.Errorf("host %q is not in the allowed fetch hosts", u.Hostname())
}

func (s *Service) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxFetchBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read media: %w", err)
	}
	if int64(len(data)) > s.maxFetchBytes {
		return nil, fmt.Errorf("media exceeds %d bytes", s.maxFetchBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("media is empty")
	}
	return data, nil
}

func (s *Service) extractMetadata(ctx context.Context, data []byte, file FileRef) string {
	if s.extractor == nil {
		return media.NoMetadata
	}
	name := file.Name
	if filepath.Ext(name) == "" {
		name = file.URL
	}
	return s.extractor.Extract(ctx, data, name)
}

// stillFrame prefers a store-generated thumbnail and falls back to ffmpeg.
// A missing frame only weakens the visual evidence, so errors are logged.
func (s *Service) stillFrame(ctx context.Context, file FileRef, data []byte, logger *zap.Logger) []byte {
	if thumbs, ok := s.store.(storage.Thumbnailer); ok && file.FilePath != "" {
		if thumbURL := thumbs.ThumbnailURL(storage.StoredObject{URL: file.URL, Path: file.FilePath, FileID: file.FileID}); thumbURL != "" {
			frame, err := s.download(ctx, thumbURL)
			if err == nil {
				return frame
			}
			logger.Warn("thumbnail download failed", zap.Error(err))
		}
	}

	if s.frames == nil {
		return nil
	}
	frame, err := s.frames.StillFrame(ctx, data, extensionOf(file))
	if err != nil {
		logger.Warn("still frame extraction failed", zap.Error(err))
		return nil
	}
	return frame
}

func (s *Service) recordModelCall(aspect string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case errors.Is(err, ai.ErrAnalysisBlocked):
		outcome = "blocked"
	case errors.Is(err, ai.ErrInvalidModelResponse):
		outcome = "invalid"
	case err != nil:
		outcome = "error"
	}
	s.metrics.ModelCall(aspect, outcome)
}

func (f FileRef) displayName() string {
	if f.Name != "" {
		return f.Name
	}
	if f.FilePath != "" {
		return path.Base(f.FilePath)
	}
	u := f.URL
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return path.Base(u)
}

func extensionOf(file FileRef) string {
	for _, candidate := range []string{file.Name, file.FilePath, file.displayName()} {
		if ext := strings.ToLower(filepath.Ext(candidate)); ext != "" {
			return ext
		}
	}
	if ext := storage.ExtensionFor(storage.FileInfo{ContentType: file.Type}); ext != "" {
		return ext
	}
	return ".mp4"
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return strings.ToValidUTF8(s[:max], "")
}
