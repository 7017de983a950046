package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kdimtricp/mediaverify/internal/dashboard"
	"github.com/kdimtricp/mediaverify/internal/database"
	"github.com/kdimtricp/mediaverify/internal/detection"
	"github.com/kdimtricp/mediaverify/internal/events"
	"github.com/kdimtricp/mediaverify/internal/metrics"
	"github.com/kdimtricp/mediaverify/internal/models"
	"github.com/kdimtricp/mediaverify/internal/storage"
)

const defaultMaxUploadSize = 100 << 20

type App struct {
	Storage       storage.Storage
	LocalFiles    *storage.LocalStorage
	Repo          database.Repository
	Detector      *detection.Service
	Dashboard     *dashboard.Service
	Publisher     events.Publisher
	Metrics       *metrics.Metrics
	Logger        *zap.Logger
	MaxUploadSize int64
}

func (app *App) logger() *zap.Logger {
	if app.Logger == nil {
		return zap.NewNop()
	}
	return app.Logger
}

func (app *App) publisher() events.Publisher {
	if app.Publisher == nil {
		return events.NopPublisher{}
	}
	return app.Publisher
}

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

func (app *App) HealthHandler(w http.ResponseWriter, r *http.Request) {
	dbStatus := "ok"
	if app.Repo == nil {
		dbStatus = "error"
	} else if err := app.Repo.Ping(r.Context()); err != nil {
		app.logger().Warn("database ping failed", zap.Error(err))
		dbStatus = "error"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": dbStatus})
}

type UploadedFile struct {
	URL    string `json:"url"`
	Path   string `json:"path"`
	FileID string `json:"fileId,omitempty"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Size   int64  `json:"size"`
}

type SkippedFile struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type UploadResponse struct {
	Files   []UploadedFile `json:"files"`
	Skipped []SkippedFile  `json:"skipped,omitempty"`
}

// UploadHandler stores every part named "files" (or "file") and returns
// references that can be passed to /detect. Files that cannot be stored are
// skipped; the request fails only when nothing was stored.
func (app *App) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if app.Storage == nil {
		writeError(w, http.StatusInternalServerError, codeNotConfigured, "media storage is not configured")
		return
	}

	maxSize := app.MaxUploadSize
	if maxSize <= 0 {
		maxSize = defaultMaxUploadSize
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid multipart body or file too large")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := append(r.MultipartForm.File["files"], r.MultipartForm.File["file"]...)
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, codeValidation, "no files uploaded")
		return
	}

	resp := UploadResponse{Files: []UploadedFile{}}
	for _, header := range headers {
		uploaded, err := app.storeUpload(r, header)
		if err != nil {
			app.logger().Warn("skipping upload", zap.String("file", header.Filename), zap.Error(err))
			resp.Skipped = append(resp.Skipped, SkippedFile{Name: header.Filename, Reason: err.Error()})
			if app.Metrics != nil {
				app.Metrics.UploadSkipped()
			}
			continue
		}
		resp.Files = append(resp.Files, *uploaded)
		if app.Metrics != nil {
			app.Metrics.UploadStored()
		}
		app.publisher().Publish(r.Context(), uploaded.Path, events.NewEvent(events.MediaUploaded, "api", map[string]interface{}{
			"url":  uploaded.URL,
			"path": uploaded.Path,
			"name": uploaded.Name,
			"type": uploaded.Type,
			"size": uploaded.Size,
		}))
	}

	if len(resp.Files) == 0 {
		writeJSON(w, http.StatusBadRequest, struct {
			ErrorResponse
			Skipped []SkippedFile `json:"skipped"`
		}{
			ErrorResponse: ErrorResponse{Error: codeStorageFailure, Message: "no files could be stored"},
			Skipped:       resp.Skipped,
		})
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

func (app *App) storeUpload(r *http.Request, header *multipart.FileHeader) (*UploadedFile, error) {
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		if guessed := models.ContentTypeForFile(header.Filename); guessed != "" {
			contentType = guessed
		}
	}
	if _, err := models.MediaTypeFromMIME(contentType, header.Filename); err != nil {
		return nil, err
	}

	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	obj, err := app.Storage.Store(r.Context(), data, storage.FileInfo{
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        int64(len(data)),
	})
	if err != nil {
		return nil, err
	}

	return &UploadedFile{
		URL:    obj.URL,
		Path:   obj.Path,
		FileID: obj.FileID,
		Name:   header.Filename,
		Type:   contentType,
		Size:   int64(len(data)),
	}, nil
}

type DetectRequest struct {
	Files []detection.FileRef `json:"files"`
}

type DetectResponse struct {
	Reports []detection.Result `json:"reports"`
}

func (app *App) DetectHandler(w http.ResponseWriter, r *http.Request) {
	if app.Detector == nil || !app.Detector.Ready() {
		writeError(w, http.StatusInternalServerError, codeNotConfigured, "AI provider or database is not configured")
		return
	}

	var req DetectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "request body must be JSON with a files array")
		return
	}

	results, err := app.Detector.Detect(r.Context(), req.Files)
	if err != nil {
		var verr *detection.ValidationError
		switch {
		case errors.As(err, &verr):
			writeError(w, http.StatusBadRequest, codeValidation, verr.Message)
		case errors.Is(err, detection.ErrNotConfigured):
			writeError(w, http.StatusInternalServerError, codeNotConfigured, err.Error())
		default:
			app.logger().Error("detection request failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, codeInternal, "detection failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, DetectResponse{Reports: results})
}

func (app *App) ListReportsHandler(w http.ResponseWriter, r *http.Request) {
	if app.Repo == nil {
		writeError(w, http.StatusInternalServerError, codeNotConfigured, "database is not configured")
		return
	}

	reports, err := app.Repo.ListReports(r.Context())
	if err != nil {
		app.logger().Error("listing reports failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "failed to load reports")
		return
	}
	if reports == nil {
		reports = []models.AnalysisReport{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reports": reports})
}

func (app *App) GetReportHandler(w http.ResponseWriter, r *http.Request) {
	if app.Repo == nil {
		writeError(w, http.StatusInternalServerError, codeNotConfigured, "database is not configured")
		return
	}

	report, err := app.Repo.GetReport(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, codeNotFound, "report not found")
		return
	}
	if err != nil {
		app.logger().Error("loading report failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "failed to load report")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (app *App) DashboardReportsHandler(w http.ResponseWriter, r *http.Request) {
	if app.Dashboard == nil {
		writeError(w, http.StatusInternalServerError, codeNotConfigured, "database is not configured")
		return
	}

	filter, page, limit, err := parseDashboardQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}

	result, err := app.Dashboard.ListReports(r.Context(), filter, page, limit)
	if errors.Is(err, dashboard.ErrInvalidRange) {
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	if err != nil {
		app.logger().Error("dashboard query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "failed to load dashboard")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func parseDashboardQuery(r *http.Request) (dashboard.Filter, int, int, error) {
	q := r.URL.Query()
	var filter dashboard.Filter

	if v := q.Get("startDate"); v != "" {
		start, err := dashboard.ParseDay(v)
		if err != nil {
			return filter, 0, 0, err
		}
		filter.Start = &start
	}
	if v := q.Get("endDate"); v != "" {
		end, err := dashboard.ParseDay(v)
		if err != nil {
			return filter, 0, 0, err
		}
		filter.End = &end
	}
	if v := q.Get("mediaType"); v != "" && !strings.EqualFold(v, "all") {
		mediaType, err := models.ParseMediaType(v)
		if err != nil {
			return filter, 0, 0, err
		}
		filter.MediaType = mediaType
	}

	page, err := intParam(q.Get("page"), dashboard.DefaultPage)
	if err != nil {
		return filter, 0, 0, errors.New("page must be an integer")
	}
	limit, err := intParam(q.Get("limit"), dashboard.DefaultLimit)
	if err != nil {
		return filter, 0, 0, errors.New("limit must be an integer")
	}
	return filter, page, limit, nil
}

func intParam(value string, def int) (int, error) {
	if value == "" {
		return def, nil
	}
	return strconv.Atoi(value)
}

// MediaHandler serves files kept by the local storage backend. ServeContent
// handles Range requests and conditional headers.
func (app *App) MediaHandler(w http.ResponseWriter, r *http.Request) {
	p := chi.URLParam(r, "*")
	file, err := app.LocalFiles.OpenFile(p)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer file.Close()

	modTime := time.Time{}
	if stater, ok := file.(interface{ Stat() (os.FileInfo, error) }); ok {
		if stat, err := stater.Stat(); err == nil {
			if stat.IsDir() {
				http.NotFound(w, r)
				return
			}
			modTime = stat.ModTime()
		}
	}

	if ct := models.ContentTypeForFile(p); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	http.ServeContent(w, r, p, modTime, file)
}
