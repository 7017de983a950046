package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kdimtricp/mediaverify/internal/config"
	"github.com/kdimtricp/mediaverify/internal/models"
)

var ErrNotFound = errors.New("record not found")

// DatabaseError wraps a failed read or write.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database %s failed: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

func dbError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &DatabaseError{Op: op, Err: err}
}

// ReportFilter selects reports by analysis time. Before is exclusive.
type ReportFilter struct {
	From      *time.Time
	Before    *time.Time
	MediaType models.MediaType
}

type Stats struct {
	Uploads int64 `json:"uploads"`
	Reports int64 `json:"reports"`
}

// Repository persists uploads and reports. Writes are independent of each
// other; callers handle partial failure.
type Repository interface {
	SaveUpload(ctx context.Context, upload *models.MediaUpload) (string, error)
	SaveReport(ctx context.Context, report *models.AnalysisReport) (string, error)
	LinkReportToUpload(ctx context.Context, uploadID, reportID string) error

	GetUpload(ctx context.Context, id string) (*models.MediaUpload, error)
	GetReport(ctx context.Context, id string) (*models.AnalysisReport, error)
	// ListReports returns every report, newest createdAt first.
	ListReports(ctx context.Context) ([]models.AnalysisReport, error)
	// FindReports joins reports with their uploads, newest analyzedDate
	// first. Reports whose upload is missing are skipped.
	FindReports(ctx context.Context, filter ReportFilter) ([]models.ReportEntry, error)
	Stats(ctx context.Context) (*Stats, error)

	Ping(ctx context.Context) error
	Close() error
}

// Open connects to the configured backend and prepares its schema.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Repository, error) {
	switch cfg.Type {
	case "mongo":
		return NewMongoRepository(ctx, MongoConfig{URI: cfg.MongoURI, Database: cfg.MongoDatabase})
	case "postgres", "sqlite":
		return NewGormRepository(ctx, Config{
			Type:           cfg.Type,
			Host:           cfg.Host,
			Port:           cfg.Port,
			User:           cfg.User,
			Password:       cfg.Password,
			Name:           cfg.Name,
			SQLitePath:     cfg.SQLitePath,
			MigrationsPath: cfg.MigrationsPath,
		})
	}
	return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
}

func ensureUploadID(upload *models.MediaUpload) {
	if upload.ID == "" {
		upload.ID = newID()
	}
	now := time.Now().UTC()
	if upload.UploadDate.IsZero() {
		upload.UploadDate = now
	}
	if upload.CreatedAt.IsZero() {
		upload.CreatedAt = now
	}
}

func ensureReportID(report *models.AnalysisReport) {
	if report.ID == "" {
		report.ID = newID()
	}
	now := time.Now().UTC()
	if report.AnalyzedDate.IsZero() {
		report.AnalyzedDate = now
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = now
	}
	if report.VerificationTips == nil {
		report.VerificationTips = []string{}
	}
}

func newID() string {
	return uuid.New().String()
}
