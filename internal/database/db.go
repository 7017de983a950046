package database

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/kdimtricp/mediaverify/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Type           string
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SQLitePath     string
	MigrationsPath string
}

func (c Config) PostgresURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// GormRepository stores uploads and reports in PostgreSQL or SQLite.
type GormRepository struct {
	db     *gorm.DB
	dbType string
}

func NewGormRepository(ctx context.Context, config Config) (*GormRepository, error) {
	var dialector gorm.Dialector

	switch config.Type {
	case "sqlite":
		dialector = sqlite.Open(config.SQLitePath)
	case "postgres":
		dialector = postgres.Open(config.PostgresURL())
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if config.Type == "sqlite" {
		// SQLite allows a single writer; concurrent pipelines queue here.
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}

	repo := &GormRepository{db: db, dbType: config.Type}
	if err := repo.Ping(ctx); err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite is created in place; PostgreSQL schema is owned by migrations.
	switch config.Type {
	case "sqlite":
		if err := db.WithContext(ctx).AutoMigrate(&models.MediaUpload{}, &models.AnalysisReport{}); err != nil {
			repo.Close()
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
	case "postgres":
		if config.MigrationsPath != "" {
			if err := RunMigrations(config.PostgresURL(), config.MigrationsPath); err != nil {
				repo.Close()
				return nil, err
			}
		}
	}

	return repo, nil
}

func (r *GormRepository) SaveUpload(ctx context.Context, upload *models.MediaUpload) (string, error) {
	ensureUploadID(upload)
	if err := r.db.WithContext(ctx).Create(upload).Error; err != nil {
		return "", dbError("save upload", err)
	}
	return upload.ID, nil
}

func (r *GormRepository) SaveReport(ctx context.Context, report *models.AnalysisReport) (string, error) {
	ensureReportID(report)
	if err := r.db.WithContext(ctx).Create(report).Error; err != nil {
		return "", dbError("save report", err)
	}
	return report.ID, nil
}

func (r *GormRepository) LinkReportToUpload(ctx context.Context, uploadID, reportID string) error {
	result := r.db.WithContext(ctx).
		Model(&models.MediaUpload{}).
		Where("id = ?", uploadID).
		Update("analysis_report_id", reportID)
	if result.Error != nil {
		return dbError("link report", result.Error)
	}
	if result.RowsAffected == 0 {
		return dbError("link report", ErrNotFound)
	}
	return nil
}

func (r *GormRepository) GetUpload(ctx context.Context, id string) (*models.MediaUpload, error) {
	var upload models.MediaUpload
	if err := r.db.WithContext(ctx).First(&upload, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, dbError("get upload", err)
	}
	return &upload, nil
}

func (r *GormRepository) GetReport(ctx context.Context, id string) (*models.AnalysisReport, error) {
	var report models.AnalysisReport
	if err := r.db.WithContext(ctx).First(&report, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, dbError("get report", err)
	}
	return &report, nil
}

func (r *GormRepository) ListReports(ctx context.Context) ([]models.AnalysisReport, error) {
	var reports []models.AnalysisReport
	if err := r.db.WithContext(ctx).Order("created_at DESC").Order("id").Find(&reports).Error; err != nil {
		return nil, dbError("list reports", err)
	}
	return reports, nil
}

func (r *GormRepository) FindReports(ctx context.Context, filter ReportFilter) ([]models.ReportEntry, error) {
	query := r.db.WithContext(ctx).Model(&models.AnalysisReport{})
	if filter.From != nil {
		query = query.Where("analyzed_date >= ?", filter.From.UTC())
	}
	if filter.Before != nil {
		query = query.Where("analyzed_date < ?", filter.Before.UTC())
	}
	if filter.MediaType != "" {
		query = query.Where("media_type = ?", filter.MediaType)
	}

	var reports []models.AnalysisReport
	if err := query.Order("analyzed_date DESC").Order("id").Find(&reports).Error; err != nil {
		return nil, dbError("find reports", err)
	}
	if len(reports) == 0 {
		return []models.ReportEntry{}, nil
	}

	uploadIDs := make([]string, 0, len(reports))
	for _, report := range reports {
		uploadIDs = append(uploadIDs, report.MediaUploadID)
	}

	var uploads []models.MediaUpload
	if err := r.db.WithContext(ctx).Where("id IN ?", uploadIDs).Find(&uploads).Error; err != nil {
		return nil, dbError("find reports", err)
	}
	byID := make(map[string]models.MediaUpload, len(uploads))
	for _, upload := range uploads {
		byID[upload.ID] = upload
	}

	entries := make([]models.ReportEntry, 0, len(reports))
	for _, report := range reports {
		upload, ok := byID[report.MediaUploadID]
		if !ok {
			continue
		}
		entries = append(entries, models.NewReportEntry(upload, report))
	}
	return entries, nil
}

func (r *GormRepository) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := r.db.WithContext(ctx).Model(&models.MediaUpload{}).Count(&stats.Uploads).Error; err != nil {
		return nil, dbError("count uploads", err)
	}
	if err := r.db.WithContext(ctx).Model(&models.AnalysisReport{}).Count(&stats.Reports).Error; err != nil {
		return nil, dbError("count reports", err)
	}
	return &stats, nil
}

func (r *GormRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *GormRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
