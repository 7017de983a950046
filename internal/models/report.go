package models

import (
	"time"

	"github.com/google/uuid"
)

type ResultStatus string

const (
	StatusLikelyAuthentic  ResultStatus = "Likely Authentic"
	StatusSuspicious       ResultStatus = "Suspicious"
	StatusLikelyFabricated ResultStatus = "Likely AI Generated / Fabricated"
)

// Scores holds the per-aspect authenticity sub-scores (0-100). An aspect that
// was not analysed for a media type stays nil.
type Scores struct {
	Visual   *float64 `bson:"visual,omitempty" json:"visual,omitempty"`
	Video    *float64 `bson:"video,omitempty" json:"video,omitempty"`
	Audio    *float64 `bson:"audio,omitempty" json:"audio,omitempty"`
	Metadata *float64 `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

// AnalysisReport is the immutable verdict for one MediaUpload.
type AnalysisReport struct {
	ID                     string            `gorm:"primaryKey;type:varchar(36)" bson:"_id" json:"id"`
	MediaUploadID          string            `gorm:"type:varchar(36);not null;index" bson:"mediaUploadId" json:"mediaUploadId"`
	FileName               string            `bson:"fileName" json:"fileName"`
	MediaType              MediaType         `gorm:"type:varchar(16);not null;index" bson:"mediaType" json:"mediaType"`
	URL                    string            `bson:"url" json:"url"`
	AuthenticityPercentage float64           `bson:"authenticityPercentage" json:"authenticityPercentage"`
	FabricationPercentage  float64           `bson:"fabricationPercentage" json:"fabricationPercentage"`
	ResultStatus           ResultStatus      `gorm:"type:varchar(48);not null" bson:"resultStatus" json:"resultStatus"`
	Explanation            string            `gorm:"type:text" bson:"explanation" json:"explanation"`
	Scores                 Scores            `gorm:"embedded;embeddedPrefix:score_" bson:"scores" json:"scores"`
	AspectFindings         map[string]string `gorm:"type:text;serializer:json" bson:"aspectFindings,omitempty" json:"aspectFindings,omitempty"`
	VerificationTips       []string          `gorm:"type:text;serializer:json" bson:"verificationTips" json:"verificationTips"`
	MetadataSummary        string            `gorm:"type:text" bson:"metadataSummary,omitempty" json:"metadataSummary,omitempty"`
	Model                  string            `bson:"model,omitempty" json:"model,omitempty"`
	AnalyzedDate           time.Time         `gorm:"not null;index" bson:"analyzedDate" json:"analyzedDate"`
	CreatedAt              time.Time         `gorm:"not null" bson:"createdAt" json:"createdAt"`
}

func (AnalysisReport) TableName() string {
	return "analysis_reports"
}

func NewAnalysisReport(upload *MediaUpload) *AnalysisReport {
	now := time.Now().UTC()
	return &AnalysisReport{
		ID:               uuid.New().String(),
		MediaUploadID:    upload.ID,
		FileName:         upload.FileName,
		MediaType:        upload.MediaType,
		URL:              upload.URL,
		VerificationTips: []string{},
		AnalyzedDate:     now,
		CreatedAt:        now,
	}
}

// ReportEntry is the read-time join of an upload and its report, shaped for
// dashboard consumers.
type ReportEntry struct {
	ID               string         `bson:"_id" json:"id"`
	FileName         string         `bson:"fileName" json:"fileName"`
	MediaType        MediaType      `bson:"mediaType" json:"mediaType"`
	URL              string         `bson:"url" json:"url"`
	FileID           string         `bson:"fileId,omitempty" json:"fileId,omitempty"`
	UploadDate       time.Time      `bson:"uploadDate" json:"uploadDate"`
	CreatedAt        time.Time      `bson:"createdAt" json:"createdAt"`
	AnalysisReportID string         `bson:"analysisReportId" json:"analysisReportId"`
	AnalysisResult   AnalysisReport `bson:"analysisResult" json:"analysisResult"`
}

func NewReportEntry(upload MediaUpload, report AnalysisReport) ReportEntry {
	return ReportEntry{
		ID:               upload.ID,
		FileName:         upload.FileName,
		MediaType:        upload.MediaType,
		URL:              upload.URL,
		FileID:           upload.FileID,
		UploadDate:       upload.UploadDate,
		CreatedAt:        upload.CreatedAt,
		AnalysisReportID: report.ID,
		AnalysisResult:   report,
	}
}
