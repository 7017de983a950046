package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kdimtricp/mediaverify/internal/models"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const (
	uploadsCollection = "mediaUploads"
	reportsCollection = "analysisReports"
)

type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// MongoRepository keeps uploads and reports in two collections joined with
// $lookup at read time.
type MongoRepository struct {
	client  *mongo.Client
	uploads *mongo.Collection
	reports *mongo.Collection
}

func NewMongoRepository(ctx context.Context, config MongoConfig) (*MongoRepository, error) {
	if config.URI == "" {
		return nil, fmt.Errorf("mongo connection string is required")
	}
	if config.Database == "" {
		config.Database = "media_db"
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}

	client, err := mongo.Connect(options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, config.ConnectTimeout)
	defer cancel()

	if err := client.Ping(timeoutCtx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	db := client.Database(config.Database)
	repo := &MongoRepository{
		client:  client,
		uploads: db.Collection(uploadsCollection),
		reports: db.Collection(reportsCollection),
	}

	if err := repo.ensureIndexes(timeoutCtx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return repo, nil
}

func (r *MongoRepository) ensureIndexes(ctx context.Context) error {
	_, err := r.reports.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "analyzedDate", Value: -1}}},
		{Keys: bson.D{{Key: "mediaType", Value: 1}}},
		{Keys: bson.D{{Key: "mediaUploadId", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create report indexes: %w", err)
	}

	_, err = r.uploads.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "contentHash", Value: 1}}},
		{Keys: bson.D{{Key: "mediaType", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create upload indexes: %w", err)
	}
	return nil
}

func (r *MongoRepository) SaveUpload(ctx context.Context, upload *models.MediaUpload) (string, error) {
	ensureUploadID(upload)
	if _, err := r.uploads.InsertOne(ctx, upload); err != nil {
		return "", dbError("save upload", err)
	}
	return upload.ID, nil
}

func (r *MongoRepository) SaveReport(ctx context.Context, report *models.AnalysisReport) (string, error) {
	ensureReportID(report)
	if _, err := r.reports.InsertOne(ctx, report); err != nil {
		return "", dbError("save report", err)
	}
	return report.ID, nil
}

func (r *MongoRepository) LinkReportToUpload(ctx context.Context, uploadID, reportID string) error {
	result, err := r.uploads.UpdateOne(ctx,
		bson.M{"_id": uploadID},
		bson.M{"$set": bson.M{"analysisReportId": reportID}})
	if err != nil {
		return dbError("link report", err)
	}
	if result.MatchedCount == 0 {
		return dbError("link report", ErrNotFound)
	}
	return nil
}

func (r *MongoRepository) GetUpload(ctx context.Context, id string) (*models.MediaUpload, error) {
	var upload models.MediaUpload
	if err := r.uploads.FindOne(ctx, bson.M{"_id": id}).Decode(&upload); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, dbError("get upload", err)
	}
	return &upload, nil
}

func (r *MongoRepository) GetReport(ctx context.Context, id string) (*models.AnalysisReport, error) {
	var report models.AnalysisReport
	if err := r.reports.FindOne(ctx, bson.M{"_id": id}).Decode(&report); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, dbError("get report", err)
	}
	return &report, nil
}

func (r *MongoRepository) ListReports(ctx context.Context) ([]models.AnalysisReport, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := r.reports.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, dbError("list reports", err)
	}

	reports := []models.AnalysisReport{}
	if err := cursor.All(ctx, &reports); err != nil {
		return nil, dbError("list reports", err)
	}
	return reports, nil
}

func reportMatch(filter ReportFilter) bson.M {
	match := bson.M{}
	dateRange := bson.M{}
	if filter.From != nil {
		dateRange["$gte"] = filter.From.UTC()
	}
	if filter.Before != nil {
		dateRange["$lt"] = filter.Before.UTC()
	}
	if len(dateRange) > 0 {
		match["analyzedDate"] = dateRange
	}
	if filter.MediaType != "" {
		match["mediaType"] = filter.MediaType
	}
	return match
}

func (r *MongoRepository) FindReports(ctx context.Context, filter ReportFilter) ([]models.ReportEntry, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: reportMatch(filter)}},
		{{Key: "$lookup", Value: bson.M{
			"from":         uploadsCollection,
			"localField":   "mediaUploadId",
			"foreignField": "_id",
			"as":           "mediaUpload",
		}}},
		{{Key: "$unwind", Value: "$mediaUpload"}},
		{{Key: "$sort", Value: bson.D{{Key: "analyzedDate", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$project", Value: bson.M{
			"_id":              "$mediaUpload._id",
			"fileName":         "$mediaUpload.fileName",
			"mediaType":        "$mediaUpload.mediaType",
			"url":              "$mediaUpload.url",
			"fileId":           "$mediaUpload.fileId",
			"uploadDate":       "$mediaUpload.uploadDate",
			"createdAt":        "$mediaUpload.createdAt",
			"analysisReportId": "$_id",
			"analysisResult":   "$$ROOT",
		}}},
	}

	cursor, err := r.reports.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, dbError("find reports", err)
	}

	entries := []models.ReportEntry{}
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, dbError("find reports", err)
	}
	return entries, nil
}

func (r *MongoRepository) Stats(ctx context.Context) (*Stats, error) {
	uploads, err := r.uploads.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, dbError("count uploads", err)
	}
	reports, err := r.reports.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, dbError("count reports", err)
	}
	return &Stats{Uploads: uploads, Reports: reports}, nil
}

func (r *MongoRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, readpref.Primary())
}

func (r *MongoRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}
