package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/MOE349/tenmil-backend-sub001/models"
)

// MongoRunLogCollection holds one document per cron job run
const MongoRunLogCollection = "cron_job_run_logs"

// MongoRunLog stores run logs in MongoDB
type MongoRunLog struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *slog.Logger
}

// ConnectMongoRunLog connects to MongoDB and prepares the run log collection
func ConnectMongoRunLog(ctx context.Context, uri, database string, logger *slog.Logger) (*MongoRunLog, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Configure client options with retry
	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(10).
		SetMinPoolSize(1).
		SetMaxConnIdleTime(30 * time.Second).
		SetConnectTimeout(30 * time.Second).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Verify connection with ping
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	coll := client.Database(database).Collection(MongoRunLogCollection)
	_, err = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "job_key", Value: 1}, {Key: "finished_at", Value: -1}}},
		{Keys: bson.D{{Key: "finished_at", Value: 1}}},
	})
	if err != nil {
		logger.Warn("failed to create run log indexes", "error", err)
	}

	logger.Info("connected to MongoDB", "database", database, "collection", MongoRunLogCollection)
	return &MongoRunLog{client: client, collection: coll, logger: logger}, nil
}

// Record inserts one run log entry keyed by its run id
func (m *MongoRunLog) Record(ctx context.Context, entry *models.CronJobRunLog) error {
	if _, err := m.collection.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to record run %s: %w", entry.RunID, err)
	}
	return nil
}

// List returns the latest runs of a job, newest first
func (m *MongoRunLog) List(ctx context.Context, jobKey string, limit int) ([]models.CronJobRunLog, error) {
	if limit <= 0 {
		limit = DefaultRunLogLimit
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "finished_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := m.collection.Find(ctx, bson.M{"job_key": jobKey}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var logs []models.CronJobRunLog
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// Prune deletes entries that finished before the cutoff
func (m *MongoRunLog) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := m.collection.DeleteMany(ctx, bson.M{"finished_at": bson.M{"$lt": before}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// Close disconnects from MongoDB
func (m *MongoRunLog) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
