// Package mongo stores alerts as documents in a MongoDB collection.
package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/steveyegge/casalert/internal/config"
	"github.com/steveyegge/casalert/internal/types"
)

const connectTimeout = 10 * time.Second

// alertDocument is the stored shape of an alert. Dates keep the tabular text
// layouts so every backend parses rows the same way.
type alertDocument struct {
	ID                     primitive.ObjectID `bson:"_id,omitempty"`
	Reference              string             `bson:"reference"`
	Title                  string             `bson:"title"`
	Originator             string             `bson:"originator"`
	IssueDate              string             `bson:"issue_date"`
	Status                 string             `bson:"status"`
	AlertType              string             `bson:"alert_type"`
	Source                 string             `bson:"source"`
	URL                    string             `bson:"url"`
	MedicalSpecialty       string             `bson:"medical_specialty,omitempty"`
	ScrapedAt              string             `bson:"scraped_at"`
	HashID                 string             `bson:"hash_id"`
	ActionCategory         string             `bson:"action_category,omitempty"`
	BroadcastContent       string             `bson:"broadcast_content,omitempty"`
	AdditionalInfo         string             `bson:"additional_info,omitempty"`
	ActionUnderwayDeadline string             `bson:"action_underway_deadline,omitempty"`
	ActionCompleteDeadline string             `bson:"action_complete_deadline,omitempty"`
	Attachments            string             `bson:"attachments,omitempty"`
}

func toDocument(a *types.Alert) alertDocument {
	m := a.ToMap()
	return alertDocument{
		Reference:              m[types.ColReference],
		Title:                  m[types.ColTitle],
		Originator:             m[types.ColOriginator],
		IssueDate:              m[types.ColIssueDate],
		Status:                 m[types.ColStatus],
		AlertType:              m[types.ColAlertType],
		Source:                 m[types.ColSource],
		URL:                    m[types.ColURL],
		MedicalSpecialty:       m[types.ColMedicalSpecialty],
		ScrapedAt:              m[types.ColScrapedAt],
		HashID:                 m[types.ColHashID],
		ActionCategory:         m[types.ColActionCategory],
		BroadcastContent:       m[types.ColBroadcastContent],
		AdditionalInfo:         m[types.ColAdditionalInfo],
		ActionUnderwayDeadline: m[types.ColActionUnderwayDeadline],
		ActionCompleteDeadline: m[types.ColActionCompleteDeadline],
		Attachments:            m[types.ColAttachments],
	}
}

func (d alertDocument) toAlert() (*types.Alert, error) {
	return types.FromMap(map[string]string{
		types.ColReference:              d.Reference,
		types.ColTitle:                  d.Title,
		types.ColOriginator:             d.Originator,
		types.ColIssueDate:              d.IssueDate,
		types.ColStatus:                 d.Status,
		types.ColAlertType:              d.AlertType,
		types.ColSource:                 d.Source,
		types.ColURL:                    d.URL,
		types.ColMedicalSpecialty:       d.MedicalSpecialty,
		types.ColScrapedAt:              d.ScrapedAt,
		types.ColHashID:                 d.HashID,
		types.ColActionCategory:         d.ActionCategory,
		types.ColBroadcastContent:       d.BroadcastContent,
		types.ColAdditionalInfo:         d.AdditionalInfo,
		types.ColActionUnderwayDeadline: d.ActionUnderwayDeadline,
		types.ColActionCompleteDeadline: d.ActionCompleteDeadline,
		types.ColAttachments:            d.Attachments,
	})
}

// Store implements the alert store on a MongoDB collection
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *slog.Logger
}

// New connects to the configured deployment and ensures the hash index exists
func New(ctx context.Context, cfg config.MongoConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "hash_id", Value: 1}},
		Options: options.Index().SetName("idx_hash_id"),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create hash index: %w", err)
	}

	return &Store{
		client: client,
		coll:   coll,
		logger: logger.With("component", "store", "backend", "mongo", "collection", cfg.Collection),
	}, nil
}

// GetExistingAlerts returns every stored alert in insertion order. Documents
// that fail to parse are logged and skipped.
func (s *Store) GetExistingAlerts(ctx context.Context) ([]*types.Alert, error) {
	cursor, err := s.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []alertDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode alerts: %w", err)
	}

	alerts := make([]*types.Alert, 0, len(docs))
	for _, doc := range docs {
		alert, err := doc.toAlert()
		if err != nil {
			s.logger.Warn("skipping unreadable document", "id", doc.ID.Hex(), "error", err)
			continue
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

// Append inserts the alerts in order
func (s *Store) Append(ctx context.Context, alerts []*types.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(alerts))
	for _, alert := range alerts {
		if err := alert.Validate(); err != nil {
			return fmt.Errorf("invalid alert %q: %w", alert.Title, err)
		}
		docs = append(docs, toDocument(alert))
	}

	if _, err := s.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		return fmt.Errorf("failed to insert alerts: %w", err)
	}
	s.logger.Info("appended alerts", "count", len(alerts))
	return nil
}

// PruneDuplicateHashes deletes every document whose hash_id already appeared
// on an earlier document.
func (s *Store) PruneDuplicateHashes(ctx context.Context) (int, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetProjection(bson.M{"_id": 1, "hash_id": 1})
	cursor, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return 0, fmt.Errorf("failed to query hashes: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []alertDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return 0, fmt.Errorf("failed to decode hashes: %w", err)
	}

	later := duplicateIDs(docs)
	if len(later) == 0 {
		return 0, nil
	}
	res, err := s.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": later}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete duplicates: %w", err)
	}
	s.logger.Info("pruned duplicate documents", "count", res.DeletedCount)
	return int(res.DeletedCount), nil
}

// duplicateIDs returns the ids of documents whose hash appeared earlier in docs
func duplicateIDs(docs []alertDocument) []primitive.ObjectID {
	seen := make(map[string]bool, len(docs))
	var later []primitive.ObjectID
	for _, doc := range docs {
		if doc.HashID == "" {
			continue
		}
		if seen[doc.HashID] {
			later = append(later, doc.ID)
			continue
		}
		seen[doc.HashID] = true
	}
	return later
}

// Close disconnects the client
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}
