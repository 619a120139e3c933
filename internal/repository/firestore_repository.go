package repository

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"

	"github.com/vicosurge/revista-lavanda/internal/config"
	"github.com/vicosurge/revista-lavanda/internal/domain"
)

const (
	providerFirestore = "firestore"

	columnSubmittedAt = "Submitted At"
)

// documentAdder is the part of a collection reference the repository uses.
type documentAdder interface {
	Add(ctx context.Context, data interface{}) (*firestore.DocumentRef, *firestore.WriteResult, error)
}

type firestoreRepository struct {
	collection documentAdder
	cfg        *config.FirestoreConfig
	log        *zap.Logger
}

// NewFirestoreRepository opens a Firestore client for the configured project.
// The returned close function releases the client.
func NewFirestoreRepository(ctx context.Context, cfg *config.FirestoreConfig, log *zap.Logger) (RecordStore, func() error, error) {
	if cfg.ProjectID == "" {
		return nil, nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return &firestoreRepository{
		collection: client.Collection(cfg.Collection),
		cfg:        cfg,
		log:        log,
	}, client.Close, nil
}

func (r *firestoreRepository) Create(ctx context.Context, in RecordInput) (*domain.Record, error) {
	ref, _, err := r.collection.Add(ctx, firestoreDocument(in))
	if err != nil {
		r.log.Error("Firestore record creation failed", zap.Error(err))
		return nil, &domain.StageError{Stage: domain.StageRecord, Provider: providerFirestore, Err: err}
	}

	r.log.Info("Firestore record created", zap.String("record_id", ref.ID))

	return &domain.Record{
		ID:  ref.ID,
		URL: firestoreConsoleURL(r.cfg, ref.ID),
	}, nil
}

func firestoreDocument(in RecordInput) map[string]any {
	doc := make(map[string]any, 9)
	for column, value := range Columns(in) {
		doc[column] = value
	}
	doc[columnSubmittedAt] = firestore.ServerTimestamp
	return doc
}

func firestoreConsoleURL(cfg *config.FirestoreConfig, id string) string {
	return fmt.Sprintf("https://console.cloud.google.com/firestore/databases/-default-/data/panel/%s/%s?project=%s",
		cfg.Collection, id, cfg.ProjectID)
}
