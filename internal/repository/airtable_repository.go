package repository

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/vicosurge/revista-lavanda/internal/config"
	"github.com/vicosurge/revista-lavanda/internal/domain"
)

const providerAirtable = "airtable"

type airtableRepository struct {
	client *http.Client
	cfg    *config.AirtableConfig
	log    *zap.Logger
}

func NewAirtableRepository(cfg *config.AirtableConfig, client *http.Client, log *zap.Logger) RecordStore {
	return &airtableRepository{
		client: client,
		cfg:    cfg,
		log:    log,
	}
}

type airtableCreateRequest struct {
	Fields map[string]string `json:"fields"`
}

type airtableRecord struct {
	ID          string `json:"id"`
	CreatedTime string `json:"createdTime"`
}

func (r *airtableRepository) Create(ctx context.Context, in RecordInput) (*domain.Record, error) {
	endpoint := fmt.Sprintf("%s/v0/%s/%s", r.cfg.APIURL, url.PathEscape(r.cfg.BaseID), url.PathEscape(r.cfg.TableName))

	var rec airtableRecord
	status, body, err := postJSON(ctx, r.client, endpoint, r.cfg.AccessToken, airtableCreateRequest{Fields: Columns(in)}, &rec)
	if err != nil {
		return nil, &domain.StageError{Stage: domain.StageRecord, Provider: providerAirtable, StatusCode: status, Body: string(body), Err: err}
	}
	if !isSuccess(status) {
		r.log.Error("Airtable record creation failed",
			zap.Int("status", status),
			zap.ByteString("body", body))
		return nil, &domain.StageError{
			Stage:      domain.StageRecord,
			Provider:   providerAirtable,
			StatusCode: status,
			Body:       string(body),
		}
	}

	r.log.Info("Airtable record created", zap.String("record_id", rec.ID))

	return &domain.Record{
		ID:  rec.ID,
		URL: r.recordURL(rec.ID),
	}, nil
}

func (r *airtableRepository) recordURL(id string) string {
	table := r.cfg.TableID
	if table == "" {
		table = r.cfg.TableName
	}
	return fmt.Sprintf("%s/%s/%s/%s", r.cfg.WebURL, r.cfg.BaseID, url.PathEscape(table), id)
}
