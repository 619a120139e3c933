package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/vicosurge/revista-lavanda/internal/domain"
	"github.com/vicosurge/revista-lavanda/pkg/utils"
)

// FileStorage stores submitted files and hands back a shareable URL.
type FileStorage interface {
	Upload(ctx context.Context, filename string, data []byte) (*domain.StoredFile, error)
}

// RecordStore creates one record per submission.
type RecordStore interface {
	Create(ctx context.Context, sub RecordInput) (*domain.Record, error)
}

// RecordInput is what the record stage persists.
type RecordInput struct {
	Fields   domain.Fields
	FileName string
	FileURL  string
}

// LinkStrategy produces a shareable URL for a stored path.
type LinkStrategy struct {
	Name   string
	Create func(ctx context.Context, path string) (string, error)
}

// FallbackLinkSource is reported when every strategy failed.
const FallbackLinkSource = "fallback"

// ResolveLink tries strategies in order and returns the first URL produced,
// together with the name of the strategy that produced it. When all of them
// fail it returns fallback, which never fails.
func ResolveLink(ctx context.Context, log *zap.Logger, path string, strategies []LinkStrategy, fallback string) (string, string) {
	for _, s := range strategies {
		url, err := s.Create(ctx, path)
		if err == nil && url != "" {
			return url, s.Name
		}
		if err == nil {
			err = fmt.Errorf("empty url")
		}
		log.Warn("Shared link creation failed",
			zap.String("strategy", s.Name),
			zap.String("path", path),
			zap.Error(err))
	}
	return fallback, FallbackLinkSource
}

// maxResponseBytes caps what we read back from any provider.
const maxResponseBytes = 1 << 20

// postJSON sends payload as JSON with a bearer token. On a non-2xx answer it
// returns the status and raw body with a nil error so callers can build a
// StageError; err is only set for transport or decoding failures.
func postJSON(ctx context.Context, client *http.Client, url, token string, payload, out any) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	return do(client, req, out)
}

func do(client *http.Client, req *http.Request, out any) (int, []byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := utils.ReadAllWithLimit(resp.Body, maxResponseBytes)
	if err != nil {
		// An oversized error body still carries a usable status.
		if utils.IsResponseTooLarge(err) && !isSuccess(resp.StatusCode) {
			return resp.StatusCode, []byte(err.Error()), nil
		}
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	if !isSuccess(resp.StatusCode) {
		return resp.StatusCode, data, nil
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, data, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, data, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status <= 299
}
