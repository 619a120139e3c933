package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"
	"unicode/utf16"

	"go.uber.org/zap"

	"github.com/vicosurge/revista-lavanda/internal/config"
	"github.com/vicosurge/revista-lavanda/internal/domain"
)

const providerDropbox = "dropbox"

type dropboxRepository struct {
	client *http.Client
	cfg    *config.DropboxConfig
	prefix string
	log    *zap.Logger
}

func NewDropboxRepository(cfg *config.DropboxConfig, prefix string, client *http.Client, log *zap.Logger) FileStorage {
	return &dropboxRepository{
		client: client,
		cfg:    cfg,
		prefix: "/" + strings.Trim(prefix, "/"),
		log:    log,
	}
}

type dropboxUploadArg struct {
	Path       string `json:"path"`
	Mode       string `json:"mode"`
	Autorename bool   `json:"autorename"`
}

type dropboxMetadata struct {
	Name        string `json:"name"`
	PathDisplay string `json:"path_display"`
	Size        int64  `json:"size"`
}

type dropboxLinkSettings struct {
	RequestedVisibility string `json:"requested_visibility"`
}

type dropboxLinkRequest struct {
	Path     string               `json:"path"`
	Settings *dropboxLinkSettings `json:"settings,omitempty"`
}

type dropboxLink struct {
	URL string `json:"url"`
}

func (r *dropboxRepository) Upload(ctx context.Context, filename string, data []byte) (*domain.StoredFile, error) {
	arg := dropboxUploadArg{
		Path:       path.Join(r.prefix, filename),
		Mode:       "add",
		Autorename: true,
	}

	r.log.Info("Uploading to Dropbox",
		zap.String("filename", filename),
		zap.Int("size", len(data)),
		zap.Bool("has_token", r.cfg.AccessToken != ""),
		zap.String("path", arg.Path))

	header, err := headerSafeJSON(arg)
	if err != nil {
		return nil, fmt.Errorf("encode Dropbox-API-Arg: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.ContentURL+"/2/files/upload", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Dropbox-API-Arg", header)

	var meta dropboxMetadata
	status, body, err := do(r.client, req, &meta)
	r.log.Debug("Dropbox upload response", zap.Int("status", status))
	if err != nil {
		return nil, &domain.StageError{Stage: domain.StageUpload, Provider: providerDropbox, Err: err}
	}
	if !isSuccess(status) {
		r.log.Error("Dropbox upload failed",
			zap.Int("status", status),
			zap.ByteString("body", body))
		return nil, &domain.StageError{
			Stage:      domain.StageUpload,
			Provider:   providerDropbox,
			StatusCode: status,
			Body:       string(body),
		}
	}

	r.log.Info("Dropbox upload succeeded",
		zap.String("path", meta.PathDisplay),
		zap.Int64("size", meta.Size))

	url, source := ResolveLink(ctx, r.log, meta.PathDisplay, r.linkStrategies(), r.cfg.FallbackURL)

	return &domain.StoredFile{
		Path:       meta.PathDisplay,
		URL:        url,
		LinkSource: source,
	}, nil
}

// linkStrategies lists the shared-link endpoints in the order they are tried.
func (r *dropboxRepository) linkStrategies() []LinkStrategy {
	return []LinkStrategy{
		{
			Name: "team_only",
			Create: func(ctx context.Context, p string) (string, error) {
				return r.createLink(ctx, "/2/sharing/create_shared_link_with_settings", dropboxLinkRequest{
					Path:     p,
					Settings: &dropboxLinkSettings{RequestedVisibility: "team_only"},
				})
			},
		},
		{
			Name: "default",
			Create: func(ctx context.Context, p string) (string, error) {
				return r.createLink(ctx, "/2/sharing/create_shared_link", dropboxLinkRequest{Path: p})
			},
		},
	}
}

func (r *dropboxRepository) createLink(ctx context.Context, endpoint string, payload dropboxLinkRequest) (string, error) {
	var link dropboxLink
	status, body, err := postJSON(ctx, r.client, r.cfg.APIURL+endpoint, r.cfg.AccessToken, payload, &link)
	if err != nil {
		return "", err
	}
	if !isSuccess(status) {
		return "", fmt.Errorf("%s: %d - %s", endpoint, status, body)
	}
	return link.URL, nil
}

// headerSafeJSON encodes v as JSON with every non-ASCII rune escaped, as
// Dropbox requires for the Dropbox-API-Arg header.
func headerSafeJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, r := range string(raw) {
		if r < 0x80 {
			b.WriteRune(r)
			continue
		}
		for _, unit := range utf16.Encode([]rune{r}) {
			fmt.Fprintf(&b, `\u%04x`, unit)
		}
	}
	return b.String(), nil
}
