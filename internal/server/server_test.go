package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vicosurge/revista-lavanda/internal/config"
)

// backends fakes Dropbox, Airtable and the Slack webhook on one server.
type backends struct {
	mu sync.Mutex

	linkStatus     int
	airtableStatus int

	airtableFields []map[string]string
	slackTexts     []string
}

func (b *backends) start(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/2/files/upload", func(w http.ResponseWriter, r *http.Request) {
		var arg struct {
			Path string `json:"path"`
		}
		assert.NoError(t, json.Unmarshal([]byte(r.Header.Get("Dropbox-API-Arg")), &arg))
		_ = json.NewEncoder(w).Encode(map[string]any{"path_display": arg.Path})
	})
	link := func(w http.ResponseWriter, r *http.Request) {
		if b.linkStatus != http.StatusOK {
			w.WriteHeader(b.linkStatus)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"url": "https://dropbox.test/s/shared"})
	}
	mux.HandleFunc("/2/sharing/create_shared_link_with_settings", link)
	mux.HandleFunc("/2/sharing/create_shared_link", link)
	mux.HandleFunc("/v0/", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Fields map[string]string `json:"fields"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		b.mu.Lock()
		b.airtableFields = append(b.airtableFields, req.Fields)
		b.mu.Unlock()
		if b.airtableStatus != http.StatusOK {
			w.WriteHeader(b.airtableStatus)
			_, _ = w.Write([]byte(`{"error":"INVALID_PERMISSIONS"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"recE2E"}`))
	})
	mux.HandleFunc("/slack", func(w http.ResponseWriter, r *http.Request) {
		var msg struct {
			Text string `json:"text"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		b.mu.Lock()
		b.slackTexts = append(b.slackTexts, msg.Text)
		b.mu.Unlock()
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T, b *backends) http.Handler {
	t.Helper()
	fake := b.start(t)
	cfg := &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: "0"},
		App: config.AppConfig{
			Env:            config.EnvProduction,
			UploadDir:      t.TempDir(),
			MaxUploadSize:  1 << 20,
			RequestTimeout: 5 * time.Second,
		},
		Storage: config.StorageConfig{Provider: config.StorageDropbox, Prefix: "/submissions"},
		Dropbox: config.DropboxConfig{
			AccessToken: "token",
			ContentURL:  fake.URL,
			APIURL:      fake.URL,
			FallbackURL: "https://www.dropbox.com/home/submissions",
		},
		Records: config.RecordsConfig{Provider: config.RecordsAirtable},
		Airtable: config.AirtableConfig{
			AccessToken: "pat",
			BaseID:      "appX",
			TableName:   "Submissions",
			APIURL:      fake.URL,
			WebURL:      "https://airtable.com",
		},
		Slack: config.SlackConfig{WebhookURL: fake.URL + "/slack"},
	}
	srv, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv.Handler()
}

func submit(t *testing.T, h http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("nombre", "Ana"))
	require.NoError(t, mw.WriteField("titulo", "Lavanda"))
	part, err := mw.CreateFormFile("archivo", "poema.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("%PDF-1.7"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, SubmitFormPath, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestSubmitFormEndToEnd(t *testing.T) {
	b := &backends{linkStatus: http.StatusOK, airtableStatus: http.StatusOK}
	h := newTestServer(t, b)

	w := submit(t, h)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"success":true,"message":"Submission processed successfully","recordId":"recE2E"}`, w.Body.String())

	require.Len(t, b.airtableFields, 1)
	assert.Equal(t, "Ana", b.airtableFields[0]["Nombre"])
	assert.Equal(t, "poema.pdf", b.airtableFields[0]["File Name"])
	assert.Equal(t, "https://dropbox.test/s/shared", b.airtableFields[0]["Dropbox URL"])
	assert.Equal(t, []string{"📝 New Form Submission Received!"}, b.slackTexts)
}

func TestSubmitFormLinkFailuresUseFallbackURL(t *testing.T) {
	b := &backends{linkStatus: http.StatusConflict, airtableStatus: http.StatusOK}
	h := newTestServer(t, b)

	w := submit(t, h)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, b.airtableFields, 1)
	assert.Equal(t, "https://www.dropbox.com/home/submissions", b.airtableFields[0]["Dropbox URL"])
}

func TestSubmitFormRecordFailureReportsOnly(t *testing.T) {
	b := &backends{linkStatus: http.StatusOK, airtableStatus: http.StatusForbidden}
	h := newTestServer(t, b)

	w := submit(t, h)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal server error","message":"Something went wrong"}`, w.Body.String())
	assert.Equal(t, []string{"🚨 Form Submission Error"}, b.slackTexts, "no success notification after a failed record")
}

func TestMetricsEndpoint(t *testing.T) {
	b := &backends{linkStatus: http.StatusOK, airtableStatus: http.StatusOK}
	h := newTestServer(t, b)
	submit(t, h)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `submissions_requests_total{outcome="success"} 1`)
	assert.Contains(t, w.Body.String(), `submissions_share_links_total{source="team_only"} 1`)
}

func TestNonStandardMethodsGetMethodNotAllowed(t *testing.T) {
	b := &backends{linkStatus: http.StatusOK, airtableStatus: http.StatusOK}
	h := newTestServer(t, b)

	for _, method := range []string{"PROPFIND", "PURGE", "MKCOL"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(method, SubmitFormPath, nil))

		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, method)
		assert.JSONEq(t, `{"error":"Method not allowed"}`, w.Body.String(), method)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"), method)
	}
	assert.Empty(t, b.airtableFields)
	assert.Empty(t, b.slackTexts)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("PROPFIND", TestPath, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"method":"PROPFIND"`)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("PROPFIND", "/api/unknown", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
