package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vicosurge/revista-lavanda/internal/domain"
)

var fixedNow = time.Date(2026, 3, 5, 14, 7, 9, 0, time.UTC)

type webhook struct {
	status   int
	messages []Message
}

func (w *webhook) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var msg Message
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		w.messages = append(w.messages, msg)
		rw.WriteHeader(w.status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testSubmission(fields domain.Fields) *domain.Submission {
	return &domain.Submission{
		Fields:   fields,
		FileName: "poema.pdf",
		File:     domain.StoredFile{Path: "/submissions/poema.pdf", URL: "https://dropbox.test/s/poema.pdf"},
		Record:   domain.Record{ID: "recABC", URL: "https://airtable.com/app/tbl/recABC"},
	}
}

func TestSubmissionMessageLayout(t *testing.T) {
	msg := SubmissionMessage(testSubmission(domain.Fields{
		domain.FieldName:     "Ana",
		domain.FieldEmail:    "ana@example.com",
		domain.FieldCategory: "Poesía",
		domain.FieldTitle:    "Lavanda",
		domain.FieldBio:      "Poeta de Oaxaca.",
		domain.FieldNotes:    "Gracias",
	}), DefaultLabels, "3/5/2026, 2:07:09 PM")

	require.Len(t, msg.Blocks, 7)
	assert.Equal(t, "header", msg.Blocks[0].Type)
	assert.Equal(t, "📝 New Submission", msg.Blocks[0].Text.Text)

	fields := msg.Blocks[1].Fields
	require.Len(t, fields, 4)
	assert.Equal(t, "*Nombre:*\nAna", fields[0].Text)
	assert.Equal(t, "*Email:*\nana@example.com", fields[1].Text)
	assert.Equal(t, "*Tipo:*\nPoesía", fields[2].Text)
	assert.Equal(t, "*Título:*\nLavanda", fields[3].Text)

	assert.Equal(t, "*Biografía:*\nPoeta de Oaxaca.", msg.Blocks[2].Text.Text)
	assert.Equal(t, "*Notas:*\nGracias", msg.Blocks[3].Text.Text)
	assert.Equal(t, "📁 <https://dropbox.test/s/poema.pdf|View File in Dropbox>", msg.Blocks[4].Text.Text)
	assert.Equal(t, "📋 <https://airtable.com/app/tbl/recABC|View Submission in Airtable>", msg.Blocks[5].Text.Text)

	assert.Equal(t, "context", msg.Blocks[6].Type)
	require.Len(t, msg.Blocks[6].Elements, 1)
	assert.Equal(t, "Submission ID: recABC | 3/5/2026, 2:07:09 PM", msg.Blocks[6].Elements[0].Text)
}

func TestSubmissionMessagePlaceholders(t *testing.T) {
	msg := SubmissionMessage(testSubmission(nil), DefaultLabels, "now")

	fields := msg.Blocks[1].Fields
	assert.Equal(t, "*Nombre:*\n"+MissingName, fields[0].Text)
	assert.Equal(t, "*Email:*\n"+MissingEmail, fields[1].Text)
	assert.Equal(t, "*Tipo:*\n"+MissingCategory, fields[2].Text)
	assert.Equal(t, "*Título:*\n"+MissingTitle, fields[3].Text)
	assert.Equal(t, "*Biografía:*\n"+MissingBio, msg.Blocks[2].Text.Text)
	assert.Equal(t, "*Notas:*\n"+MissingNotes, msg.Blocks[3].Text.Text)
}

func TestNotifySubmission(t *testing.T) {
	hook := &webhook{status: http.StatusOK}
	srv := hook.server(t)
	n := NewSlackNotifier(srv.URL, srv.Client(), zap.NewNop(),
		WithClock(func() time.Time { return fixedNow }),
		WithLabels(Labels{File: "View File in S3", Record: "View Submission in Firestore"}))

	require.NoError(t, n.NotifySubmission(context.Background(), testSubmission(nil)))

	require.Len(t, hook.messages, 1)
	msg := hook.messages[0]
	assert.Equal(t, "📝 New Form Submission Received!", msg.Text)
	assert.Contains(t, msg.Blocks[4].Text.Text, "View File in S3")
	assert.Contains(t, msg.Blocks[5].Text.Text, "View Submission in Firestore")
	assert.Equal(t, "Submission ID: recABC | 3/5/2026, 2:07:09 PM", msg.Blocks[6].Elements[0].Text)
}

func TestNotifySubmissionUsesSubmittedAt(t *testing.T) {
	hook := &webhook{status: http.StatusOK}
	srv := hook.server(t)
	n := NewSlackNotifier(srv.URL, srv.Client(), zap.NewNop(), WithClock(func() time.Time { return fixedNow }))

	sub := testSubmission(nil)
	sub.SubmittedAt = time.Date(2026, 12, 24, 9, 30, 0, 0, time.UTC)
	require.NoError(t, n.NotifySubmission(context.Background(), sub))

	assert.Equal(t, "Submission ID: recABC | 12/24/2026, 9:30:00 AM", hook.messages[0].Blocks[6].Elements[0].Text)
}

func TestNotifySubmissionFailure(t *testing.T) {
	hook := &webhook{status: http.StatusForbidden}
	srv := hook.server(t)
	n := NewSlackNotifier(srv.URL, srv.Client(), zap.NewNop())

	err := n.NotifySubmission(context.Background(), testSubmission(nil))
	require.Error(t, err)

	var stageErr *domain.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, domain.StageNotify, stageErr.Stage)
	assert.Equal(t, http.StatusForbidden, stageErr.StatusCode)
	assert.Equal(t, "slack notify failed: 403 - Forbidden", err.Error())
}

func TestReportError(t *testing.T) {
	hook := &webhook{status: http.StatusOK}
	srv := hook.server(t)
	n := NewSlackNotifier(srv.URL, srv.Client(), zap.NewNop(), WithClock(func() time.Time { return fixedNow }))

	n.ReportError(context.Background(), errors.New("Dropbox upload failed: 507"))

	require.Len(t, hook.messages, 1)
	msg := hook.messages[0]
	assert.Equal(t, "🚨 Form Submission Error", msg.Text)
	require.Len(t, msg.Blocks, 2)
	assert.Equal(t, "🚨 Form Processing Error", msg.Blocks[0].Text.Text)
	assert.Equal(t, "*Error:* Dropbox upload failed: 507\n*Time:* 3/5/2026, 2:07:09 PM", msg.Blocks[1].Text.Text)
}

func TestReportErrorTruncatesLongErrors(t *testing.T) {
	hook := &webhook{status: http.StatusOK}
	srv := hook.server(t)
	n := NewSlackNotifier(srv.URL, srv.Client(), zap.NewNop(), WithClock(func() time.Time { return fixedNow }))

	n.ReportError(context.Background(), errors.New(strings.Repeat("ñ", 1<<20)))

	require.Len(t, hook.messages, 1)
	text := hook.messages[0].Blocks[1].Text.Text
	assert.LessOrEqual(t, utf8.RuneCountInString(text), 3000)
	assert.True(t, utf8.ValidString(text))
	assert.Contains(t, text, "…\n*Time:* 3/5/2026, 2:07:09 PM")
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "short", truncateRunes("short", 10))
	assert.Equal(t, "exactly10!", truncateRunes("exactly10!", 10))
	assert.Equal(t, "lavan…", truncateRunes("lavanda poesía", 6))
	assert.Equal(t, "poesí…", truncateRunes("poesías", 6))
}

func TestReportErrorSurvivesCanceledContext(t *testing.T) {
	hook := &webhook{status: http.StatusOK}
	srv := hook.server(t)
	n := NewSlackNotifier(srv.URL, srv.Client(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.ReportError(ctx, errors.New("boom"))

	assert.Len(t, hook.messages, 1)
}

func TestReportErrorSwallowsFailures(t *testing.T) {
	hook := &webhook{status: http.StatusInternalServerError}
	srv := hook.server(t)
	core, logs := observer.New(zap.ErrorLevel)
	n := NewSlackNotifier(srv.URL, srv.Client(), zap.New(core))

	assert.NotPanics(t, func() {
		n.ReportError(context.Background(), errors.New("boom"))
	})
	assert.Len(t, hook.messages, 1, "exactly one attempt, no retry")

	entries := logs.FilterMessage("Failed to send error notification to Slack").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "slack notify failed: 500 - Internal Server Error", entries[0].ContextMap()["error"])

	unreachable := NewSlackNotifier("http://127.0.0.1:0/hook", http.DefaultClient, zap.NewNop())
	assert.NotPanics(t, func() {
		unreachable.ReportError(context.Background(), errors.New("boom"))
	})
}
