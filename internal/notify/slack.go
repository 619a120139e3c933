package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vicosurge/revista-lavanda/internal/domain"
)

const providerSlack = "slack"

// TimestampLayout is how times are shown in messages.
const TimestampLayout = "1/2/2006, 3:04:05 PM"

// Notifier announces a processed submission.
type Notifier interface {
	NotifySubmission(ctx context.Context, sub *domain.Submission) error
}

// ErrorReporter makes one best-effort attempt to announce a failure. It never
// returns an error; failures are logged.
type ErrorReporter interface {
	ReportError(ctx context.Context, err error)
}

type SlackNotifier struct {
	webhookURL string
	client     *http.Client
	labels     Labels
	log        *zap.Logger
	now        func() time.Time
}

type Option func(*SlackNotifier)

// WithClock replaces time.Now for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(n *SlackNotifier) { n.now = now }
}

func WithLabels(labels Labels) Option {
	return func(n *SlackNotifier) { n.labels = labels }
}

func NewSlackNotifier(webhookURL string, client *http.Client, log *zap.Logger, opts ...Option) *SlackNotifier {
	n := &SlackNotifier{
		webhookURL: webhookURL,
		client:     client,
		labels:     DefaultLabels,
		log:        log,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *SlackNotifier) NotifySubmission(ctx context.Context, sub *domain.Submission) error {
	ts := sub.SubmittedAt
	if ts.IsZero() {
		ts = n.now()
	}
	if err := n.post(ctx, SubmissionMessage(sub, n.labels, ts.Format(TimestampLayout))); err != nil {
		return err
	}
	n.log.Info("Slack notification sent", zap.String("record_id", sub.Record.ID))
	return nil
}

func (n *SlackNotifier) ReportError(ctx context.Context, cause error) {
	msg := ErrorMessage(cause.Error(), n.now().Format(TimestampLayout))
	// The failure may be the caller's own cancellation; report regardless.
	if err := n.post(context.WithoutCancel(ctx), msg); err != nil {
		n.log.Error("Failed to send error notification to Slack", zap.Error(err))
	}
}

func (n *SlackNotifier) post(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return &domain.StageError{Stage: domain.StageNotify, Provider: providerSlack, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return &domain.StageError{Stage: domain.StageNotify, Provider: providerSlack, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &domain.StageError{
			Stage:      domain.StageNotify,
			Provider:   providerSlack,
			StatusCode: resp.StatusCode,
			Body:       http.StatusText(resp.StatusCode),
		}
	}
	return nil
}
