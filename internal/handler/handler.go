package handler

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vicosurge/revista-lavanda/internal/config"
	"github.com/vicosurge/revista-lavanda/internal/domain"
	"github.com/vicosurge/revista-lavanda/internal/metrics"
	"github.com/vicosurge/revista-lavanda/internal/notify"
	"github.com/vicosurge/revista-lavanda/internal/service"
	"github.com/vicosurge/revista-lavanda/pkg/utils"
)

// multipartOverhead is the body allowance on top of the file cap for field
// values and part headers.
const multipartOverhead = 1 << 20

const (
	outcomeSuccess  = "success"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
)

type Handler struct {
	service  service.SubmissionService
	reporter notify.ErrorReporter
	metrics  *metrics.Recorder
	cfg      *config.AppConfig
	log      *zap.Logger
	now      func() time.Time
}

func NewHandler(service service.SubmissionService, reporter notify.ErrorReporter, rec *metrics.Recorder, cfg *config.AppConfig, log *zap.Logger) *Handler {
	return &Handler{
		service:  service,
		reporter: reporter,
		metrics:  rec,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

func (h *Handler) SubmitForm(c *gin.Context) {
	log := requestLogger(c, h.log)

	if c.Request.Method != http.MethodPost {
		h.metrics.ObserveSubmission(outcomeRejected)
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
		return
	}

	defer func() {
		if c.Request.MultipartForm != nil {
			_ = c.Request.MultipartForm.RemoveAll()
		}
	}()

	fields, file, err := h.parseForm(c)
	if err != nil {
		h.fail(c, log, err)
		return
	}
	defer h.removeTemp(log, file.TempPath)

	log.Info("Submission received",
		zap.String("filename", file.OriginalFilename),
		zap.Int64("size", file.Size),
		zap.Int("fields", len(fields)))

	record, err := h.service.Process(c.Request.Context(), fields, *file)
	if err != nil {
		h.fail(c, log, err)
		return
	}

	h.metrics.ObserveSubmission(outcomeSuccess)
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "Submission processed successfully",
		"recordId": record.ID,
	})
}

// parseForm reads the multipart body, normalizes the fields and writes the
// uploaded file to a request-owned temporary path.
func (h *Handler) parseForm(c *gin.Context) (domain.Fields, *domain.UploadedFile, error) {
	limit := h.cfg.MaxUploadSize
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)

	form, err := c.MultipartForm()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			return nil, nil, errNoFile()
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, nil, fmt.Errorf("%w: limit is %d bytes", domain.ErrFileTooLarge, limit)
		}
		return nil, nil, fmt.Errorf("failed to parse form: %w", err)
	}

	fields := domain.Fields(utils.NormalizeFields(form.Value))

	headers := form.File[domain.FileField]
	if len(headers) == 0 {
		return nil, nil, errNoFile()
	}
	header := headers[0]
	if header.Size > limit {
		return nil, nil, fmt.Errorf("%w: %d bytes received, limit is %d bytes", domain.ErrFileTooLarge, header.Size, limit)
	}

	name := utils.SafeFilename(header.Filename)
	tempPath := filepath.Join(h.cfg.UploadDir, uuid.New().String()+filepath.Ext(name))
	if err := c.SaveUploadedFile(header, tempPath); err != nil {
		return nil, nil, fmt.Errorf("failed to store uploaded file: %w", err)
	}

	return fields, &domain.UploadedFile{
		OriginalFilename: name,
		Size:             header.Size,
		TempPath:         tempPath,
	}, nil
}

func errNoFile() error {
	return &domain.ValidationError{StatusCode: http.StatusBadRequest, Message: "No file uploaded"}
}

// fail answers with the status matching err. Anything that is not a
// validation error is reported to the error channel first.
func (h *Handler) fail(c *gin.Context, log *zap.Logger, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		h.metrics.ObserveSubmission(outcomeRejected)
		log.Warn("Submission rejected", zap.Error(err))
		c.JSON(verr.StatusCode, gin.H{"error": verr.Message})
		return
	}

	h.metrics.ObserveSubmission(outcomeFailed)
	log.Error("Error processing form submission", zap.Error(err))
	h.reporter.ReportError(c.Request.Context(), err)

	message := "Something went wrong"
	if !h.cfg.IsProduction() {
		message = err.Error()
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "Internal server error",
		"message": message,
	})
}

func (h *Handler) removeTemp(log *zap.Logger, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Failed to remove temporary upload", zap.String("path", path), zap.Error(err))
	}
}

// Test is a liveness probe that echoes the request method.
func (h *Handler) Test(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":     "API is working!",
		"method":      c.Request.Method,
		"timestamp":   h.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		"environment": h.cfg.Env,
	})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}
