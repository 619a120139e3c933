package domain

import (
	"errors"
	"fmt"
	"time"
)

// Known submission field keys, as posted by the magazine form.
const (
	FieldName     = "nombre"
	FieldEmail    = "email"
	FieldCategory = "tipo"
	FieldTitle    = "titulo"
	FieldBio      = "bio"
	FieldNotes    = "notas"
)

// FileField is the multipart field that must carry the uploaded file.
const FileField = "archivo"

// Fields holds one value per submitted form field.
type Fields map[string]string

// Get returns the value for key or "" when absent.
func (f Fields) Get(key string) string {
	if f == nil {
		return ""
	}
	return f[key]
}

// UploadedFile references a file already written to local temporary storage.
type UploadedFile struct {
	OriginalFilename string
	Size             int64
	TempPath         string
}

// StoredFile is the result of the storage stage.
type StoredFile struct {
	Path string `json:"path"`
	URL  string `json:"url"`
	// LinkSource names the link strategy that produced URL.
	LinkSource string `json:"-"`
}

// ErrFileTooLarge is returned when the upload exceeds the configured cap.
var ErrFileTooLarge = errors.New("maximum upload size exceeded")

// Record is the database row created for a submission.
type Record struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Submission is everything the notification stage needs.
type Submission struct {
	Fields      Fields
	FileName    string
	File        StoredFile
	Record      Record
	SubmittedAt time.Time
}

// Stage names used in errors, logs and metrics.
const (
	StageParse   = "parse"
	StageUpload  = "upload"
	StageRecord  = "record"
	StageNotify  = "notify"
	StageCleanup = "cleanup"
)

// ValidationError is returned for bad input detected before any external call.
type ValidationError struct {
	StatusCode int
	Message    string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// StageError reports a non-success answer from an external provider.
type StageError struct {
	Stage      string
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *StageError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s %s failed: %d - %s", e.Provider, e.Stage, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("%s %s failed: %v", e.Provider, e.Stage, e.Err)
	default:
		return fmt.Sprintf("%s %s failed: %s", e.Provider, e.Stage, e.Body)
	}
}

func (e *StageError) Unwrap() error {
	return e.Err
}
