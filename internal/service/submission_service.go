package service

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/vicosurge/revista-lavanda/internal/domain"
	"github.com/vicosurge/revista-lavanda/internal/metrics"
	"github.com/vicosurge/revista-lavanda/internal/notify"
	"github.com/vicosurge/revista-lavanda/internal/repository"
)

// SubmissionService drives one submission through upload, record and notify.
type SubmissionService interface {
	Process(ctx context.Context, fields domain.Fields, file domain.UploadedFile) (*domain.Record, error)
}

type submissionService struct {
	storage  repository.FileStorage
	records  repository.RecordStore
	notifier notify.Notifier
	metrics  *metrics.Recorder
	log      *zap.Logger
	now      func() time.Time
}

func NewSubmissionService(
	storage repository.FileStorage,
	records repository.RecordStore,
	notifier notify.Notifier,
	rec *metrics.Recorder,
	log *zap.Logger,
) SubmissionService {
	return &submissionService{
		storage:  storage,
		records:  records,
		notifier: notifier,
		metrics:  rec,
		log:      log,
		now:      time.Now,
	}
}

// Process runs the stages strictly in order. The first failing stage stops
// the pipeline; nothing already done is rolled back.
func (s *submissionService) Process(ctx context.Context, fields domain.Fields, file domain.UploadedFile) (*domain.Record, error) {
	data, err := os.ReadFile(file.TempPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read uploaded file: %w", err)
	}

	var stored *domain.StoredFile
	err = s.stage(domain.StageUpload, func() (err error) {
		stored, err = s.storage.Upload(ctx, file.OriginalFilename, data)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveUpload(int64(len(data)))
	s.metrics.ObserveLink(stored.LinkSource)

	var record *domain.Record
	err = s.stage(domain.StageRecord, func() (err error) {
		record, err = s.records.Create(ctx, repository.RecordInput{
			Fields:   fields,
			FileName: file.OriginalFilename,
			FileURL:  stored.URL,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	sub := &domain.Submission{
		Fields:      fields,
		FileName:    file.OriginalFilename,
		File:        *stored,
		Record:      *record,
		SubmittedAt: s.now(),
	}
	err = s.stage(domain.StageNotify, func() error {
		return s.notifier.NotifySubmission(ctx, sub)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Submission processed",
		zap.String("filename", file.OriginalFilename),
		zap.String("path", stored.Path),
		zap.String("link_source", stored.LinkSource),
		zap.String("record_id", record.ID))

	return record, nil
}

func (s *submissionService) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	s.metrics.ObserveStage(name, time.Since(start), err)
	if err != nil {
		s.log.Error("Stage failed", zap.String("stage", name), zap.Error(err))
	}
	return err
}
