package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vicosurge/revista-lavanda/internal/config"
	"github.com/vicosurge/revista-lavanda/internal/handler"
	"github.com/vicosurge/revista-lavanda/internal/metrics"
	"github.com/vicosurge/revista-lavanda/internal/notify"
	"github.com/vicosurge/revista-lavanda/internal/repository"
	"github.com/vicosurge/revista-lavanda/internal/service"
)

const (
	SubmitFormPath = "/api/submit-form"
	TestPath       = "/api/test"
)

type Server struct {
	httpServer *http.Server
	cfg        *config.Config
	log        *zap.Logger
	closers    []func() error
}

func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Server, error) {
	client := &http.Client{Timeout: cfg.App.RequestTimeout}

	var closers []func() error
	storage, closeStorage, err := newStorage(ctx, cfg, client, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage repository: %w", err)
	}
	if closeStorage != nil {
		closers = append(closers, closeStorage)
	}

	records, closeRecords, err := newRecordStore(ctx, cfg, client, log)
	if err != nil {
		closeAll(closers, log)
		return nil, fmt.Errorf("failed to create record store: %w", err)
	}
	if closeRecords != nil {
		closers = append(closers, closeRecords)
	}

	registry := prometheus.NewRegistry()
	rec, err := metrics.New("submissions", registry)
	if err != nil {
		closeAll(closers, log)
		return nil, err
	}

	slack := notify.NewSlackNotifier(cfg.Slack.WebhookURL, client, log, notify.WithLabels(labelsFor(cfg)))
	submissions := service.NewSubmissionService(storage, records, slack, rec, log)
	h := handler.NewHandler(submissions, slack, rec, &cfg.App, log)

	router := NewRouter(h, registry, log)

	server := &Server{
		httpServer: &http.Server{
			Addr:           cfg.Server.Host + ":" + cfg.Server.Port,
			Handler:        router,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   cfg.App.RequestTimeout + 10*time.Second,
			MaxHeaderBytes: 1 << 20, // 1 MB
		},
		cfg:     cfg,
		log:     log,
		closers: closers,
	}

	log.Info("Server created successfully",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port),
		zap.String("storage", cfg.Storage.Provider),
		zap.String("records", cfg.Records.Provider),
		zap.String("env", cfg.App.Env))

	return server, nil
}

// NewRouter registers every route on a fresh gin engine.
func NewRouter(h *handler.Handler, gatherer prometheus.Gatherer, log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handler.RequestLogger(log))

	router.GET("/health", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	apiRoutes := map[string][]gin.HandlerFunc{
		SubmitFormPath: {handler.CORS(http.MethodPost, http.MethodOptions), h.SubmitForm},
		TestPath:       {handler.CORS(http.MethodGet, http.MethodPost, http.MethodOptions), h.Test},
	}
	for path, chain := range apiRoutes {
		router.Any(path, chain...)
	}

	// Any only covers the standard methods; anything else lands here and
	// must still get the endpoint's own answer rather than a bare 404.
	router.NoRoute(func(c *gin.Context) {
		chain, ok := apiRoutes[c.Request.URL.Path]
		if !ok {
			return
		}
		for _, fn := range chain {
			fn(c)
			if c.IsAborted() {
				return
			}
		}
	})

	return router
}

// Handler exposes the routed engine, for hosting it outside Run.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Run() error {
	s.log.Info("Server is running",
		zap.String("host", s.cfg.Server.Host),
		zap.String("port", s.cfg.Server.Port),
		zap.String("address", s.httpServer.Addr))

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down server")
	err := s.httpServer.Shutdown(ctx)
	return errors.Join(err, closeAll(s.closers, s.log))
}

func newStorage(ctx context.Context, cfg *config.Config, client *http.Client, log *zap.Logger) (repository.FileStorage, func() error, error) {
	switch cfg.Storage.Provider {
	case config.StorageDropbox:
		return repository.NewDropboxRepository(&cfg.Dropbox, cfg.Storage.Prefix, client, log), nil, nil
	case config.StorageS3:
		repo, err := repository.NewS3Repository(ctx, &cfg.S3, cfg.Storage.Prefix, log)
		return repo, nil, err
	case config.StorageGCS:
		return repository.NewGCSRepository(ctx, &cfg.GCS, cfg.Storage.Prefix, log)
	default:
		return nil, nil, fmt.Errorf("unknown storage provider %q", cfg.Storage.Provider)
	}
}

func newRecordStore(ctx context.Context, cfg *config.Config, client *http.Client, log *zap.Logger) (repository.RecordStore, func() error, error) {
	switch cfg.Records.Provider {
	case config.RecordsAirtable:
		return repository.NewAirtableRepository(&cfg.Airtable, client, log), nil, nil
	case config.RecordsFirestore:
		return repository.NewFirestoreRepository(ctx, &cfg.Firestore, log)
	default:
		return nil, nil, fmt.Errorf("unknown record store %q", cfg.Records.Provider)
	}
}

func labelsFor(cfg *config.Config) notify.Labels {
	labels := notify.DefaultLabels
	switch cfg.Storage.Provider {
	case config.StorageS3:
		labels.File = "View File in S3"
	case config.StorageGCS:
		labels.File = "View File in Cloud Storage"
	}
	if cfg.Records.Provider == config.RecordsFirestore {
		labels.Record = "View Submission in Firestore"
	}
	return labels
}

func closeAll(closers []func() error, log *zap.Logger) error {
	var errs []error
	for _, c := range closers {
		if err := c(); err != nil {
			log.Warn("Failed to close client", zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
