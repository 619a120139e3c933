package main

import (
	"context"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"go.uber.org/zap"

	"github.com/vicosurge/revista-lavanda/internal/config"
	"github.com/vicosurge/revista-lavanda/internal/server"
	"github.com/vicosurge/revista-lavanda/pkg/logger"
)

var (
	handler http.Handler
	once    sync.Once
	initErr error
)

func init() {
	// "SubmitForm" is the entry point name the function is deployed under.
	functions.HTTP("SubmitForm", submitForm)
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := funcframework.Start(port); err != nil {
		os.Stderr.WriteString("CRITICAL: funcframework.Start: " + err.Error() + "\n")
		os.Exit(1)
	}
}

// setup builds the same routed engine the standalone server uses.
func setup() (http.Handler, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.App.IsProduction())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		log.Warn("Configuration is incomplete, submissions will fail", zap.Error(err))
	}
	srv, err := server.New(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}
	return srv.Handler(), nil
}

func submitForm(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		handler, initErr = setup()
	})
	if initErr != nil {
		os.Stderr.WriteString("CRITICAL: initialization failed: " + initErr.Error() + "\n")
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	// The bare function URL maps to the submission endpoint.
	if r.URL.Path == "/" || r.URL.Path == "" {
		r.URL.Path = server.SubmitFormPath
	}
	handler.ServeHTTP(w, r)
}
