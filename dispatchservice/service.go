// Package dispatchservice assembles the guardian notification dispatch
// service: the two notification functions, the token registration API and
// the optional pubsub ingestion pipeline.
package dispatchservice

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-guardian-notification-service/dispatchservice/config"
	"github.com/tinywideclouds/go-guardian-notification-service/internal/api"
	"github.com/tinywideclouds/go-guardian-notification-service/internal/pipeline"
	"github.com/tinywideclouds/go-guardian-notification-service/pkg/notify"
)

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[pipeline.BulkJob]
	logger          *slog.Logger
}

// New assembles the service. The consumer may be nil: the pubsub ingestion
// path is optional and the HTTP functions stand alone without it.
func New(
	cfg *config.Config,
	consumer messagepipeline.MessageConsumer,
	resolver notify.Resolver,
	tokenStore notify.TokenStore,
	credentials notify.AccessTokenSource,
	dispatcher notify.Dispatcher,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Optional ingestion pipeline
	var streamingService *messagepipeline.StreamingService[pipeline.BulkJob]
	if consumer != nil {
		processor := pipeline.NewProcessor(resolver, tokenStore, credentials, dispatcher, logger)
		var err error
		streamingService, err = messagepipeline.NewStreamingService[pipeline.BulkJob](
			messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
			consumer,
			pipeline.BulkJobTransformer,
			processor,
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create streaming service: %w", err)
		}
	}

	// 3. APIs
	dispatchAPI := api.NewDispatchAPI(resolver, tokenStore, credentials, dispatcher, logger)
	tokenAPI := api.NewTokenAPI(tokenStore, logger)

	// Register Routes
	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	preflight := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 200 OK with CORS headers handled by middleware
	})

	// 1. Notification functions. Called by the admin panel and the kiosk
	// backend through the API gateway; no user auth, CORS only.
	mux.Handle("POST /send-notification", corsMiddleware(http.HandlerFunc(dispatchAPI.SendNotification)))
	mux.Handle("OPTIONS /send-notification", corsMiddleware(preflight))
	mux.Handle("POST /send-bulk-notification", corsMiddleware(http.HandlerFunc(dispatchAPI.SendBulkNotification)))
	mux.Handle("OPTIONS /send-bulk-notification", corsMiddleware(preflight))

	// 2. Token registration (the parent app, authenticated)
	handle := func(pattern string, handlerFunc http.HandlerFunc) {
		mux.Handle(pattern, corsMiddleware(authMiddleware(handlerFunc)))
	}
	handle("POST /api/v1/register/fcm", tokenAPI.RegisterFCM)
	handle("POST /api/v1/unregister/fcm", tokenAPI.UnregisterFCM)

	// 3. Global OPTIONS for the API namespace (CORS preflight)
	mux.Handle("OPTIONS /api/v1/", corsMiddleware(preflight))

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		logger:          logger,
	}, nil
}

func (w *Wrapper) Start(ctx context.Context) error {
	if w.pipelineService != nil {
		w.logger.Info("Ingestion pipeline starting...")
		if err := w.pipelineService.Start(ctx); err != nil {
			return fmt.Errorf("failed to start processing service: %w", err)
		}
	}
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if w.pipelineService != nil {
		if err := w.pipelineService.Stop(ctx); err != nil {
			w.logger.Error("Processing pipeline shutdown failed.", "err", err)
			finalErr = err
		}
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
