package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	hubapi "github.com/kilianp07/skybridge/api/hub"
	"github.com/kilianp07/skybridge/config"
	"github.com/kilianp07/skybridge/core/events"
	"github.com/kilianp07/skybridge/core/provision"
	"github.com/kilianp07/skybridge/infra/hubstore"
	"github.com/kilianp07/skybridge/infra/logger"
	inframetrics "github.com/kilianp07/skybridge/infra/metrics"
	"github.com/kilianp07/skybridge/infra/mosquitto"
	"github.com/kilianp07/skybridge/infra/service"
	"github.com/kilianp07/skybridge/internal/eventbus"
	"github.com/kilianp07/skybridge/metrics"
)

const shutdownTimeout = 5 * time.Second

// Hub serves the hub management API.
type Hub struct {
	cfg      config.HubConfig
	log      logger.Logger
	events   *eventbus.Bus[events.Event]
	sink     *inframetrics.PromSink
	Store    *hubstore.Store
	Enroller *provision.Store
	Services *service.Manager
}

// NewHub wires the hub stores, the service manager and the enrollment
// store from cfg.
func NewHub(cfg config.HubConfig) (*Hub, error) {
	log := logger.New("hub")
	sink, err := inframetrics.NewPromSink()
	if err != nil {
		return nil, fmt.Errorf("prom sink: %w", err)
	}
	evBus := eventbus.New[events.Event](64)
	svc := service.NewManager(cfg.ManagedServices,
		service.WithSudo(cfg.UseSudo),
		service.WithTimeout(cfg.RestartTimeout()),
		service.WithLogger(log.With("component", "service")),
	)
	enroller := NewEnroller(cfg, svc, log, evBus)
	return &Hub{
		cfg:      cfg,
		log:      log,
		events:   evBus,
		sink:     sink,
		Store:    hubstore.New(cfg.ConfigFile),
		Enroller: enroller,
		Services: svc,
	}, nil
}

// NewEnroller builds the enrollment store over the broker's password and
// ACL files. restarter may be nil.
func NewEnroller(cfg config.HubConfig, restarter provision.Restarter, log logger.Logger, evBus *eventbus.Bus[events.Event]) *provision.Store {
	return provision.NewStore(
		&mosquitto.PasswordFile{Path: cfg.PasswordFile},
		&mosquitto.ACLFile{Path: cfg.ACLFile},
		restarter,
		provision.Options{
			BrokerService: cfg.BrokerService,
			Logger:        log.With("component", "provision"),
			Events:        evBus,
		},
	)
}

// Handler returns the hub HTTP handler.
func (h *Hub) Handler() http.Handler {
	srv := &hubapi.Server{
		Config:   h.Store,
		Enroller: h.Enroller,
		Devices:  h.Enroller,
		Services: h.Services,
		Metrics:  metrics.Handler(),
		Logger:   h.log.With("component", "api"),
	}
	return srv.Handler()
}

// Run serves the API until ctx is cancelled, then shuts down gracefully.
func (h *Hub) Run(ctx context.Context) error {
	collected := inframetrics.StartEventCollector(context.Background(), h.events, h.sink, h.log)
	defer func() {
		h.events.Close()
		<-collected
	}()

	srv := &http.Server{
		Addr:              h.cfg.Listen,
		Handler:           h.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		h.log.Infof("hub API listening on %s", h.cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("hub API: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	h.log.Infof("hub API stopped")
	return nil
}
