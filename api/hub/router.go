// Package hub exposes the hub management API: configuration, service
// restarts, device enrollment and the device-config directory.
package hub

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/kilianp07/skybridge/core/model"
	"github.com/kilianp07/skybridge/core/provision"
	"github.com/kilianp07/skybridge/infra/logger"
)

// ConfigStore persists the hub configuration.
type ConfigStore interface {
	Get() (model.HubConfig, error)
	Update(patch map[string]any) (model.HubConfig, error)
}

// Enroller provisions device credentials.
type Enroller interface {
	Enroll(ctx context.Context, deviceID, username, password string) (provision.Result, error)
}

// DeviceDirectory reports the username a device was enrolled under.
type DeviceDirectory interface {
	EnrolledUsername(deviceID string) (string, bool, error)
}

// ServiceManager restarts allow-listed services.
type ServiceManager interface {
	Allowed(name string) bool
	Restart(ctx context.Context, name string) error
}

// Server holds the dependencies of the hub handlers.
type Server struct {
	Config   ConfigStore
	Enroller Enroller
	// Devices overrides the conventional username in the device-config
	// directory when set.
	Devices  DeviceDirectory
	Services ServiceManager
	// Metrics is mounted on /metrics when set.
	Metrics http.Handler
	Logger  logger.Logger
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	if s.Logger == nil {
		s.Logger = logger.NopLogger{}
	}
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	cfg := r.PathPrefix("/config").Subrouter()
	cfg.HandleFunc("/get", s.handleConfigGet).Methods(http.MethodGet)
	cfg.HandleFunc("/set", s.handleConfigSet).Methods(http.MethodPost)

	r.HandleFunc("/service/restart", s.handleServiceRestart).Methods(http.MethodPost)
	r.HandleFunc("/enroll", s.handleEnroll).Methods(http.MethodPost)
	r.HandleFunc("/devices/{device_id}/config", s.handleDeviceConfig).Methods(http.MethodGet)

	if s.Metrics != nil {
		r.Handle("/metrics", s.Metrics).Methods(http.MethodGet)
	}
	return r
}

// Handler wraps Router with CORS, access logging and panic recovery.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.Router()
	h = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(h)
	h = handlers.CustomLoggingHandler(io.Discard, h, s.logRequest)
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{s.Logger}),
		handlers.PrintRecoveryStack(false),
	)(h)
}

func (s *Server) logRequest(_ io.Writer, p handlers.LogFormatterParams) {
	s.Logger.Debugw("http request", map[string]any{
		"method":   p.Request.Method,
		"path":     p.URL.Path,
		"status":   p.StatusCode,
		"size":     p.Size,
		"duration": time.Since(p.TimeStamp).String(),
	})
}

type recoveryLogger struct{ log logger.Logger }

func (r recoveryLogger) Println(v ...interface{}) {
	r.log.Errorf("panic in handler: %s", fmt.Sprint(v...))
}
