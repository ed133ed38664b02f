package hub

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	corehub "github.com/kilianp07/skybridge/core/hub"
	"github.com/kilianp07/skybridge/core/provision"
	"github.com/kilianp07/skybridge/infra/hubstore"
)

const maxBody = 64 << 10

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type enrollRequest struct {
	DeviceID string `json:"device_id"`
	AssetID  string `json:"asset_id"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type enrollResponse struct {
	Status          string `json:"status"`
	DeviceID        string `json:"device_id"`
	Username        string `json:"username"`
	RestartRequired bool   `json:"restart_required"`
	Message         string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, statusResponse{Status: "error", Message: msg})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBody))
	return dec.Decode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) handleConfigGet(w http.ResponseWriter, _ *http.Request) {
	cfg, err := s.Config.Get()
	if err != nil {
		s.Logger.Errorf("read hub config: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleConfigSet(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	cfg, err := s.Config.Update(patch)
	switch {
	case errors.Is(err, hubstore.ErrInvalidMode), errors.Is(err, hubstore.ErrInvalidPatch):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.Logger.Errorf("update hub config: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.Logger.Infof("hub config updated (current_mode=%s)", cfg.CurrentMode)
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "config": cfg})
}

func (s *Server) handleServiceRestart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Service string `json:"service"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !s.Services.Allowed(req.Service) {
		writeError(w, http.StatusBadRequest, "Invalid service")
		return
	}
	if err := s.Services.Restart(r.Context(), req.Service); err != nil {
		s.Logger.Errorf("restart %s: %v", req.Service, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "success", Message: req.Service + " restarted"})
}

func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	id := req.DeviceID
	if id == "" {
		id = req.AssetID
	}
	res, err := s.Enroller.Enroll(r.Context(), id, req.Username, req.Password)
	switch {
	case errors.Is(err, provision.ErrInvalidEnrollment):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, provision.ErrUsernameTaken):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.Logger.Errorf("enroll %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	msg := "device enrolled"
	if res.RestartRequired {
		msg = "device enrolled; broker restart required"
	}
	writeJSON(w, http.StatusOK, enrollResponse{
		Status:          "success",
		DeviceID:        res.DeviceID,
		Username:        res.Username,
		RestartRequired: res.RestartRequired,
		Message:         msg,
	})
}

func (s *Server) handleDeviceConfig(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(mux.Vars(r)["device_id"])
	if id == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}
	cfg, err := s.Config.Get()
	if err != nil {
		s.Logger.Errorf("read hub config: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	dc := corehub.DeviceConfigFor(cfg, id)
	if s.Devices != nil {
		user, ok, err := s.Devices.EnrolledUsername(id)
		if err != nil {
			s.Logger.Errorf("look up enrollment of %s: %v", id, err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if ok {
			dc.BusUser = user
		}
	}
	writeJSON(w, http.StatusOK, dc)
}
