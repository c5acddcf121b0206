// omp-launcher/api/handlers.go
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"omp-launcher/config"
	"omp-launcher/game"
	"omp-launcher/provision"
	"omp-launcher/updateinfo"
	"omp-launcher/utils"
)

// ErrPickerBusy is returned by a SelectDirectory func when a picker is already open.
var ErrPickerBusy = errors.New("folder picker busy")

type SetSettingRequest struct {
	Value json.RawMessage `json:"value"`
}

type SelectPathResponse struct {
	Path string `json:"path"`
}

type CancelResponse struct {
	OK        bool `json:"ok"`
	Cancelled bool `json:"cancelled"`
}

func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, s.prov.Status())
}

func (s *Server) HandleStartProvisioning(w http.ResponseWriter, r *http.Request) {
	done, err := s.prov.Start(s.runCtx)
	if err != nil {
		if errors.Is(err, provision.ErrAlreadyRunning) {
			utils.WriteUserError(w, http.StatusConflict, err, provision.UserMessage(err))
			return
		}
		utils.WriteJSONError(w, http.StatusInternalServerError, "start provisioning: %v", err)
		return
	}
	go func() {
		if err := <-done; err != nil {
			logger.Warn("provisioning run ended with an error", "error", err)
		}
	}()
	st := s.prov.Status()
	utils.WriteJSON(w, http.StatusAccepted, utils.APIResponse{
		OK:      true,
		Message: st.Task,
		RunID:   st.RunID,
		Stage:   st.Stage.String(),
	})
}

func (s *Server) HandleCancelProvisioning(w http.ResponseWriter, r *http.Request) {
	cancelled := s.prov.Cancel()
	utils.WriteJSON(w, http.StatusOK, CancelResponse{OK: true, Cancelled: cancelled})
}

func (s *Server) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, s.store.Get())
}

func (s *Server) HandleSetSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	var req SetSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSONError(w, http.StatusBadRequest, "invalid request: %v", err)
		return
	}

	var err error
	switch key {
	case "nickName", "gtasaPath", "sampVersion", "language":
		var value string
		if err := json.Unmarshal(req.Value, &value); err != nil {
			utils.WriteJSONError(w, http.StatusBadRequest, "%s must be a string", key)
			return
		}
		switch key {
		case "nickName":
			err = s.store.SetNickName(value)
		case "gtasaPath":
			err = s.store.SetGamePath(value)
		case "sampVersion":
			err = s.store.SetSampVersion(config.SampVersion(value))
		case "language":
			err = s.store.SetLanguage(value)
		}
	case "dataMerged":
		var value bool
		if err := json.Unmarshal(req.Value, &value); err != nil {
			utils.WriteJSONError(w, http.StatusBadRequest, "%s must be a boolean", key)
			return
		}
		err = s.store.SetDataMerged(value)
	default:
		utils.WriteJSONError(w, http.StatusNotFound, "unknown setting %q", key)
		return
	}
	if err != nil {
		utils.WriteJSONError(w, http.StatusBadRequest, "save %s: %v", key, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, s.store.Get())
}

func (s *Server) HandleSelectGamePath(w http.ResponseWriter, r *http.Request) {
	if s.selectDir == nil {
		utils.WriteJSONError(w, http.StatusNotImplemented, "folder picker is not available")
		return
	}
	path, err := s.selectDir()
	if err != nil {
		if errors.Is(err, ErrPickerBusy) {
			utils.WriteJSONError(w, http.StatusConflict, "a folder picker is already open, finish it first")
		} else {
			utils.WriteJSONError(w, http.StatusInternalServerError, "open folder picker: %v", err)
		}
		return
	}

	if path == "" { // User cancelled
		utils.WriteJSON(w, http.StatusOK, SelectPathResponse{Path: ""})
		return
	}
	if err := game.ValidateGamePath(path); err != nil {
		utils.WriteJSONError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if err := s.store.SetGamePath(path); err != nil {
		utils.WriteJSONError(w, http.StatusInternalServerError, "save settings: %v", err)
		return
	}

	logger.Info("game path selected", "path", path)
	utils.WriteJSON(w, http.StatusOK, SelectPathResponse{Path: path})
}

func (s *Server) HandleUpdateInfo(w http.ResponseWriter, r *http.Request) {
	if s.session == nil {
		utils.WriteJSONError(w, http.StatusServiceUnavailable, "update info is not configured")
		return
	}
	info, err := s.session.Get(r.Context())
	if err != nil {
		utils.WriteJSONError(w, http.StatusBadGateway, "%v", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, updateinfo.Check(info, s.version))
}
