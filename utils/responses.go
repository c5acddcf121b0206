// omp-launcher/utils/responses.go
package utils

import (
	"encoding/json"
	"fmt"
	"net/http"

	"omp-launcher/logs"
)

var responseLogger = logs.L("response")

// APIResponse is the reply of launcher actions that have no resource of their own.
type APIResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	// Message is a loading-screen line the window may show as is.
	Message string `json:"message,omitempty"`
	Path    string `json:"path,omitempty"`
	RunID   string `json:"runId,omitempty"`
	Stage   string `json:"stage,omitempty"`
}

// WriteJSON replies with v. Status and settings change under the windows'
// feet, so replies are never cached.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		responseLogger.Error("encode JSON response", "error", err)
	}
}

func WriteJSONError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	errMsg := fmt.Sprintf(format, args...)
	responseLogger.Warn("request failed", "status", status, "error", errMsg)
	WriteJSON(w, status, APIResponse{OK: false, Error: errMsg})
}

// WriteUserError replies with err for logs and tooling plus the message a
// window shows the player.
func WriteUserError(w http.ResponseWriter, status int, err error, message string) {
	responseLogger.Warn("request failed", "status", status, "error", err)
	WriteJSON(w, status, APIResponse{OK: false, Error: err.Error(), Message: message})
}
