package token

import (
	"encoding/json"
	"log"
	"net/http"
)

// Handler serves the token issuance HTTP surface. The endpoint itself is
// unauthenticated; credential secrecy is the only protection.
type Handler struct {
	issuer *Issuer
}

// NewHandler creates a handler. issuer may be nil when the server is
// running without credentials; token requests then fail with a
// configuration error.
func NewHandler(issuer *Issuer) *Handler {
	return &Handler{issuer: issuer}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Token] Failed to write response: %v", err)
	}
}

// HandleIndex reports the server's configuration status.
func (h *Handler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	status := "Environment configured"
	if h.issuer == nil {
		status = "Environment missing credentials"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"name":   "Liya Token Server",
		"status": status,
	})
}

// HandleGetToken mints a token for the name/room query parameters,
// defaulting to "user" and "my-room".
func (h *Handler) HandleGetToken(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "user"
	}
	room := r.URL.Query().Get("room")
	if room == "" {
		room = "my-room"
	}

	if h.issuer == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "credentials not configured on server",
		})
		return
	}

	signed, err := h.issuer.Mint(name, room)
	if err != nil {
		log.Printf("[Token] Mint failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to mint token",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": signed})
}

// HandleHealth is a liveness probe.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
