package maintenance

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"codejourney/internal/auth"
	"codejourney/internal/observability"
)

// CleanupHandler clears reset-token fields whose expiry has passed. The
// endpoint is meant for a platform cron and is disabled entirely unless a
// cron secret is configured.
type CleanupHandler struct {
	store      auth.CredentialStore
	logger     *observability.Logger
	cronSecret string
	batchSize  int
}

func NewCleanupHandler(store auth.CredentialStore, logger *observability.Logger, cronSecret string, batchSize int) *CleanupHandler {
	return &CleanupHandler{
		store:      store,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
		batchSize:  batchSize,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	cleared, err := h.store.ClearExpiredResetTokens(r.Context(), time.Now().UTC(), h.batchSize)
	if err != nil {
		h.logger.Error("reset_token_cleanup_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	h.logger.Info("reset_token_cleanup_completed", map[string]any{
		"cleared_reset_tokens": cleared,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": map[string]int64{"cleared_reset_tokens": cleared},
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
