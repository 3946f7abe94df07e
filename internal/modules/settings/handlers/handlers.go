// Package handlers provides HTTP handlers for runtime settings and
// notification status.
package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/permanent/internal/domain"
	"github.com/aristath/permanent/internal/httpapi"
	"github.com/aristath/permanent/internal/modules/notifications"
	"github.com/aristath/permanent/internal/modules/settings"
)

const testEmailTimeout = 30 * time.Second

// SettingsService reads and writes runtime settings
type SettingsService interface {
	GetAll() (map[string]interface{}, error)
	Set(key string, value interface{}) error
}

// NotificationStatus exposes the notifier's persisted state
type NotificationStatus interface {
	State() (notifications.State, error)
}

// Handler handles settings HTTP requests
type Handler struct {
	settings SettingsService
	status   NotificationStatus
	mailer   notifications.Mailer
	log      zerolog.Logger
}

// NewHandler creates a new settings handler. mailer may be nil, which
// disables the test-email endpoint.
func NewHandler(settingsSvc SettingsService, status NotificationStatus, mailer notifications.Mailer, log zerolog.Logger) *Handler {
	return &Handler{
		settings: settingsSvc,
		status:   status,
		mailer:   mailer,
		log:      log.With().Str("handler", "settings").Logger(),
	}
}

// HandleGetSettings handles GET /api/v2/settings
func (h *Handler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	values, err := h.settings.GetAll()
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"settings":     values,
		"descriptions": settings.SettingDescriptions,
	})
}

// HandleUpdateSettings handles POST /api/v2/settings with a body of
// key to value. Unknown keys reject the whole request; the read-only
// smtp_password_set flag is ignored so a GET body can be posted back.
func (h *Handler) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var updates map[string]interface{}
	if err := httpapi.Decode(r, &updates); err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	if len(updates) == 0 {
		httpapi.WriteError(w, h.log, domain.InvalidInput("no settings to update"))
		return
	}

	keys := make([]string, 0, len(updates))
	delete(updates, settings.KeySMTPPasswordSet)
	for key := range updates {
		if _, ok := settings.SettingDefaults[key]; !ok {
			httpapi.WriteError(w, h.log, domain.InvalidInput("unknown setting %q", key))
			return
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := h.settings.Set(key, updates[key]); err != nil {
			httpapi.WriteError(w, h.log, err)
			return
		}
		if settings.IsSecret(key) {
			h.log.Info().Str("key", key).Msg("Setting updated")
			continue
		}
		h.log.Info().Str("key", key).Interface("value", updates[key]).Msg("Setting updated")
	}

	values, err := h.settings.GetAll()
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{"ok": true, "settings": values})
}

// HandleTestEmail handles POST /api/v2/settings/test-email
func (h *Handler) HandleTestEmail(w http.ResponseWriter, r *http.Request) {
	if h.mailer == nil {
		httpapi.WriteError(w, h.log, domain.InvalidInput("email is not configured"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), testEmailTimeout)
	defer cancel()

	if err := h.mailer.Send(ctx, "Permanent portfolio: test email", "This is a test message from the portfolio tracker.\n"); err != nil {
		h.log.Warn().Err(err).Msg("Test email failed")
		httpapi.WriteJSON(w, h.log, http.StatusBadGateway, httpapi.ErrorResponse{Error: err.Error()})
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{"ok": true})
}

// HandleNotificationState handles GET /api/v2/notifications
func (h *Handler) HandleNotificationState(w http.ResponseWriter, r *http.Request) {
	st, err := h.status.State()
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, st)
}

// RegisterRoutes registers the settings routes under /api/v2
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/settings", func(r chi.Router) {
		r.Get("/", h.HandleGetSettings)
		r.Post("/", h.HandleUpdateSettings)
		r.Post("/test-email", h.HandleTestEmail)
	})
	r.Get("/notifications", h.HandleNotificationState)
}
