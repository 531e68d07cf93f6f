package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prudhvinik1/vigil/internal/models"
	"github.com/prudhvinik1/vigil/internal/notifier"
	"github.com/prudhvinik1/vigil/internal/repositories"
	"github.com/prudhvinik1/vigil/internal/utils"
	"go.uber.org/zap"
)

const defaultTimeoutHours = 24

// resolvedSendTimeout bounds the best-effort resolved email dispatched
// after the heartbeat response is already committed.
const resolvedSendTimeout = 30 * time.Second

type Handler struct {
	users    repositories.UserRepository
	status   repositories.StatusRepository
	notifier notifier.Notifier
	cipher   *utils.SecretCipher
	logger   *zap.Logger
	started  time.Time
}

func NewHandler(
	users repositories.UserRepository,
	status repositories.StatusRepository,
	n notifier.Notifier,
	cipher *utils.SecretCipher,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		users:    users,
		status:   status,
		notifier: n,
		cipher:   cipher,
		logger:   logger,
		started:  time.Now(),
	}
}

func (h *Handler) Routes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Post("/api/register", h.handleRegister)
	router.Post("/api/heartbeat", h.handleHeartbeat)
	router.Get("/api/ping", h.handlePing)

	return router
}

type registerRequest struct {
	DeviceID       string `json:"deviceId"`
	UserName       string `json:"userName"`
	TimeoutHours   int    `json:"timeoutHours"`
	EmergencyEmail string `json:"emergencyEmail"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.DeviceID == "" {
		h.respondError(w, http.StatusBadRequest, "Device ID required")
		return
	}

	if req.TimeoutHours <= 0 {
		req.TimeoutHours = defaultTimeoutHours
	}

	user := &models.User{
		DeviceID:     req.DeviceID,
		UserName:     req.UserName,
		TimeoutHours: req.TimeoutHours,
	}

	// An omitted contact keeps the stored one (nil skips the column).
	if req.EmergencyEmail != "" {
		encrypted, err := h.cipher.Encrypt(req.EmergencyEmail)
		if err != nil {
			h.logger.Error("failed to encrypt emergency contact", zap.Error(err))
			h.respondError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		user.EncryptedContact = &encrypted
	}

	if err := h.users.Upsert(r.Context(), user); err != nil {
		h.logger.Error("failed to upsert user", zap.String("device_id", req.DeviceID), zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	if err := h.status.SetPresence(r.Context(), user.DeviceID, user.TimeoutDuration()); err != nil {
		h.logger.Warn("failed to cache presence", zap.String("device_id", user.DeviceID), zap.Error(err))
	}

	h.logger.Info("register",
		zap.String("device_id", user.DeviceID),
		zap.String("user_name", user.UserName),
		zap.Int("timeout_hours", user.TimeoutHours),
	)

	h.respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "User configured",
	})
}

type heartbeatRequest struct {
	DeviceID string `json:"deviceId"`
}

type heartbeatResponse struct {
	Status        string    `json:"status"`
	LastHeartbeat time.Time `json:"lastHeartbeat"`
	WasAlerting   bool      `json:"wasAlerting"`
}

// handleHeartbeat trusts the positive liveness signal immediately: the
// alerting flag is cleared unconditionally, before and independent of the
// resolved email's fate. The flag reflects liveness, not notification
// delivery.
func (h *Handler) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.DeviceID == "" {
		h.respondError(w, http.StatusBadRequest, "Device ID required")
		return
	}

	wasAlerting, lastHeartbeat, err := h.users.RecordHeartbeat(r.Context(), req.DeviceID, time.Now())
	if errors.Is(err, repositories.ErrNotFound) {
		h.respondError(w, http.StatusNotFound, "User not registered")
		return
	}
	if err != nil {
		h.logger.Error("failed to record heartbeat", zap.String("device_id", req.DeviceID), zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	h.logger.Info("heartbeat",
		zap.String("device_id", req.DeviceID),
		zap.Bool("was_alerting", wasAlerting),
	)

	user, err := h.users.GetByDeviceID(r.Context(), req.DeviceID)
	if err == nil {
		if err := h.status.SetPresence(r.Context(), user.DeviceID, user.TimeoutDuration()); err != nil {
			h.logger.Warn("failed to cache presence", zap.String("device_id", user.DeviceID), zap.Error(err))
		}

		if wasAlerting {
			h.dispatchResolved(user)
		}
	} else {
		h.logger.Warn("failed to reload user after heartbeat", zap.String("device_id", req.DeviceID), zap.Error(err))
	}

	h.respondJSON(w, http.StatusOK, heartbeatResponse{
		Status:        "ok",
		LastHeartbeat: lastHeartbeat,
		WasAlerting:   wasAlerting,
	})
}

// dispatchResolved sends the recovery email best-effort in the background.
// Its failure must not affect the response or the already-cleared state;
// the outcome is only logged.
func (h *Handler) dispatchResolved(user *models.User) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), resolvedSendTimeout)
		defer cancel()

		if !h.notifier.Send(ctx, user, notifier.KindResolved, 0) {
			h.logger.Warn("resolved email dispatch failed",
				zap.String("device_id", user.DeviceID),
			)
		}
	}()
}

type pingResponse struct {
	Status  string                `json:"status"`
	Message string                `json:"message"`
	Monitor *models.MonitorStatus `json:"monitor"`
	Uptime  float64               `json:"uptime"`
}

func (h *Handler) handlePing(w http.ResponseWriter, r *http.Request) {
	status, err := h.status.GetStatus(r.Context())
	if err != nil {
		h.logger.Warn("failed to read monitor status", zap.Error(err))
		status = &models.MonitorStatus{IsActive: false, Timestamp: time.Now()}
	}

	h.respondJSON(w, http.StatusOK, pingResponse{
		Status:  "ok",
		Message: "Pong from Vigil server!",
		Monitor: status,
		Uptime:  time.Since(h.started).Seconds(),
	})
}

func (h *Handler) respondJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("failed to write response", zap.Int("code", code), zap.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, code int, msg string) {
	h.respondJSON(w, code, map[string]string{"error": msg})
}
