package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pavelanni/exambot/internal/model"
	"github.com/pavelanni/exambot/internal/vk"
)

const maxBodyBytes = 1 << 20

// Engine turns one inbound message into replies.
type Engine interface {
	HandleMessage(ctx context.Context, userID, text string) []model.Reply
}

// Sender delivers a reply to a user.
type Sender interface {
	Send(ctx context.Context, userID string, reply model.Reply) error
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	engine Engine
	sender Sender
	config model.BotConfig
}

// New creates a new Handler.
func New(engine Engine, sender Sender, cfg model.BotConfig) *Handler {
	return &Handler{engine: engine, sender: sender, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.handleHealth)
	r.Get("/health", h.handleHealth)
	r.Post("/webhook", h.handleWebhook)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		slog.Error("write health response", "error", err)
	}
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if id := middleware.GetReqID(ctx); id != "" {
		ctx = model.ContextWithRequestID(ctx, id)
	}
	log := slog.With("request_id", model.RequestIDFromContext(ctx))

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		log.Warn("read webhook body", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	ev, err := vk.ParseEvent(body)
	if h.config.Secret != "" && ev.Secret != h.config.Secret && err == nil {
		log.Warn("webhook secret mismatch")
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	switch {
	case errors.Is(err, vk.ErrNoSender):
		log.Warn("message without sender, ignoring")
		writeOK(w)
		return
	case errors.Is(err, vk.ErrUnsupported):
		log.Debug("ignoring callback", "error", err)
		writeOK(w)
		return
	case err != nil:
		log.Warn("malformed callback", "error", err)
		writeOK(w)
		return
	}

	if ev.Kind == model.EventVerification {
		log.Info("confirmation requested")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, h.config.ConfirmationCode)
		return
	}

	log.Info("message received", "user_id", ev.UserID, "text_len", len(ev.Text))
	replies := h.engine.HandleMessage(ctx, ev.UserID, ev.Text)

	// Delivery outlives the request; failures do not undo the saved turn.
	sendCtx := context.WithoutCancel(ctx)
	for _, reply := range replies {
		if err := h.sender.Send(sendCtx, ev.UserID, reply); err != nil {
			log.Error("send reply", "user_id", ev.UserID, "error", err)
		}
	}
	writeOK(w)
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "ok")
}
