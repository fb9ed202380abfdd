// Package api is the REST facade: token issuance, room creation, history
// retrieval. The realtime traffic never goes through here.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"voynich/auth"
	"voynich/domain"
	apperrors "voynich/errors"
	"voynich/services"
)

const authHeader = "x-auth-token"

// maxRoomTTL caps how long a room may live. Requests beyond it are rejected,
// not clamped.
const maxRoomTTL = 24 * time.Hour

type Handler struct {
	log      *slog.Logger
	service  services.IChatService
	issuer   *auth.TokenIssuer
	validate *validator.Validate
}

func NewHandler(log *slog.Logger, service services.IChatService, issuer *auth.TokenIssuer) *Handler {
	return &Handler{log: log, service: service, issuer: issuer, validate: validator.New()}
}

// Register mounts the REST routes on the given router.
func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/api/temp-token", h.TempToken).Methods(http.MethodPost)
	router.Handle("/api/chats", h.authenticated(h.CreateChat)).Methods(http.MethodPost)
	router.Handle("/api/chats/{id}", h.authenticated(h.GetChat)).Methods(http.MethodGet)
}

type tempTokenResponse struct {
	Token string `json:"token"`
}

// TempToken hands out the short-lived token gating room creation. This is the
// only unauthenticated endpoint.
func (h *Handler) TempToken(w http.ResponseWriter, _ *http.Request) {
	token, err := h.issuer.TempToken()
	if err != nil {
		h.internalError(w, "issuing temp token", err)
		return
	}
	h.writeJSON(w, http.StatusOK, tempTokenResponse{Token: token})
}

type createChatRequest struct {
	Duration string `json:"duration" validate:"required"`
}

type createChatResponse struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CreateChat creates a room living for the requested duration and returns a
// chat token that dies with it.
func (h *Handler) CreateChat(w http.ResponseWriter, r *http.Request) {
	var request createChatRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validate.Struct(request); err != nil {
		h.writeError(w, http.StatusBadRequest, "duration is required")
		return
	}
	ttl, err := time.ParseDuration(request.Duration)
	if err != nil || ttl <= 0 || ttl > maxRoomTTL {
		h.writeError(w, http.StatusBadRequest, "duration must be a positive Go duration up to 24h")
		return
	}

	room, err := h.service.CreateRoom(r.Context(), ttl)
	if err != nil {
		h.internalError(w, "creating room", err)
		return
	}
	token, err := h.issuer.ChatToken(room.ID, ttl)
	if err != nil {
		h.internalError(w, "issuing chat token", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, createChatResponse{
		ID:        string(room.ID),
		Token:     token,
		ExpiresAt: room.ExpiresAt,
	})
}

type chatResponse struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"createdAt"`
	ExpiresAt time.Time         `json:"expiresAt"`
	Messages  []messageResponse `json:"messages"`
}

type messageResponse struct {
	ID         string              `json:"id"`
	Sender     string              `json:"sender"`
	Content    string              `json:"content"`
	Attachment *attachmentResponse `json:"attachment,omitempty"`
	CreatedAt  time.Time           `json:"createdAt"`
}

type attachmentResponse struct {
	Name      string `json:"name"`
	MediaType string `json:"mediaType"`
	Data      []byte `json:"data"`
}

// GetChat returns the room and its opened history. The caller's token must be
// bound to this very room; a temp token or a token for another room is
// rejected before the store is touched.
func (h *Handler) GetChat(w http.ResponseWriter, r *http.Request) {
	roomID := domain.RoomID(mux.Vars(r)["id"])
	claims := claimsFrom(r)
	if claims == nil || claims.ChatID != string(roomID) {
		h.writeError(w, http.StatusForbidden, "token not valid for this chat")
		return
	}

	room, messages, err := h.service.History(r.Context(), roomID)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrRoomNotFound):
			h.writeError(w, http.StatusNotFound, "chat not found")
		default:
			h.internalError(w, "loading history", err)
		}
		return
	}

	response := chatResponse{
		ID:        string(room.ID),
		CreatedAt: room.CreatedAt,
		ExpiresAt: room.ExpiresAt,
		Messages:  make([]messageResponse, 0, len(messages)),
	}
	for _, msg := range messages {
		item := messageResponse{
			ID:        msg.ID.String(),
			Sender:    msg.Sender,
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
		}
		if msg.Attachment != nil {
			item.Attachment = &attachmentResponse{
				Name:      msg.Attachment.Name,
				MediaType: msg.Attachment.MediaType,
				Data:      msg.Attachment.Data,
			}
		}
		response.Messages = append(response.Messages, item)
	}
	h.writeJSON(w, http.StatusOK, response)
}

type contextKey struct{}

func withClaims(ctx context.Context, claims *auth.ChatClaims) context.Context {
	return context.WithValue(ctx, contextKey{}, claims)
}

func claimsFrom(r *http.Request) *auth.ChatClaims {
	claims, _ := r.Context().Value(contextKey{}).(*auth.ChatClaims)
	return claims
}

// authenticated rejects requests lacking a valid token and stashes the claims
// for the handler.
func (h *Handler) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(authHeader)
		if token == "" {
			h.writeError(w, http.StatusUnauthorized, "missing "+authHeader+" header")
			return
		}
		claims, err := h.issuer.Validate(token)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid token")
			return
		}
		next(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn("Failed to write response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Error: message})
}

func (h *Handler) internalError(w http.ResponseWriter, action string, err error) {
	h.log.Error("Request failed", "action", action, "error", err)
	h.writeError(w, http.StatusInternalServerError, "internal error")
}
