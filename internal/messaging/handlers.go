// internal/messaging/handlers.go

package messaging

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/jootiya/jootiya-backend/internal/auth"
	"github.com/jootiya/jootiya-backend/internal/common/utils"
)

type Handler struct {
	service       Service
	hub           *Hub
	maxUploadSize int64
	logger        zerolog.Logger
}

func NewHandler(service Service, hub *Hub, maxUploadSize int64, logger zerolog.Logger) *Handler {
	return &Handler{
		service:       service,
		hub:           hub,
		maxUploadSize: maxUploadSize,
		logger:        logger,
	}
}

// HandleWebSocket upgrades an authenticated request to a realtime connection
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	// Upgrade writes its own error response
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := NewClient(h.hub, conn, userID, h.service, h.logger)
	if !h.hub.Register(client) {
		conn.Close()
		return
	}
	client.Start()
}

// GetConversations lists the caller's conversations
func (h *Handler) GetConversations(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.GetUserIDFromContext(r.Context())

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	conversations, err := h.service.ListConversations(r.Context(), userID, limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}

	utils.SuccessResponse(w, conversations, http.StatusOK)
}

// GetMessages returns the whole history of a conversation, oldest first
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.GetUserIDFromContext(r.Context())
	conversationID := mux.Vars(r)["id"]

	messages, err := h.service.ListMessages(r.Context(), userID, conversationID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	utils.SuccessResponse(w, messages, http.StatusOK)
}

// SendMessage inserts a message row
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.GetUserIDFromContext(r.Context())
	conversationID := mux.Vars(r)["id"]

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	message, err := h.service.SendMessage(r.Context(), userID, conversationID, &req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	utils.SuccessResponse(w, message, http.StatusCreated)
}

// MarkRead marks the other party's unread messages as read
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.GetUserIDFromContext(r.Context())
	conversationID := mux.Vars(r)["id"]

	var req MarkReadRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.ErrorResponse(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	if err := utils.ValidateStruct(&req); err != nil {
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	flipped, err := h.service.MarkRead(r.Context(), userID, conversationID, req.MessageIDs)
	if err != nil {
		h.writeError(w, err)
		return
	}

	utils.SuccessResponse(w, flipped, http.StatusOK)
}

// UploadMedia stores the multipart "file" field and returns its public URL
func (h *Handler) UploadMedia(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.GetUserIDFromContext(r.Context())

	// Leave room for multipart framing
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+1<<20)
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		utils.ErrorResponse(w, "File too large or malformed upload", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		utils.ErrorResponse(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer file.Close()

	result, err := h.service.UploadMedia(r.Context(), userID, header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		h.writeError(w, err)
		return
	}

	utils.SuccessResponse(w, result, http.StatusCreated)
}

// DeleteMedia removes an object the caller uploaded
func (h *Handler) DeleteMedia(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.GetUserIDFromContext(r.Context())

	objectURL := r.URL.Query().Get("url")
	if objectURL == "" {
		utils.ErrorResponse(w, "url is required", http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteMedia(r.Context(), userID, objectURL); err != nil {
		h.writeError(w, err)
		return
	}

	utils.MessageResponse(w, "Upload deleted", http.StatusOK)
}

// RegisterPushToken registers a push notification token
func (h *Handler) RegisterPushToken(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.GetUserIDFromContext(r.Context())

	var req PushTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.service.RegisterPushToken(r.Context(), userID, &req); err != nil {
		h.writeError(w, err)
		return
	}

	utils.MessageResponse(w, "Push token registered", http.StatusOK)
}

// HealthCheck reports liveness and the number of open realtime connections
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	utils.SuccessResponse(w, map[string]interface{}{
		"status":      "healthy",
		"connections": h.hub.GetActiveConnections(),
	}, http.StatusOK)
}

// writeError maps domain errors to status codes
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrConversationNotFound):
		utils.ErrorResponse(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrNotParticipant), errors.Is(err, ErrForeignObject):
		utils.ErrorResponse(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrInvalidKind), errors.Is(err, ErrEmptyMessage),
		errors.Is(err, ErrMediaRequired), errors.Is(err, ErrUnexpectedMedia):
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrFileTooLarge):
		utils.ErrorResponse(w, err.Error(), http.StatusRequestEntityTooLarge)
	case errors.Is(err, ErrFileTypeNotAllowed):
		utils.ErrorResponse(w, err.Error(), http.StatusUnsupportedMediaType)
	default:
		h.logger.Error().Err(err).Msg("Request failed")
		utils.ErrorResponse(w, "Internal server error", http.StatusInternalServerError)
	}
}
