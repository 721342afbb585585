// internal/messaging/routes.go

package messaging

import (
	"net/http"

	"github.com/gorilla/mux"
)

// AuthMiddleware wraps handlers that need an authenticated caller
type AuthMiddleware func(http.Handler) http.Handler

const conversationPath = "/conversations/{id:[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}}"

// RegisterRoutes registers all chat routes
func RegisterRoutes(router *mux.Router, handler *Handler, authMiddleware AuthMiddleware) {
	// WebSocket endpoint - requires authentication
	router.Handle("/ws", authMiddleware(http.HandlerFunc(handler.HandleWebSocket))).Methods("GET")

	// REST API endpoints
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(mux.MiddlewareFunc(authMiddleware))

	// Conversations
	api.HandleFunc("/conversations", handler.GetConversations).Methods("GET")

	// Messages
	api.HandleFunc(conversationPath+"/messages", handler.GetMessages).Methods("GET")
	api.HandleFunc(conversationPath+"/messages", handler.SendMessage).Methods("POST")
	api.HandleFunc(conversationPath+"/read", handler.MarkRead).Methods("POST")

	// Media
	api.HandleFunc("/uploads", handler.UploadMedia).Methods("POST")
	api.HandleFunc("/uploads", handler.DeleteMedia).Methods("DELETE")

	// Push tokens
	api.HandleFunc("/push-tokens", handler.RegisterPushToken).Methods("POST")
}

// RegisterHealthCheck exposes the unauthenticated liveness probe
func RegisterHealthCheck(router *mux.Router, handler *Handler) {
	router.HandleFunc("/health", handler.HealthCheck).Methods("GET")
}
