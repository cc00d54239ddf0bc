// Package httpapi exposes the gateway's HTTP surface: the native agent
// stream, the OpenAI-compatible completion stream, the document loader,
// and the observability endpoints.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter creates a new HTTP router.
func NewRouter(handler *Handler, apiKeys []string) *mux.Router {
	router := mux.NewRouter()
	router.Use(RequestIDMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(RecoveryMiddleware)
	router.Use(mux.MiddlewareFunc(AuthMiddleware(apiKeys)))

	router.HandleFunc("/api/agent", handler.HandleAgent).Methods(http.MethodPost)
	router.HandleFunc("/v1/chat/completions", handler.HandleChatCompletions).Methods(http.MethodPost)
	router.HandleFunc("/process", handler.HandleProcess).Methods(http.MethodPut)
	router.HandleFunc("/api/processes", handler.HandleProcesses).Methods(http.MethodGet)
	router.HandleFunc("/health", handler.HandleHealth).Methods(http.MethodGet)

	return router
}
