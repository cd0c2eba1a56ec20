package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Event channel
	mux.HandleFunc(s.channelPath(), s.app.Hub.HandleWebSocket)

	// Task submission and status
	mux.HandleFunc("/highlight/process_async", s.app.TaskHandler.ProcessAsyncHandler)
	mux.HandleFunc("/highlight/task_status/", s.app.TaskHandler.TaskStatusHandler)

	// Pages and fragments
	mux.HandleFunc("/highlight/results", s.app.PageHandler.ResultsHandler)
	mux.HandleFunc("/highlight/modal/", s.app.PageHandler.ModalHandler)

	// System
	mux.HandleFunc("/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)

	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}

func (s *Server) channelPath() string {
	path := s.app.Config.Channel.Path
	if path == "" {
		return "/ws"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}
