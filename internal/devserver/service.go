package devserver

import (
	"log"
	"net/http"
)

// Service owns the hub and the connection handler.
type Service struct {
	hub     *Hub
	handler *Handler
}

// NewService creates a new dev server service. historyLimit bounds the
// history replayed on join; a nil store disables history.
func NewService(store MessageStore, historyLimit int) *Service {
	hub := NewHub()
	return &Service{
		hub:     hub,
		handler: NewHandler(hub, store, historyLimit),
	}
}

// Handler returns the connection handler.
func (s *Service) Handler() *Handler {
	return s.handler
}

// Hub returns the hub.
func (s *Service) Hub() *Hub {
	return s.hub
}

// ServeHTTP upgrades and serves one chat connection.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := s.handler.HandleConnection(w, r); err != nil {
		// The upgrader already replied with an HTTP error.
		log.Printf("Failed to attach client: %v", err)
	}
}

// ClientCount returns the number of connected clients.
func (s *Service) ClientCount() int {
	return s.hub.ClientCount()
}

// Close closes all connections.
func (s *Service) Close() {
	s.hub.Close()
}
