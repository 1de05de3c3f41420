package main

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/tickget/roomsession/go/internal/room/session"
)

// headlessShell is the Shell implementation for running the session agent
// without a browsing context. Prompts auto-confirm, notices and navigations
// are logged, and the last navigation target is kept for the status endpoint.
type headlessShell struct {
	navKind session.NavigationKind

	mu       sync.Mutex
	location string
	windows  []string
}

func newHeadlessShell(navKind session.NavigationKind) *headlessShell {
	return &headlessShell{navKind: navKind}
}

func (s *headlessShell) NavigationKind() session.NavigationKind {
	if s.navKind == "" {
		return session.NavigationNavigate
	}
	return s.navKind
}

func (s *headlessShell) PushHistoryTrap() {
	log.Debug().Msg("history trap armed")
}

func (s *headlessShell) Confirm(prompt string) bool {
	log.Info().Str("prompt", prompt).Msg("auto-confirming prompt")
	return true
}

func (s *headlessShell) Alert(message string) {
	log.Info().Str("message", message).Msg("notice")
}

func (s *headlessShell) Navigate(dest string) {
	s.mu.Lock()
	s.location = dest
	s.mu.Unlock()
	log.Info().Str("dest", dest).Msg("navigate")
}

func (s *headlessShell) OpenWindow(dest string) error {
	s.mu.Lock()
	s.windows = append(s.windows, dest)
	s.mu.Unlock()
	log.Info().Str("dest", dest).Msg("open window")
	return nil
}

func (s *headlessShell) Location() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.location
}
