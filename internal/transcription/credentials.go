package transcription

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrCredentialRequired is returned when no API key is configured or entered.
var ErrCredentialRequired = errors.New("speech-to-text API key is required")

// Credentials supplies the bearer credential for the service.
type Credentials interface {
	APIKey(ctx context.Context) (string, error)
}

// StaticKey is a key taken from configuration.
type StaticKey string

// APIKey returns the configured key or ErrCredentialRequired.
func (k StaticKey) APIKey(context.Context) (string, error) {
	key := strings.TrimSpace(string(k))
	if key == "" {
		return "", ErrCredentialRequired
	}
	return key, nil
}

// PromptFunc asks the operator for a key.
type PromptFunc func(ctx context.Context) (string, error)

// SessionCredentials returns a preset key, otherwise prompts once and caches the answer
// for the life of the process. Nothing is written to disk.
type SessionCredentials struct {
	mu     sync.Mutex
	key    string
	prompt PromptFunc
}

// NewSessionCredentials creates a provider seeded with preset (may be empty).
// prompt may be nil, in which case a missing key yields ErrCredentialRequired.
func NewSessionCredentials(preset string, prompt PromptFunc) *SessionCredentials {
	return &SessionCredentials{
		key:    strings.TrimSpace(preset),
		prompt: prompt,
	}
}

// APIKey returns the cached key, prompting when none is cached yet.
func (s *SessionCredentials) APIKey(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key != "" {
		return s.key, nil
	}
	if s.prompt == nil {
		return "", ErrCredentialRequired
	}

	key, err := s.prompt(ctx)
	if err != nil {
		return "", err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrCredentialRequired
	}
	s.key = key
	return key, nil
}

// Set caches a key entered by the operator.
func (s *SessionCredentials) Set(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = strings.TrimSpace(key)
}

// Configured reports whether a key is cached.
func (s *SessionCredentials) Configured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key != ""
}

// Available reports whether APIKey has a key or a prompt to obtain one.
func (s *SessionCredentials) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key != "" || s.prompt != nil
}

// Clear forgets the cached key.
func (s *SessionCredentials) Clear() {
	s.Set("")
}
