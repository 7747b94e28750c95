package token

import (
	"encoding/json"
	"errors"

	"golang.org/x/oauth2"

	"github.com/taskwire/taskwire/internal/logging"
)

// Store persists the session credential redundantly across a durable and
// an ephemeral backend. Writes go to both; reads try the durable backend
// first and fall back to the ephemeral one. Backend failures degrade to
// "session not persisted": they are logged and never propagated.
type Store struct {
	durable   Backend
	ephemeral Backend
	scope     string
	log       *logging.Logger
}

// NewStore creates a credential store for the given backend scope.
func NewStore(durable, ephemeral Backend, scope string, log *logging.Logger) *Store {
	return &Store{
		durable:   durable,
		ephemeral: ephemeral,
		scope:     scope,
		log:       log.Sub("token"),
	}
}

// Get returns the stored value for key, or "" and false on a miss.
func (s *Store) Get(key string) (string, bool) {
	if v, err := s.durable.Get(key); err == nil {
		return v, true
	} else if !errors.Is(err, ErrNotFound) {
		s.log.Warn().Err(err).Str("key", key).Msg("durable credential read failed")
	}

	if v, err := s.ephemeral.Get(key); err == nil {
		return v, true
	} else if !errors.Is(err, ErrNotFound) {
		s.log.Warn().Err(err).Str("key", key).Msg("ephemeral credential read failed")
	}

	return "", false
}

// Set writes the value to both backends.
func (s *Store) Set(key, value string) {
	if err := s.durable.Set(key, value); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("durable credential write failed")
	}
	if err := s.ephemeral.Set(key, value); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("ephemeral credential write failed")
	}
}

// Remove deletes the key from both backends.
func (s *Store) Remove(key string) {
	if err := s.durable.Remove(key); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("durable credential remove failed")
	}
	if err := s.ephemeral.Remove(key); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("ephemeral credential remove failed")
	}
}

// PurgeForeign removes every stored credential whose embedded scope does
// not match the active backend scope. This prevents a stale credential
// from a different environment leaking into a new session.
func (s *Store) PurgeForeign() {
	for _, backend := range []Backend{s.durable, s.ephemeral} {
		keys, err := backend.Keys()
		if err != nil {
			s.log.Warn().Err(err).Msg("credential key scan failed")
			continue
		}
		for _, k := range keys {
			if !IsCredentialKey(k) {
				continue
			}
			if keyScope(k) == s.scope {
				continue
			}
			s.log.Info().Str("key", k).Msg("purging foreign-scope credential")
			if err := backend.Remove(k); err != nil {
				s.log.Warn().Err(err).Str("key", k).Msg("credential purge failed")
			}
		}
	}
}

// SaveToken persists the bearer credential for the active scope.
func (s *Store) SaveToken(tok *oauth2.Token) {
	data, err := json.Marshal(tok)
	if err != nil {
		s.log.Warn().Err(err).Msg("credential serialization failed")
		return
	}
	s.Set(CredentialKey(s.scope), string(data))
}

// LoadToken returns the persisted credential for the active scope, or
// nil and false when none is stored or the stored value is unreadable.
func (s *Store) LoadToken() (*oauth2.Token, bool) {
	raw, ok := s.Get(CredentialKey(s.scope))
	if !ok {
		return nil, false
	}
	var tok oauth2.Token
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		s.log.Warn().Err(err).Msg("stored credential is unreadable, discarding")
		s.Remove(CredentialKey(s.scope))
		return nil, false
	}
	return &tok, true
}

// ClearToken removes the persisted credential for the active scope.
func (s *Store) ClearToken() {
	s.Remove(CredentialKey(s.scope))
}

// TokenSource returns an oauth2.TokenSource backed by the stored
// credential, or nil when no credential is available.
func (s *Store) TokenSource() oauth2.TokenSource {
	tok, ok := s.LoadToken()
	if !ok {
		return nil
	}
	return oauth2.StaticTokenSource(tok)
}
