// README: Per-session autocomplete; answers to superseded requests are dropped.
package maps

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"googlemaps.github.io/maps"
)

var ErrStale = errors.New("autocomplete result superseded by a newer request")

const (
	minPredictInput = 2
	// sessionIdleTTL outlives the provider's session token lifetime.
	sessionIdleTTL = 5 * time.Minute
)

type Predictor interface {
	Predict(ctx context.Context, input string, token maps.PlaceAutocompleteSessionToken) ([]Prediction, error)
}

type session struct {
	gen      uint64
	token    maps.PlaceAutocompleteSessionToken
	lastSeen time.Time
}

type Autocompleter struct {
	predictor Predictor

	mu       sync.Mutex
	sessions map[string]*session
	now      func() time.Time
}

func NewAutocompleter(p Predictor) *Autocompleter {
	return &Autocompleter{predictor: p, sessions: make(map[string]*session), now: time.Now}
}

// Predict answers input for sessionKey. When a later call for the same session starts
// before this one returns, this one yields ErrStale.
func (a *Autocompleter) Predict(ctx context.Context, sessionKey, input string) ([]Prediction, error) {
	input = strings.TrimSpace(input)
	if sessionKey == "" {
		return nil, ErrBadRequest
	}
	gen, token := a.begin(sessionKey)
	if len([]rune(input)) < minPredictInput {
		return []Prediction{}, nil
	}

	out, err := a.predictor.Predict(ctx, input, token)
	if !a.current(sessionKey, gen) {
		return nil, ErrStale
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// End forgets the session once the user picks a place.
func (a *Autocompleter) End(sessionKey string) {
	a.mu.Lock()
	delete(a.sessions, sessionKey)
	a.mu.Unlock()
}

func (a *Autocompleter) begin(key string) (uint64, maps.PlaceAutocompleteSessionToken) {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	for k, s := range a.sessions {
		if now.Sub(s.lastSeen) > sessionIdleTTL {
			delete(a.sessions, k)
		}
	}
	s, ok := a.sessions[key]
	if !ok {
		s = &session{token: maps.NewPlaceAutocompleteSessionToken()}
		a.sessions[key] = s
	}
	s.gen++
	s.lastSeen = now
	return s.gen, s.token
}

func (a *Autocompleter) current(key string, gen uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sessions[key]
	return ok && s.gen == gen
}
