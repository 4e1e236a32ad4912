package session

import (
	"sync"

	"github.com/rs/zerolog/log"

	"cardbot/logging"
)

var registryLogger = log.With().Str("logger_name", "session::registry").Logger()

// Registry is the process-wide map of active sessions keyed by game
// id, plus the set of ephemeral destination channels used to fast-test
// whether an arbitrary incoming interaction belongs to an active game.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*State
	channels map[string]string // destination channel id -> game id
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*State),
		channels: make(map[string]string),
	}
}

// GetOrCreate returns the session for the game id, creating it when
// absent. Atomic: concurrent callers always see the same instance.
func (r *Registry) GetOrCreate(gameID string) *State {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.sessions[gameID]
	if !ok {
		st = newState(gameID)
		r.sessions[gameID] = st
	}
	return st
}

// Get returns the session for the game id without creating one.
func (r *Registry) Get(gameID string) (*State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.sessions[gameID]
	return st, ok
}

// AttachPlayer upserts the player into the session (created if
// needed), registers the player's destination channel, and enqueues
// the initial request tagged with the player's id. The outbound queue
// is created lazily on the first attachment.
func (r *Registry) AttachPlayer(gameID string, player *PlayerState, initial OutboundRequest) *State {
	st := r.GetOrCreate(gameID)

	st.Lock()
	st.attachPlayerLocked(player)
	queue := st.outbound
	st.Unlock()

	if player.DestinationChannel != "" {
		r.RegisterChannel(player.DestinationChannel, gameID)
	}

	initial.OriginatorID = player.PlayerID
	queue.Push(initial)

	registryLogger.Info().
		Str(logging.GameIDKey, gameID).
		Str(logging.PlayerIDKey, player.PlayerID).
		Msg("Player attached to session")
	return st
}

// Remove deletes the session entry. The caller must have confirmed the
// session reached Closed and finished connection teardown.
func (r *Registry) Remove(gameID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, gameID)
}

// RegisterChannel records a destination channel as belonging to a game.
func (r *Registry) RegisterChannel(channelID string, gameID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[channelID] = gameID
}

// UnregisterChannel removes a destination channel from the ephemeral set.
func (r *Registry) UnregisterChannel(channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.channels, channelID)
}

// GameForChannel reports which active game, if any, a channel belongs to.
func (r *Registry) GameForChannel(channelID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	gameID, ok := r.channels[channelID]
	return gameID, ok
}

// ActiveGames lists the game ids of all registered sessions.
func (r *Registry) ActiveGames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	games := make([]string, 0, len(r.sessions))
	for gameID := range r.sessions {
		games = append(games, gameID)
	}
	return games
}
