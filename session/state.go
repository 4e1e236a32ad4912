package session

import (
	"encoding/json"
	"sync"
	"time"
)

// PlayerState is one player's slice of a session: presentation
// metadata assigned at match time and refreshed on every backend
// resync, plus the opaque game-specific body owned by the adapter.
type PlayerState struct {
	PlayerID    string
	DisplayName string
	AvatarURL   string
	Order       int
	GuildID     string

	// DestinationChannel is where chat messages for this player are
	// delivered. Empty until the platform-side channel exists; resolved
	// lazily on snapshot merges.
	DestinationChannel string

	// Data is the game-specific state (hand, bets). The engine never
	// reads it.
	Data json.RawMessage
}

// ChannelResolver resolves a player's destination channel from the
// guilds that have members in the session. Returns empty when the
// channel does not exist yet.
type ChannelResolver func(gameID string, playerID string, guilds []string) string

// State is the authoritative local mirror of one game instance. All
// mutation happens under the state lock; the one exception is the
// outbound queue, which is safe on its own so interaction handlers can
// enqueue without contending with broadcast handling.
type State struct {
	GameID string

	lock       sync.Mutex
	gameType   string
	progress   Progress
	players    map[string]*PlayerState
	guilds     map[string]struct{}
	outbound   *OutboundQueue
	lastActive time.Time

	// loopRunning guards against a second loop for the same game id.
	loopRunning bool
}

func newState(gameID string) *State {
	s := &State{
		GameID:     gameID,
		progress:   ProgressNotAvailable,
		players:    make(map[string]*PlayerState),
		guilds:     make(map[string]struct{}),
		lastActive: time.Now(),
	}
	return s
}

// Lock serializes state mutation and the handle-one-broadcast critical
// section against same-session interaction handlers.
func (s *State) Lock() {
	s.lock.Lock()
}

func (s *State) Unlock() {
	s.lock.Unlock()
}

// GameType is set on the first player attachment and never changes
// afterwards. Bus broadcasts can race the loop startup, so reads take
// the lock like every other field.
func (s *State) GameType() string {
	s.Lock()
	defer s.Unlock()
	return s.gameType
}

// SetGameType records which game the session belongs to.
func (s *State) SetGameType(gameType string) {
	s.Lock()
	defer s.Unlock()
	s.gameType = gameType
}

func (s *State) Progress() Progress {
	s.Lock()
	defer s.Unlock()
	return s.progress
}

// ProgressLocked reads the progress under an already-held lock.
func (s *State) ProgressLocked() Progress {
	return s.progress
}

// AdvanceLocked moves progress forward. Returns false when next is not
// ahead of the current stage; progress never regresses or re-enters an
// earlier stage.
func (s *State) AdvanceLocked(next Progress) bool {
	if next <= s.progress {
		return false
	}
	s.progress = next
	return true
}

// TouchLocked records backend activity for the idle watchdog.
func (s *State) TouchLocked() {
	s.lastActive = time.Now()
}

func (s *State) LastActive() time.Time {
	s.Lock()
	defer s.Unlock()
	return s.lastActive
}

// Outbound returns the session's queue, which exists only after the
// first player attachment.
func (s *State) Outbound() *OutboundQueue {
	s.Lock()
	defer s.Unlock()
	return s.outbound
}

func (s *State) attachPlayerLocked(player *PlayerState) {
	// Replace on conflict.
	s.players[player.PlayerID] = player
	if player.GuildID != "" {
		s.guilds[player.GuildID] = struct{}{}
	}
	if s.outbound == nil {
		s.outbound = NewOutboundQueue()
	}
}

// Player returns a copy of one player's state.
func (s *State) Player(playerID string) (PlayerState, bool) {
	s.Lock()
	defer s.Unlock()
	return s.PlayerLocked(playerID)
}

// PlayerLocked is Player under an already-held lock, as in adapter
// reactions.
func (s *State) PlayerLocked(playerID string) (PlayerState, bool) {
	p, ok := s.players[playerID]
	if !ok {
		return PlayerState{}, false
	}
	return *p, true
}

// Players returns a copy of the roster.
func (s *State) Players() []PlayerState {
	s.Lock()
	defer s.Unlock()
	return s.PlayersLocked()
}

// PlayersLocked is Players under an already-held lock.
func (s *State) PlayersLocked() []PlayerState {
	players := make([]PlayerState, 0, len(s.players))
	for _, p := range s.players {
		players = append(players, *p)
	}
	return players
}

// Guilds returns the chat servers that have players in this session.
func (s *State) Guilds() []string {
	s.Lock()
	defer s.Unlock()
	return s.guildsLocked()
}

func (s *State) guildsLocked() []string {
	guilds := make([]string, 0, len(s.guilds))
	for g := range s.guilds {
		guilds = append(guilds, g)
	}
	return guilds
}

// MergeSnapshotLocked upserts the snapshot's player data into the
// local roster: unseen player ids get fresh PlayerState, known ids are
// refreshed, and an unset destination channel is resolved lazily from
// the guild set.
func (s *State) MergeSnapshotLocked(players []PlayerSnapshot, resolve ChannelResolver) {
	for _, snap := range players {
		p, ok := s.players[snap.PlayerID]
		if !ok {
			p = &PlayerState{PlayerID: snap.PlayerID}
			s.players[snap.PlayerID] = p
		}
		p.DisplayName = snap.DisplayName
		p.AvatarURL = snap.AvatarURL
		p.Order = snap.Order
		if snap.Data != nil {
			p.Data = snap.Data
		}
		if p.DestinationChannel == "" && resolve != nil {
			p.DestinationChannel = resolve(s.GameID, p.PlayerID, s.guildsLocked())
		}
	}
}
