package session

import (
	"context"

	"cardbot/backend"
)

// Adapter is the per-game contract consumed by the generic session
// engine. Game modules supply the request-kind vocabulary, their
// playing-stage values, connection open/close, and the reactions that
// turn backend state into chat messages. The engine owns everything
// else: the loop, the registry, progress bookkeeping and teardown.
type Adapter interface {
	// GameType keys the adapter in the manager and in match subjects.
	GameType() string

	// ValidRequestKinds lists the in-game request kinds the backend
	// accepts for this game. Requests with other kinds are dropped.
	ValidRequestKinds() []string

	// InitialRequestKind is enqueued once per player on attachment.
	InitialRequestKind() string

	// CloseRequestKind is the kind whose relay shuts the session down.
	CloseRequestKind() string

	// PlayingStates are the game-specific stages, each strictly between
	// ProgressStarting and ProgressEnding.
	PlayingStates() []Progress

	// OpenConnection establishes the session's backend connection,
	// polling until the backend is reachable or the context is done.
	OpenConnection(ctx context.Context, gameID string) (backend.Conn, error)

	// CloseConnection sends the close frame during teardown.
	CloseConnection(conn backend.Conn, reason string) error

	// OnProgressChange runs under the session lock when a broadcast
	// moves the session to a new stage, before the stage is committed.
	OnProgressChange(st *State, frame *Frame) error

	// OnSameProgress runs under the session lock for a broadcast at the
	// current stage, before the snapshot is merged.
	OnSameProgress(st *State, frame *Frame) error
}

// Messenger is the platform messaging boundary the engine needs during
// teardown and that adapters use from their reactions.
type Messenger interface {
	SendMessage(ctx context.Context, channelID string, content string) error
	DeleteChannel(ctx context.Context, channelID string) error
}

// SnapshotCache mirrors the latest accepted broadcast per game so
// read-side surfaces never touch a live session loop.
type SnapshotCache interface {
	Save(ctx context.Context, gameID string, frame []byte) error
	Remove(ctx context.Context, gameID string) error
}

// ClosedMarker remembers recently closed games so late broadcasts are
// dropped quietly instead of logged as routing misses.
type ClosedMarker interface {
	MarkClosed(gameID string)
	WasClosed(gameID string) bool
}
