package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardbot/session"
	"cardbot/util"
)

type recordingMessenger struct {
	mu       sync.Mutex
	messages []string
	channels []string
}

func (r *recordingMessenger) SendMessage(ctx context.Context, channelID string, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, text)
	r.channels = append(r.channels, channelID)
	return nil
}

func (r *recordingMessenger) DeleteChannel(ctx context.Context, channelID string) error {
	return nil
}

func (r *recordingMessenger) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

func TestRegisterAllCoversEveryGame(t *testing.T) {
	manager := session.NewManager(session.ManagerConfig{Timings: util.DefaultTimings()})
	RegisterAll(manager, nil, "ws://backend:9000/games", 500*time.Millisecond)

	types := []string{TypeBlackjack, TypeChasePig, TypeThirteen, TypeNinetyNine, TypeOldMaid, TypeRedDots}
	for _, gameType := range types {
		adapter, ok := manager.Adapter(gameType)
		require.True(t, ok, "Missing adapter for %s", gameType)
		assert.Equal(t, gameType, adapter.GameType())
		assert.Equal(t, "deal", adapter.InitialRequestKind())
		assert.Equal(t, "close", adapter.CloseRequestKind())
		assert.Contains(t, adapter.ValidRequestKinds(), adapter.InitialRequestKind())
		assert.Contains(t, adapter.ValidRequestKinds(), adapter.CloseRequestKind())

		require.NotEmpty(t, adapter.PlayingStates())
		for _, stage := range adapter.PlayingStates() {
			assert.True(t, stage > session.ProgressStarting && stage < session.ProgressEnding,
				"%s stage %d outside the playing range", gameType, stage)
		}
	}
}

func newTestState(players ...*session.PlayerState) *session.State {
	registry := session.NewRegistry()
	var st *session.State
	for _, p := range players {
		st = registry.AttachPlayer("g1", p, session.OutboundRequest{Kind: "deal"})
	}
	if st == nil {
		st = registry.GetOrCreate("g1")
	}
	return st
}

func TestOnProgressChangeAnnouncesStage(t *testing.T) {
	messenger := &recordingMessenger{}
	adapter := New(Config{
		Type:        TypeNinetyNine,
		InitialKind: "deal",
		CloseKind:   "close",
		StageLabels: map[session.Progress]string{
			StageTurns: "Play a card. Keep the total at 99 or below.",
		},
	}, messenger)

	st := newTestState(
		&session.PlayerState{PlayerID: "p1", DestinationChannel: "chan-1"},
		&session.PlayerState{PlayerID: "p2", DestinationChannel: "chan-2"},
	)

	err := adapter.OnProgressChange(st, &session.Frame{Kind: session.FrameSnapshot, Progress: StageTurns})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(messenger.sent()) == 2
	}, 2*time.Second, 5*time.Millisecond)
	for _, msg := range messenger.sent() {
		assert.Equal(t, "Play a card. Keep the total at 99 or below.", msg)
	}
}

func TestOnProgressChangeEndingAnnouncesResults(t *testing.T) {
	messenger := &recordingMessenger{}
	adapter := New(Config{Type: TypeBlackjack, InitialKind: "deal", CloseKind: "close"}, messenger)

	st := newTestState(&session.PlayerState{PlayerID: "p1", DestinationChannel: "chan-1"})

	frame := &session.Frame{
		Kind:     session.FrameEnding,
		Progress: session.ProgressEnding,
		Data:     []byte(`{"results":[{"playerId":"p1","displayName":"Ming","score":21,"payout":1.5}]}`),
	}
	require.NoError(t, adapter.OnProgressChange(st, frame))

	assert.Eventually(t, func() bool {
		return len(messenger.sent()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	msg := messenger.sent()[0]
	assert.Contains(t, msg, "blackjack game is over.")
	assert.Contains(t, msg, "Ming: 21 points (1.50)")
}

func TestOnSameProgressSendsTurnReminder(t *testing.T) {
	messenger := &recordingMessenger{}
	adapter := New(Config{Type: TypeOldMaid, InitialKind: "deal", CloseKind: "close"}, messenger)

	st := newTestState(&session.PlayerState{PlayerID: "p1", DisplayName: "Ming", DestinationChannel: "chan-1"})

	// A quiet resync without a turn marker produces no message.
	require.NoError(t, adapter.OnSameProgress(st, &session.Frame{Kind: session.FrameSnapshot, Progress: StageDrawing}))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, messenger.sent())

	frame := &session.Frame{
		Kind:     session.FrameSnapshot,
		Progress: StageDrawing,
		Data:     []byte(`{"turnPlayerId":"p1"}`),
	}
	require.NoError(t, adapter.OnSameProgress(st, frame))
	assert.Eventually(t, func() bool {
		return len(messenger.sent()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "Ming, it's your turn.", messenger.sent()[0])
}
