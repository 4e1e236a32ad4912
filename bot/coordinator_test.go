package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	natsgo "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardbot/backend"
	"cardbot/broker"
	"cardbot/session"
	"cardbot/util"
)

// matcherBus fakes the message bus together with the matcher service:
// every published join request is answered with a Matched response for
// the requesting correlation id.
type matcherBus struct {
	mu      sync.Mutex
	handler natsgo.MsgHandler
	gameID  string
	silent  bool
}

func (b *matcherBus) Publish(subject string, data []byte) error {
	b.mu.Lock()
	handler := b.handler
	silent := b.silent
	b.mu.Unlock()
	if silent || handler == nil {
		return nil
	}

	var join broker.JoinRequest
	if err := jsoniter.Unmarshal(data, &join); err != nil {
		return err
	}
	result, _ := jsoniter.Marshal(&broker.MatchResult{
		StatusType: broker.StatusMatched,
		GameID:     b.gameID,
		GameType:   "fake",
		Players: []broker.MatchedPlayer{
			{PlayerID: join.PlayerID, DisplayName: join.DisplayName, Order: 2, GuildID: join.GuildID},
		},
	})
	// Responding synchronously is safe: the waiter registers before the
	// publish goes out.
	handler(&natsgo.Msg{
		Subject: broker.GetMatchResponseSubject(join.CorrelationID, "shard1"),
		Data:    result,
	})
	return nil
}

func (b *matcherBus) Subscribe(subject string, handler natsgo.MsgHandler) (*natsgo.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = handler
	return nil, nil
}

func (b *matcherBus) IsConnected() bool { return true }

type stubConn struct {
	sent chan []byte
}

func (c *stubConn) Send(ctx context.Context, frame []byte) error {
	select {
	case c.sent <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *stubConn) Receive(ctx context.Context) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (c *stubConn) Close(reason string) error { return nil }

type stubAdapter struct {
	conn *stubConn
}

func (a *stubAdapter) GameType() string                  { return "fake" }
func (a *stubAdapter) ValidRequestKinds() []string       { return []string{"deal", "play", "close"} }
func (a *stubAdapter) InitialRequestKind() string        { return "deal" }
func (a *stubAdapter) CloseRequestKind() string          { return "close" }
func (a *stubAdapter) PlayingStates() []session.Progress { return []session.Progress{10} }

func (a *stubAdapter) OpenConnection(ctx context.Context, gameID string) (backend.Conn, error) {
	return a.conn, nil
}

func (a *stubAdapter) CloseConnection(conn backend.Conn, reason string) error {
	return conn.Close(reason)
}

func (a *stubAdapter) OnProgressChange(st *session.State, frame *session.Frame) error { return nil }
func (a *stubAdapter) OnSameProgress(st *session.State, frame *session.Frame) error   { return nil }

func coordinatorTestTimings() util.Timings {
	timings := util.DefaultTimings()
	timings.MatchWait = 500
	timings.TeardownGrace = 0
	return timings
}

func newTestCoordinator(t *testing.T, bus *matcherBus) (*Coordinator, *stubAdapter) {
	t.Helper()
	matchBroker := broker.NewMatchBroker(bus, "shard1", "", coordinatorTestTimings())
	require.NoError(t, matchBroker.Start())

	adapter := &stubAdapter{conn: &stubConn{sent: make(chan []byte, 16)}}
	manager := session.NewManager(session.ManagerConfig{Timings: coordinatorTestTimings()})
	manager.RegisterAdapter(adapter)

	return NewCoordinator(matchBroker, manager), adapter
}

func TestJoinMatchesAndStartsSession(t *testing.T) {
	bus := &matcherBus{gameID: "g42"}
	coordinator, adapter := newTestCoordinator(t, bus)

	player := session.PlayerState{PlayerID: "p1", DisplayName: "Ming", GuildID: "guild1"}
	gameID, err := coordinator.Join(context.Background(), "fake", player)
	require.NoError(t, err)
	assert.Equal(t, "g42", gameID)

	// The attach picked up the matcher-assigned turn order and the loop
	// relayed the initial request.
	st, ok := coordinator.manager.Registry().Get("g42")
	require.True(t, ok)
	attached, ok := st.Player("p1")
	require.True(t, ok)
	assert.Equal(t, 2, attached.Order)

	select {
	case data := <-adapter.conn.sent:
		var req session.OutboundRequest
		require.NoError(t, jsoniter.Unmarshal(data, &req))
		assert.Equal(t, "deal", req.Kind)
		assert.Equal(t, "p1", req.OriginatorID)
	case <-time.After(2 * time.Second):
		t.Fatal("Initial request never relayed")
	}
}

func TestJoinTimesOutWithoutMatch(t *testing.T) {
	bus := &matcherBus{gameID: "g42", silent: true}
	coordinator, _ := newTestCoordinator(t, bus)

	_, err := coordinator.Join(context.Background(), "fake", session.PlayerState{PlayerID: "p1"})
	assert.ErrorIs(t, err, broker.ErrMatchTimeout)
}

func TestSubmitActionRequiresActiveSession(t *testing.T) {
	coordinator, _ := newTestCoordinator(t, &matcherBus{gameID: "g42"})

	err := coordinator.SubmitAction("nope", session.OutboundRequest{Kind: "play"})
	assert.Error(t, err)
}

func TestSubmitActionAndChannelLookup(t *testing.T) {
	coordinator, _ := newTestCoordinator(t, &matcherBus{gameID: "g42"})

	player := &session.PlayerState{PlayerID: "p1", DestinationChannel: "chan-7"}
	require.NoError(t, coordinator.manager.AttachPlayer("fake", "g7", player))

	gameID, ok := coordinator.IsGameChannel("chan-7")
	require.True(t, ok)
	assert.Equal(t, "g7", gameID)
	_, ok = coordinator.IsGameChannel("random-channel")
	assert.False(t, ok)

	require.NoError(t, coordinator.SubmitAction("g7", session.OutboundRequest{OriginatorID: "p1", Kind: "play"}))
	st, _ := coordinator.manager.Registry().Get("g7")
	// The queue holds the initial deal plus the submitted action.
	assert.Equal(t, 2, st.Outbound().Len())
}
