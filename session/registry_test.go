package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateConcurrentReturnsSameInstance(t *testing.T) {
	r := NewRegistry()

	results := make(chan *State, 50)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- r.GetOrCreate("g1")
		}()
	}
	wg.Wait()
	close(results)

	first := <-results
	for st := range results {
		assert.Same(t, first, st)
	}
}

func TestAttachPlayerEnqueuesInitialRequestsInOrder(t *testing.T) {
	r := NewRegistry()

	r.AttachPlayer("g1", &PlayerState{PlayerID: "p1", GuildID: "guild1"}, OutboundRequest{Kind: "deal"})
	r.AttachPlayer("g1", &PlayerState{PlayerID: "p2", GuildID: "guild2"}, OutboundRequest{Kind: "deal"})

	st, ok := r.Get("g1")
	require.True(t, ok)
	queue := st.Outbound()
	require.NotNil(t, queue)
	require.Equal(t, 2, queue.Len())

	first, _ := queue.TryPop()
	second, _ := queue.TryPop()
	assert.Equal(t, "p1", first.OriginatorID)
	assert.Equal(t, "deal", first.Kind)
	assert.Equal(t, "p2", second.OriginatorID)

	assert.ElementsMatch(t, []string{"guild1", "guild2"}, st.Guilds())
}

func TestAttachPlayerReplacesOnConflict(t *testing.T) {
	r := NewRegistry()

	r.AttachPlayer("g1", &PlayerState{PlayerID: "p1", DisplayName: "old"}, OutboundRequest{Kind: "deal"})
	r.AttachPlayer("g1", &PlayerState{PlayerID: "p1", DisplayName: "new"}, OutboundRequest{Kind: "deal"})

	st, _ := r.Get("g1")
	p, ok := st.Player("p1")
	require.True(t, ok)
	assert.Equal(t, "new", p.DisplayName)
	assert.Len(t, st.Players(), 1)
}

func TestAttachPlayerRegistersDestinationChannel(t *testing.T) {
	r := NewRegistry()

	r.AttachPlayer("g1", &PlayerState{PlayerID: "p1", DestinationChannel: "chan-1"}, OutboundRequest{Kind: "deal"})

	gameID, ok := r.GameForChannel("chan-1")
	require.True(t, ok)
	assert.Equal(t, "g1", gameID)

	r.UnregisterChannel("chan-1")
	_, ok = r.GameForChannel("chan-1")
	assert.False(t, ok)
}

func TestRemoveDeletesSession(t *testing.T) {
	r := NewRegistry()
	r.GetOrCreate("g1")
	require.Contains(t, r.ActiveGames(), "g1")

	r.Remove("g1")
	_, ok := r.Get("g1")
	assert.False(t, ok)
	assert.Empty(t, r.ActiveGames())
}
