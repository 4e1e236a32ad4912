package bot

import (
	"context"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"cardbot/broker"
	"cardbot/logging"
	"cardbot/session"
)

var coordinatorLogger = log.With().Str("logger_name", "bot::coordinator").Logger()

// Coordinator is the entry point the platform command layer calls when
// a player asks to join a game: publish the join request, wait for a
// match, attach the player, and make sure the session loop is running.
type Coordinator struct {
	broker  *broker.MatchBroker
	manager *session.Manager
}

func NewCoordinator(matchBroker *broker.MatchBroker, manager *session.Manager) *Coordinator {
	return &Coordinator{
		broker:  matchBroker,
		manager: manager,
	}
}

// Join matches the player into a game of the requested type and
// returns the assigned game id. broker.ErrMatchTimeout means no match
// formed in time; the caller phrases that as a plain "no match found"
// chat message. Runs on a detached worker, never on an interaction
// handler's latency budget.
func (c *Coordinator) Join(ctx context.Context, gameType string, player session.PlayerState) (string, error) {
	correlationID := player.PlayerID
	if correlationID == "" {
		correlationID = broker.NewCorrelationID()
	}

	payload, err := jsoniter.Marshal(&broker.JoinRequest{
		CorrelationID: correlationID,
		PlayerID:      player.PlayerID,
		DisplayName:   player.DisplayName,
		AvatarURL:     player.AvatarURL,
		GuildID:       player.GuildID,
	})
	if err != nil {
		return "", errors.Wrap(err, "Unable to encode join request")
	}

	result, err := c.broker.Match(gameType, correlationID, payload)
	if err != nil {
		return "", err
	}

	// The matcher assigns turn order; pick up ours from the roster.
	for _, mp := range result.Players {
		if mp.PlayerID == player.PlayerID {
			player.Order = mp.Order
		}
	}

	err = c.manager.AttachPlayer(gameType, result.GameID, &player)
	if err != nil {
		return "", err
	}
	c.manager.StartSession(ctx, gameType, result.GameID)

	coordinatorLogger.Info().
		Str(logging.GameIDKey, result.GameID).
		Str(logging.GameTypeKey, gameType).
		Str(logging.PlayerIDKey, player.PlayerID).
		Str(logging.PlayerNameKey, player.DisplayName).
		Str(logging.GuildIDKey, player.GuildID).
		Msg("Player matched into game")
	return result.GameID, nil
}

// IsGameChannel fast-tests whether an incoming interaction belongs to
// an active game.
func (c *Coordinator) IsGameChannel(channelID string) (string, bool) {
	return c.manager.Registry().GameForChannel(channelID)
}

// SubmitAction enqueues a player action for relay to the backend. The
// queue is safe for concurrent producers, so this never contends with
// broadcast handling.
func (c *Coordinator) SubmitAction(gameID string, req session.OutboundRequest) error {
	st, ok := c.manager.Registry().Get(gameID)
	if !ok {
		return errors.Errorf("No active session for game %s", gameID)
	}
	queue := st.Outbound()
	if queue == nil {
		return errors.Errorf("Session %s has no players attached", gameID)
	}
	queue.Push(req)
	return nil
}
