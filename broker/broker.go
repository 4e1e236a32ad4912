package broker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	natsgo "github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"cardbot/logging"
	"cardbot/util"
)

var brokerLogger = log.With().Str("logger_name", "broker::broker").Logger()

// Match response status types reported by the matcher service.
const (
	StatusMatched = "Matched"
	StatusWaiting = "Waiting"
	StatusFailed  = "Failed"
)

// ErrMatchTimeout is returned by AwaitMatch when no match forms before
// the deadline. It is a first-class outcome, surfaced to the player as
// a plain "no match found" message.
var ErrMatchTimeout = errors.New("no match found before the deadline")

// MatchedPlayer is one roster entry echoed back by the matcher.
type MatchedPlayer struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
	Order       int    `json:"order"`
	GuildID     string `json:"guildId"`
}

// MatchResult is the decoded payload of one match response.
type MatchResult struct {
	StatusType string          `json:"statusType"`
	GameID     string          `json:"gameId"`
	GameType   string          `json:"gameType"`
	Players    []MatchedPlayer `json:"players"`
}

// JoinRequest is the payload published on the match request subject.
type JoinRequest struct {
	CorrelationID string `json:"correlationId"`
	PlayerID      string `json:"playerId"`
	DisplayName   string `json:"displayName"`
	AvatarURL     string `json:"avatarUrl"`
	GuildID       string `json:"guildId"`
}

// NewCorrelationID returns a fresh correlation id for callers that do
// not derive one from the player id.
func NewCorrelationID() string {
	return uuid.New().String()
}

// BusConn is the subset of *nats.Conn the broker uses.
type BusConn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler natsgo.MsgHandler) (*natsgo.Subscription, error)
	IsConnected() bool
}

// MatchBroker publishes join requests per game type and demultiplexes
// matcher responses back to the waiting caller by correlation id.
type MatchBroker struct {
	nc               BusConn
	shard            string
	deploymentSuffix string
	timings          util.Timings
	limiter          *rate.Limiter

	mu      sync.Mutex
	waiters map[string]chan *MatchResult

	responseSub *natsgo.Subscription
}

func NewMatchBroker(nc BusConn, shard string, deploymentSuffix string, timings util.Timings) *MatchBroker {
	return &MatchBroker{
		nc:               nc,
		shard:            shard,
		deploymentSuffix: deploymentSuffix,
		timings:          timings,
		limiter:          rate.NewLimiter(rate.Limit(50), 10),
		waiters:          make(map[string]chan *MatchResult),
	}
}

// Start binds the long-running response listener.
func (b *MatchBroker) Start() error {
	sub, err := b.nc.Subscribe(GetMatchResponseWildcard(), b.onMatchResponse)
	if err != nil {
		return errors.Wrapf(err, "Failed to subscribe to %s", GetMatchResponseWildcard())
	}
	b.responseSub = sub
	return nil
}

func (b *MatchBroker) Stop() {
	if b.responseSub != nil {
		b.responseSub.Unsubscribe()
		b.responseSub = nil
	}
}

// RequestMatch publishes a join request for the game type. Fire and
// forget: publishing retries with a fixed delay while the broker
// connection is unavailable, and never surfaces an error to the caller.
func (b *MatchBroker) RequestMatch(gameType string, waitingPayload []byte) {
	go b.publishWithRetry(GetMatchRequestSubject(gameType), waitingPayload)
}

func (b *MatchBroker) publishWithRetry(subject string, payload []byte) {
	for {
		if b.nc.IsConnected() {
			b.limiter.Wait(context.Background())
			err := b.nc.Publish(subject, payload)
			if err == nil {
				return
			}
			brokerLogger.Error().Str(logging.SubjectKey, subject).Msgf("Failed to publish match request: %v. Retrying.", err)
		}
		time.Sleep(b.timings.PublishRetryDuration())
	}
}

// Match publishes the join request and blocks for the response. The
// waiter is registered before the publish goes out, so a response
// arriving immediately cannot slip through the gap between the two.
func (b *MatchBroker) Match(gameType string, correlationID string, payload []byte) (*MatchResult, error) {
	ch := b.register(correlationID)
	defer b.deregister(correlationID)

	go b.publishWithRetry(GetMatchRequestSubject(gameType), payload)
	return b.await(correlationID, ch)
}

// AwaitMatch blocks until a Matched response with a non-empty game id
// arrives for the correlation id, or the match wait elapses. Responses
// of any other kind are ignored and the wait continues. The
// correlation id's channel is discarded on return either way.
func (b *MatchBroker) AwaitMatch(correlationID string) (*MatchResult, error) {
	ch := b.register(correlationID)
	defer b.deregister(correlationID)
	return b.await(correlationID, ch)
}

func (b *MatchBroker) await(correlationID string, ch chan *MatchResult) (*MatchResult, error) {
	timer := time.NewTimer(b.timings.MatchWaitDuration())
	defer timer.Stop()

	for {
		select {
		case result := <-ch:
			if result.StatusType == StatusMatched && result.GameID != "" {
				return result, nil
			}
			brokerLogger.Info().
				Str(logging.CorrelationKey, correlationID).
				Msgf("Ignoring match response with status %s", result.StatusType)
		case <-timer.C:
			return nil, ErrMatchTimeout
		}
	}
}

func (b *MatchBroker) register(correlationID string) chan *MatchResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan *MatchResult, 1)
	b.waiters[correlationID] = ch
	return ch
}

func (b *MatchBroker) deregister(correlationID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.waiters, correlationID)
}

func (b *MatchBroker) onMatchResponse(msg *natsgo.Msg) {
	correlationID, err := CorrelationFromSubject(msg.Subject, b.deploymentSuffix)
	if err != nil {
		brokerLogger.Error().Str(logging.SubjectKey, msg.Subject).Msgf("Dropping match response: %v", err)
		return
	}

	var result MatchResult
	err = jsoniter.Unmarshal(msg.Data, &result)
	if err != nil {
		// The message is already consumed from the bus; log and drop.
		brokerLogger.Error().
			Str(logging.SubjectKey, msg.Subject).
			Str("payload", string(msg.Data)).
			Msgf("Failed to decode match response: %v", err)
		return
	}

	b.mu.Lock()
	ch, ok := b.waiters[correlationID]
	b.mu.Unlock()
	if !ok {
		// Nobody waiting under this id anymore.
		return
	}

	select {
	case ch <- &result:
	default:
		// Waiter channel is full; drop rather than block the listener.
	}
}
