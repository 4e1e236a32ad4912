package broker

import (
	natsgo "github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"cardbot/logging"
)

var listenerLogger = log.With().Str("logger_name", "broker::listener").Logger()

// Dispatcher receives in-game broadcasts that arrive over the bus
// rather than over a session's own backend connection.
type Dispatcher interface {
	HandleGameBroadcast(gameID string, frame []byte)
}

// BroadcastListener binds to the game broadcast subject pattern and
// routes each message to the session identified by the game id token
// of its subject.
type BroadcastListener struct {
	nc               BusConn
	deploymentSuffix string
	dispatcher       Dispatcher

	broadcastSub *natsgo.Subscription
}

func NewBroadcastListener(nc BusConn, deploymentSuffix string, dispatcher Dispatcher) *BroadcastListener {
	return &BroadcastListener{
		nc:               nc,
		deploymentSuffix: deploymentSuffix,
		dispatcher:       dispatcher,
	}
}

func (l *BroadcastListener) Start() error {
	sub, err := l.nc.Subscribe(GetGameBroadcastWildcard(), l.onBroadcast)
	if err != nil {
		return errors.Wrapf(err, "Failed to subscribe to %s", GetGameBroadcastWildcard())
	}
	l.broadcastSub = sub
	return nil
}

func (l *BroadcastListener) Stop() {
	if l.broadcastSub != nil {
		l.broadcastSub.Unsubscribe()
		l.broadcastSub = nil
	}
}

func (l *BroadcastListener) onBroadcast(msg *natsgo.Msg) {
	gameID, err := CorrelationFromSubject(msg.Subject, l.deploymentSuffix)
	if err != nil {
		listenerLogger.Error().Str(logging.SubjectKey, msg.Subject).Msgf("Dropping broadcast: %v", err)
		return
	}
	l.dispatcher.HandleGameBroadcast(gameID, msg.Data)
}
