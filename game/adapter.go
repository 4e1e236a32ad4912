package game

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"

	"cardbot/backend"
	"cardbot/logging"
	"cardbot/session"
)

var gameLogger = log.With().Str("logger_name", "game::adapter").Logger()

// Config parameterizes one game's adapter. The engine is identical for
// every game; only the vocabulary below differs.
type Config struct {
	// Type keys the game in match subjects and the session manager.
	Type string

	// RequestKinds the backend accepts in-game. InitialKind and
	// CloseKind must both be members.
	RequestKinds []string
	InitialKind  string
	CloseKind    string

	// StageLabels maps each playing stage to the text announced when
	// the session enters it. Values must lie strictly between
	// ProgressStarting and ProgressEnding.
	StageLabels map[session.Progress]string

	// BackendBaseURL is the websocket base; the session dials
	// <base>/<type>/<gameID>.
	BackendBaseURL string
	ConnectPoll    time.Duration
}

// Adapter is the shared implementation of the engine's per-game
// contract. Games differ only by Config.
type Adapter struct {
	cfg       Config
	messenger session.Messenger
}

var _ session.Adapter = (*Adapter)(nil)

func New(cfg Config, messenger session.Messenger) *Adapter {
	return &Adapter{cfg: cfg, messenger: messenger}
}

func (a *Adapter) GameType() string {
	return a.cfg.Type
}

func (a *Adapter) ValidRequestKinds() []string {
	return a.cfg.RequestKinds
}

func (a *Adapter) InitialRequestKind() string {
	return a.cfg.InitialKind
}

func (a *Adapter) CloseRequestKind() string {
	return a.cfg.CloseKind
}

func (a *Adapter) PlayingStates() []session.Progress {
	stages := make([]session.Progress, 0, len(a.cfg.StageLabels))
	for stage := range a.cfg.StageLabels {
		stages = append(stages, stage)
	}
	return stages
}

func (a *Adapter) OpenConnection(ctx context.Context, gameID string) (backend.Conn, error) {
	dialer := &backend.Dialer{
		URL:       fmt.Sprintf("%s/%s/%s", a.cfg.BackendBaseURL, a.cfg.Type, gameID),
		PollDelay: a.cfg.ConnectPoll,
	}
	return dialer.Dial(ctx)
}

func (a *Adapter) CloseConnection(conn backend.Conn, reason string) error {
	return conn.Close(reason)
}

// OnProgressChange announces the new stage to every player channel.
// Entering Ending renders the final result instead.
func (a *Adapter) OnProgressChange(st *session.State, frame *session.Frame) error {
	if frame.Progress == session.ProgressEnding {
		return a.announceResult(st, frame)
	}

	text := a.stageText(frame.Progress)
	a.deliver(st, text)
	return nil
}

// OnSameProgress refreshes players with a turn reminder when the
// snapshot names whose turn it is; otherwise it is a quiet resync.
func (a *Adapter) OnSameProgress(st *session.State, frame *session.Frame) error {
	var body struct {
		TurnPlayerID string `json:"turnPlayerId"`
	}
	if frame.Data == nil {
		return nil
	}
	err := jsoniter.Unmarshal(frame.Data, &body)
	if err != nil || body.TurnPlayerID == "" {
		return nil
	}
	p, ok := st.PlayerLocked(body.TurnPlayerID)
	if !ok {
		return nil
	}
	a.deliver(st, fmt.Sprintf("%s, it's your turn.", p.DisplayName))
	return nil
}

func (a *Adapter) stageText(stage session.Progress) string {
	switch stage {
	case session.ProgressStarting:
		return fmt.Sprintf("%s table is starting. Dealing cards...", a.cfg.Type)
	case session.ProgressClosed:
		return fmt.Sprintf("%s table closed.", a.cfg.Type)
	default:
		if label, ok := a.cfg.StageLabels[stage]; ok {
			return label
		}
		return fmt.Sprintf("%s: stage %s", a.cfg.Type, stage)
	}
}

func (a *Adapter) announceResult(st *session.State, frame *session.Frame) error {
	var result struct {
		Results []struct {
			PlayerID    string  `json:"playerId"`
			DisplayName string  `json:"displayName"`
			Score       int     `json:"score"`
			Payout      float64 `json:"payout"`
		} `json:"results"`
	}

	text := fmt.Sprintf("%s game is over.", a.cfg.Type)
	if frame.Data != nil {
		err := jsoniter.Unmarshal(frame.Data, &result)
		if err != nil {
			gameLogger.Error().
				Str(logging.GameIDKey, st.GameID).
				Str("payload", string(frame.Data)).
				Msgf("Unable to decode result payload: %v", err)
		} else {
			for _, r := range result.Results {
				text += fmt.Sprintf("\n%s: %d points (%.2f)", r.DisplayName, r.Score, r.Payout)
			}
		}
	}

	a.deliver(st, text)
	return nil
}

// deliver fans the text out to every player channel as detached work;
// reactions run under the session lock and must not wait on the chat
// platform. Teardown's grace period covers these in-flight sends.
func (a *Adapter) deliver(st *session.State, text string) {
	if a.messenger == nil {
		return
	}
	for _, p := range st.PlayersLocked() {
		if p.DestinationChannel == "" {
			continue
		}
		channelID := p.DestinationChannel
		go func() {
			err := a.messenger.SendMessage(context.Background(), channelID, text)
			if err != nil {
				gameLogger.Error().
					Str(logging.GameIDKey, st.GameID).
					Str(logging.ChannelIDKey, channelID).
					Msgf("Failed to deliver message: %v", err)
			}
		}()
	}
}
