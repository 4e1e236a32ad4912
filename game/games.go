package game

import (
	"time"

	"cardbot/session"
)

// Game type keys, shared with the matcher's request subjects.
const (
	TypeBlackjack  = "blackjack"
	TypeChasePig   = "chasepig"
	TypeThirteen   = "thirteen"
	TypeNinetyNine = "ninetynine"
	TypeOldMaid    = "oldmaid"
	TypeRedDots    = "reddots"
)

// Playing stage values per game. Each sits strictly between
// ProgressStarting and ProgressEnding; the values never collide across
// games because a session belongs to exactly one game type.
const (
	StageBetting     session.Progress = 10
	StagePlayerTurns session.Progress = 20
	StageDealerTurn  session.Progress = 30

	StagePassing session.Progress = 10
	StageTricks  session.Progress = 20

	StageArranging session.Progress = 10
	StageShowdown  session.Progress = 20

	StageTurns session.Progress = 10

	StageDrawing session.Progress = 10

	StagePicking session.Progress = 10
)

// RegisterAll builds the six adapters and registers them with the
// manager. backendBaseURL is the websocket base of the rule backend.
func RegisterAll(manager *session.Manager, messenger session.Messenger, backendBaseURL string, connectPoll time.Duration) {
	configs := []Config{
		{
			Type:         TypeBlackjack,
			RequestKinds: []string{"deal", "hit", "stand", "double", "split", "close"},
			InitialKind:  "deal",
			CloseKind:    "close",
			StageLabels: map[session.Progress]string{
				StageBetting:     "Place your bets.",
				StagePlayerTurns: "Hit or stand?",
				StageDealerTurn:  "Dealer is drawing.",
			},
		},
		{
			Type:         TypeChasePig,
			RequestKinds: []string{"deal", "pass", "expose", "play", "close"},
			InitialKind:  "deal",
			CloseKind:    "close",
			StageLabels: map[session.Progress]string{
				StagePassing: "Pass three cards to the next player.",
				StageTricks:  "Trick play has started. Watch out for the pig.",
			},
		},
		{
			Type:         TypeThirteen,
			RequestKinds: []string{"deal", "arrange", "confirm", "close"},
			InitialKind:  "deal",
			CloseKind:    "close",
			StageLabels: map[session.Progress]string{
				StageArranging: "Arrange your thirteen cards into three rows.",
				StageShowdown:  "Showdown.",
			},
		},
		{
			Type:         TypeNinetyNine,
			RequestKinds: []string{"deal", "play", "close"},
			InitialKind:  "deal",
			CloseKind:    "close",
			StageLabels: map[session.Progress]string{
				StageTurns: "Play a card. Keep the total at 99 or below.",
			},
		},
		{
			Type:         TypeOldMaid,
			RequestKinds: []string{"deal", "draw", "close"},
			InitialKind:  "deal",
			CloseKind:    "close",
			StageLabels: map[session.Progress]string{
				StageDrawing: "Draw a card from the next player's hand.",
			},
		},
		{
			Type:         TypeRedDots,
			RequestKinds: []string{"deal", "pick", "close"},
			InitialKind:  "deal",
			CloseKind:    "close",
			StageLabels: map[session.Progress]string{
				StagePicking: "Pick a card from the table.",
			},
		},
	}

	for _, cfg := range configs {
		cfg.BackendBaseURL = backendBaseURL
		cfg.ConnectPoll = connectPoll
		manager.RegisterAdapter(New(cfg, messenger))
	}
}
