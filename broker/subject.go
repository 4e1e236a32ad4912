package broker

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Subject layout:
//
//	match.request.<gameType>                join requests, queue-group consumed
//	match.response.<correlationID>.<shard>  match results for one waiting player
//	game.broadcast.<gameID>.<shard>         in-game broadcasts fanned in from the bus
//
// The shard token is a deployment-specific suffix appended by the
// publisher; consumers identify the waiter by the token before it.

func GetMatchRequestSubject(gameType string) string {
	return fmt.Sprintf("match.request.%s", gameType)
}

func GetMatchResponseSubject(correlationID string, shard string) string {
	return fmt.Sprintf("match.response.%s.%s", correlationID, shard)
}

func GetMatchResponseWildcard() string {
	return "match.response.>"
}

func GetGameBroadcastSubject(gameID string, shard string) string {
	return fmt.Sprintf("game.broadcast.%s.%s", gameID, shard)
}

func GetGameBroadcastWildcard() string {
	return "game.broadcast.>"
}

// CorrelationFromSubject extracts the correlation token from a routing
// subject: the segment between the second-to-last and last delimiter,
// with the deployment suffix (if any) stripped. The same rule routes
// match responses (token is the correlation id) and game broadcasts
// (token is the game id).
func CorrelationFromSubject(subject string, deploymentSuffix string) (string, error) {
	tokens := strings.Split(subject, ".")
	if len(tokens) < 3 {
		return "", errors.Errorf("Subject [%s] has too few tokens to carry a correlation id", subject)
	}
	correlation := tokens[len(tokens)-2]
	if deploymentSuffix != "" {
		correlation = strings.TrimSuffix(correlation, deploymentSuffix)
	}
	if correlation == "" {
		return "", errors.Errorf("Subject [%s] has an empty correlation token", subject)
	}
	return correlation, nil
}
