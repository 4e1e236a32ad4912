package rest

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"cardbot/bot"
	"cardbot/broker"
	"cardbot/caching"
	"cardbot/session"
)

var restLogger = log.With().Str("logger_name", "rest::rest").Logger()

var coordinator *bot.Coordinator
var sessionRegistry *session.Registry
var snapshotTracker *caching.RedisSnapshotTracker

type sessionSummary struct {
	GameID   string `json:"gameId"`
	GameType string `json:"gameType"`
	Progress string `json:"progress"`
	Players  int    `json:"players"`
}

type joinRequest struct {
	GameType    string `json:"gameType"`
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
	GuildID     string `json:"guildId"`
	ChannelID   string `json:"channelId"`
}

type actionRequest struct {
	PlayerID string          `json:"playerId"`
	Kind     string          `json:"kind"`
	Payload  json.RawMessage `json:"payload"`
}

// RunRestServer exposes the surface the platform gateway calls (join,
// action) plus read-only admin views of the active sessions. Blocks
// serving.
func RunRestServer(portNo int, coord *bot.Coordinator, registry *session.Registry, snapshots *caching.RedisSnapshotTracker) {
	coordinator = coord
	sessionRegistry = registry
	snapshotTracker = snapshots

	r := gin.Default()
	r.GET("/ready", ready)
	r.POST("/join", join)
	r.POST("/sessions/:gameId/action", submitAction)
	r.GET("/sessions", listSessions)
	r.GET("/sessions/:gameId", getSession)
	r.GET("/channels/:channelId/game", gameForChannel)

	restLogger.Info().Msgf("REST server listening on port %d", portNo)
	r.Run(fmt.Sprintf(":%d", portNo))
}

func ready(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}

func (r joinRequest) player() session.PlayerState {
	return session.PlayerState{
		PlayerID:           r.PlayerID,
		DisplayName:        r.DisplayName,
		AvatarURL:          r.AvatarURL,
		GuildID:            r.GuildID,
		DestinationChannel: r.ChannelID,
	}
}

// join blocks until a match forms or the match wait elapses. Timeout
// is an outcome, not an error: the gateway turns it into a plain
// "no match found" message.
func join(c *gin.Context) {
	var req joinRequest
	err := c.ShouldBindJSON(&req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid join request"})
		return
	}

	gameID, err := coordinator.Join(c.Request.Context(), req.GameType, req.player())
	if err == broker.ErrMatchTimeout {
		c.JSON(http.StatusOK, gin.H{"matched": false})
		return
	}
	if err != nil {
		restLogger.Error().Msgf("Join failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to join game"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"matched": true, "gameId": gameID})
}

func submitAction(c *gin.Context) {
	gameID := c.Param("gameId")
	var req actionRequest
	err := c.ShouldBindJSON(&req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid action request"})
		return
	}

	err = coordinator.SubmitAction(gameID, session.OutboundRequest{
		OriginatorID: req.PlayerID,
		Kind:         req.Kind,
		Payload:      req.Payload,
	})
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Cannot find game %s", gameID)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}

func listSessions(c *gin.Context) {
	summaries := make([]sessionSummary, 0)
	for _, gameID := range sessionRegistry.ActiveGames() {
		st, ok := sessionRegistry.Get(gameID)
		if !ok {
			continue
		}
		summaries = append(summaries, sessionSummary{
			GameID:   st.GameID,
			GameType: st.GameType(),
			Progress: st.Progress().String(),
			Players:  len(st.Players()),
		})
	}
	c.JSON(http.StatusOK, summaries)
}

func getSession(c *gin.Context) {
	gameID := c.Param("gameId")
	st, ok := sessionRegistry.Get(gameID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Cannot find game %s", gameID)})
		return
	}

	resp := gin.H{
		"gameId":   st.GameID,
		"gameType": st.GameType(),
		"progress": st.Progress().String(),
		"players":  st.Players(),
	}
	if snapshotTracker != nil {
		snapshot, err := snapshotTracker.Load(c.Request.Context(), gameID)
		if err == nil {
			resp["snapshot"] = string(snapshot)
		}
	}
	c.JSON(http.StatusOK, resp)
}

func gameForChannel(c *gin.Context) {
	channelID := c.Param("channelId")
	gameID, ok := coordinator.IsGameChannel(channelID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Channel has no active game"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"gameId": gameID})
}
