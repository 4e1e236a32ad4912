package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	GameIDKey      string = "gameID"
	GameTypeKey    string = "gameType"
	PlayerIDKey    string = "playerID"
	PlayerNameKey  string = "playerName"
	GuildIDKey     string = "guildID"
	ChannelIDKey   string = "channelID"
	CorrelationKey string = "correlationID"
	ProgressKey    string = "progress"
	SubjectKey     string = "subject"
	RequestKindKey string = "requestKind"
)

func getEnableColorLog() string {
	v := os.Getenv("COLORIZE_LOG")
	if v == "" {
		// Use colorized logging by default.
		return "true"
	}
	return v
}

func IsColorLoggingEnabled() bool {
	return getEnableColorLog() == "1" || strings.ToLower(getEnableColorLog()) == "true"
}

func GetZeroLogger(name string, out io.Writer) *zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}
	noColor := !IsColorLoggingEnabled()
	output := zerolog.ConsoleWriter{Out: out, NoColor: noColor, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Str("logger_name", name).Logger()
	return &logger
}
