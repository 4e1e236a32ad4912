package util

import (
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

var environmentLogger = log.With().Str("logger_name", "util::environment").Logger()

type environment struct {
	NatsURL      string
	BackendWSURL string
	ChatAPIURL   string
	RedisHost    string
	RedisPort    string
	RedisPW      string
	RedisDB      string
	RestPort     string
	TimingsFile  string
	DisableRedis string
}

// Env is a helper object for accessing environment variables.
var Env = &environment{
	NatsURL:      "NATS_URL",
	BackendWSURL: "BACKEND_WS_URL",
	ChatAPIURL:   "CHAT_API_URL",
	RedisHost:    "REDIS_HOST",
	RedisPort:    "REDIS_PORT",
	RedisPW:      "REDIS_PW",
	RedisDB:      "REDIS_DB",
	RestPort:     "REST_PORT",
	TimingsFile:  "TIMINGS_FILE",
	DisableRedis: "DISABLE_REDIS",
}

func (e *environment) GetNatsURL() string {
	url := os.Getenv(e.NatsURL)
	if url == "" {
		msg := fmt.Sprintf("%s is not defined", e.NatsURL)
		environmentLogger.Error().Msg(msg)
		panic(msg)
	}
	return url
}

func (e *environment) GetBackendWSURL() string {
	url := os.Getenv(e.BackendWSURL)
	if url == "" {
		msg := fmt.Sprintf("%s is not defined", e.BackendWSURL)
		environmentLogger.Error().Msg(msg)
		panic(msg)
	}
	return url
}

func (e *environment) GetChatAPIURL() string {
	url := os.Getenv(e.ChatAPIURL)
	if url == "" {
		msg := fmt.Sprintf("%s is not defined", e.ChatAPIURL)
		environmentLogger.Error().Msg(msg)
		panic(msg)
	}
	return url
}

func (e *environment) GetRedisHost() string {
	host := os.Getenv(e.RedisHost)
	if host == "" {
		return "localhost"
	}
	return host
}

func (e *environment) GetRedisPort() int {
	port := os.Getenv(e.RedisPort)
	if port == "" {
		return 6379
	}
	portNo, err := strconv.Atoi(port)
	if err != nil {
		msg := fmt.Sprintf("%s is not a number: %s", e.RedisPort, port)
		environmentLogger.Error().Msg(msg)
		panic(msg)
	}
	return portNo
}

func (e *environment) GetRedisPW() string {
	return os.Getenv(e.RedisPW)
}

func (e *environment) GetRedisDB() int {
	db := os.Getenv(e.RedisDB)
	if db == "" {
		return 0
	}
	dbNo, err := strconv.Atoi(db)
	if err != nil {
		msg := fmt.Sprintf("%s is not a number: %s", e.RedisDB, db)
		environmentLogger.Error().Msg(msg)
		panic(msg)
	}
	return dbNo
}

func (e *environment) GetRestPort() int {
	port := os.Getenv(e.RestPort)
	if port == "" {
		return 8080
	}
	portNo, err := strconv.Atoi(port)
	if err != nil {
		msg := fmt.Sprintf("%s is not a number: %s", e.RestPort, port)
		environmentLogger.Error().Msg(msg)
		panic(msg)
	}
	return portNo
}

func (e *environment) GetTimingsFile() string {
	return os.Getenv(e.TimingsFile)
}

func (e *environment) IsRedisDisabled() bool {
	v := os.Getenv(e.DisableRedis)
	return v == "1" || v == "true"
}
