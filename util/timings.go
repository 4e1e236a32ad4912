package util

import (
	"fmt"
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Timings holds the tunable delays and timeouts of the session engine.
// All values are in milliseconds.
type Timings struct {
	MatchWait        uint32 `yaml:"matchWait"`
	IdleTimeout      uint32 `yaml:"idleTimeout"`
	PublishRetry     uint32 `yaml:"publishRetry"`
	ConnectPoll      uint32 `yaml:"connectPoll"`
	TeardownGrace    uint32 `yaml:"teardownGrace"`
	ChatSendRetry    uint32 `yaml:"chatSendRetry"`
	ChatSendAttempts uint32 `yaml:"chatSendAttempts"`
}

// DefaultTimings returns the values used when no timings file is configured.
func DefaultTimings() Timings {
	return Timings{
		MatchWait:        60000,
		IdleTimeout:      300000,
		PublishRetry:     2000,
		ConnectPoll:      500,
		TeardownGrace:    30000,
		ChatSendRetry:    500,
		ChatSendAttempts: 3,
	}
}

func ParseTimingsConfig(timingsFile string) (Timings, error) {
	bytes, err := ioutil.ReadFile(timingsFile)
	if err != nil {
		return Timings{}, errors.Wrap(err, fmt.Sprintf("Error reading timings config file [%s]", timingsFile))
	}

	data := DefaultTimings()
	err = yaml.Unmarshal(bytes, &data)
	if err != nil {
		return Timings{}, errors.Wrap(err, fmt.Sprintf("Error parsing timings YAML file [%s]", timingsFile))
	}

	return data, nil
}

func (t Timings) MatchWaitDuration() time.Duration {
	return time.Duration(t.MatchWait) * time.Millisecond
}

func (t Timings) IdleTimeoutDuration() time.Duration {
	return time.Duration(t.IdleTimeout) * time.Millisecond
}

func (t Timings) PublishRetryDuration() time.Duration {
	return time.Duration(t.PublishRetry) * time.Millisecond
}

func (t Timings) ConnectPollDuration() time.Duration {
	return time.Duration(t.ConnectPoll) * time.Millisecond
}

func (t Timings) TeardownGraceDuration() time.Duration {
	return time.Duration(t.TeardownGrace) * time.Millisecond
}

func (t Timings) ChatSendRetryDuration() time.Duration {
	return time.Duration(t.ChatSendRetry) * time.Millisecond
}
