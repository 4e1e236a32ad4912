package main

import (
	"flag"
	"fmt"
	"os"

	natsgo "github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"cardbot/bot"
	"cardbot/broker"
	"cardbot/caching"
	"cardbot/chat"
	"cardbot/game"
	"cardbot/logging"
	"cardbot/rest"
	"cardbot/session"
	"cardbot/util"
)

var mainLogger = logging.GetZeroLogger("main::main", nil)

var timingsFile *string
var shard *string
var deploymentSuffix *string

func init() {
	timingsFile = flag.String("timings", "", "YAML file containing timeouts and delays")
	shard = flag.String("shard", "0", "shard token appended to published subjects")
	deploymentSuffix = flag.String("deployment-suffix", "", "suffix stripped from correlation tokens")
}

func main() {
	flag.Parse()
	err := run()
	if err != nil {
		mainLogger.Error().Msg(err.Error())
		os.Exit(1)
	}
}

func run() error {
	timings := util.DefaultTimings()
	file := *timingsFile
	if file == "" {
		file = util.Env.GetTimingsFile()
	}
	if file != "" {
		var err error
		timings, err = util.ParseTimingsConfig(file)
		if err != nil {
			return err
		}
	}

	nc, err := natsgo.Connect(util.Env.GetNatsURL())
	if err != nil {
		return errors.Wrap(err, "Failed to connect to nats server")
	}
	defer nc.Close()

	matchBroker := broker.NewMatchBroker(nc, *shard, *deploymentSuffix, timings)
	err = matchBroker.Start()
	if err != nil {
		return err
	}
	defer matchBroker.Stop()

	closedGames, err := caching.NewClosedGameCache()
	if err != nil {
		return err
	}

	var snapshots *caching.RedisSnapshotTracker
	if !util.Env.IsRedisDisabled() {
		redisURL := fmt.Sprintf("%s:%d", util.Env.GetRedisHost(), util.Env.GetRedisPort())
		snapshots = caching.NewRedisSnapshotTracker(redisURL, util.Env.GetRedisPW(), util.Env.GetRedisDB())
	}

	messenger := chat.NewHTTPMessenger(util.Env.GetChatAPIURL(), timings.ChatSendAttempts, timings.ChatSendRetryDuration())

	managerCfg := session.ManagerConfig{
		Messenger: messenger,
		Closed:    closedGames,
		Timings:   timings,
	}
	if snapshots != nil {
		managerCfg.Snapshots = snapshots
	}
	manager := session.NewManager(managerCfg)
	game.RegisterAll(manager, messenger, util.Env.GetBackendWSURL(), timings.ConnectPollDuration())

	listener := broker.NewBroadcastListener(nc, *deploymentSuffix, manager)
	err = listener.Start()
	if err != nil {
		return err
	}
	defer listener.Stop()

	coordinator := bot.NewCoordinator(matchBroker, manager)

	rest.RunRestServer(util.Env.GetRestPort(), coordinator, manager.Registry(), snapshots)
	return nil
}
