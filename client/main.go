// Command client is a bot player: it signs in with a device id, waits for an
// opponent, plays cards on a timer until the match ends and then collects its
// gold.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/piratepanic/config"
	"github.com/wfunc/piratepanic/game"
	"github.com/wfunc/piratepanic/logger"
	"github.com/wfunc/piratepanic/relayclient"
	"github.com/wfunc/piratepanic/rpc"
	"github.com/wfunc/piratepanic/timer"
)

func main() {
	configPath := flag.String("config", ".", "directory holding config.yaml")
	device := flag.String("device", "", "device id, overrides client.device_id")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}
	logger.Init(cfg.Log.Level)
	defer logger.Sync()

	if *device != "" {
		cfg.Client.DeviceID = *device
	}
	if cfg.Client.DeviceID == "" {
		logger.Log.Fatal("a device id is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := play(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		logger.Log.Fatalf("bot failed: %v", err)
	}
}

func play(ctx context.Context, cfg *config.Config) error {
	log := logger.Named("bot").With("device_id", cfg.Client.DeviceID)

	relay := relayclient.New(cfg.Client.ServerURL, cfg.Client.SocketURL)
	session, err := relay.Authenticate(ctx, cfg.Client.DeviceID, cfg.Client.Username)
	if err != nil {
		return err
	}
	if err := relay.Dial(ctx, session.Token); err != nil {
		return err
	}
	defer relay.Close()

	rewards, err := rpc.NewClient(cfg.Client.RPCAddress, session.Token, cfg.Client.RewardAttempts, cfg.Client.RewardBackoff)
	if err != nil {
		return err
	}
	defer rewards.Close()

	log.Info("looking for an opponent")
	matched, err := relay.Matchmake(ctx)
	if err != nil {
		return err
	}

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	loop := timer.NewLoop(256)
	go loop.Run(loopCtx)

	return runMatch(ctx, log, relay, rewards, loop, session.UserID, matched.MatchID, cfg)
}

func runMatch(ctx context.Context, log *zap.SugaredLogger, relay *relayclient.Client, rewards *rpc.Client,
	loop *timer.Loop, userID, matchID string, cfg *config.Config) error {
	m := game.NewMatch(relay, loop, userID, cfg.Match)
	if _, err := m.Join(ctx, matchID); err != nil {
		return err
	}
	log = log.With("match_id", matchID)
	log.Info("joined match")

	player := game.NewAutoPlayer(m, loop, cfg.Client.PlayInterval)
	if err := loop.Call(ctx, player.Start); err != nil {
		return err
	}

	select {
	case <-m.Ended():
	case <-m.Done():
		log.Info("opponent left before the match ended")
		return nil
	case <-relay.Done():
		return relayclient.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	result := m.Result()
	log.Infow("match over", "winner", result.WinnerID, "towers", result.WinnerTowersDestroyed)

	var isHost bool
	if err := loop.Call(ctx, func() { isHost = m.Session.IsHost() }); err != nil {
		return err
	}
	if isHost {
		if err := rewards.RecordMatchResult(ctx, result); err != nil {
			log.Warnw("could not record match result", "error", err)
		}
	}
	gold, err := rewards.MatchReward(ctx, matchID)
	if err != nil {
		log.Warnw("no reward", "error", err)
	} else {
		log.Infow("reward collected", "gold", gold)
	}

	leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.Leave(leaveCtx)
}
