package main

import (
	"context"
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zeusync/netsync/internal/core/command"
	"github.com/zeusync/netsync/internal/core/observability/log"
	"github.com/zeusync/netsync/internal/core/replay"
	"github.com/zeusync/netsync/internal/demo"
	"github.com/zeusync/netsync/internal/injector"
	"github.com/zeusync/netsync/sdk/go/client"
)

// bot joins a session, plays random commands and optionally writes a replay
// archive of every turn it received.
func main() {
	configPath := flag.String("config", "", "path to the YAML configuration")
	identity := flag.String("identity", "", "stable player identity")
	duration := flag.Duration("duration", 30*time.Second, "how long to play")
	seed := flag.Int64("seed", time.Now().UnixNano(), "command generator seed")
	flag.Parse()

	rt, err := injector.InitializeRuntime(injector.ConfigPath(*configPath))
	if err != nil {
		log.New(log.LevelError).Fatal("Failed to load configuration", log.Error(err))
	}
	logger := rt.Logger
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	cfg := client.DefaultClientConfig()
	cfg.Identity = *identity
	cfg.Lockstep = rt.Config.Lockstep
	cfg.Replication = rt.Config.Replication
	cfg.Record = rt.Config.Replay.Enabled

	c, err := client.NewClient(cfg, client.NewTransport(rt.Config.Transport, logger), logger)
	if err != nil {
		logger.Fatal("Failed to create client", log.Error(err))
	}
	if err = c.Connect(ctx); err != nil {
		logger.Fatal("Failed to connect", log.String("endpoint", client.Endpoint(rt.Config.Transport)), log.Error(err))
	}
	if err = c.Ready(); err != nil {
		logger.Fatal("Failed to signal ready", log.Error(err))
	}

	play(ctx, c, rand.New(rand.NewSource(*seed)), rt.Config.Lockstep.CommandStepDuration, logger)

	logger.Info("Session finished",
		log.Uint64("turns", c.Lockstep().NextTurn()),
		log.Uint64("checksum", c.World().Checksum()),
	)
	if rec := c.Recorder(); rec != nil {
		if err = writeReplay(rt.Config.Replay, rec); err != nil {
			logger.Error("Failed to write replay", log.Error(err))
		} else {
			logger.Info("Replay written", log.String("path", rt.Config.Replay.Path), log.Int("turns", rec.Len()))
		}
	}
	_ = c.Close()
}

func play(ctx context.Context, c *client.Client, rng *rand.Rand, every time.Duration, logger log.Log) {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	last := time.Now()
	var sinceCommand time.Duration
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			if err := c.Update(dt); err != nil {
				logger.Error("Simulation diverged", log.Error(err))
				return
			}
			sinceCommand += dt
			if sinceCommand < every {
				continue
			}
			sinceCommand = 0
			if cmd := pick(c, rng); cmd != nil {
				if err := c.Submit(cmd); err != nil {
					logger.Warn("Submit failed", log.Error(err))
				}
			}
		}
	}
}

// pick chooses a command against the units the local world knows about.
func pick(c *client.Client, rng *rand.Rand) command.Command {
	units := c.World().Scene().IDs()
	if len(units) == 0 || rng.Intn(8) == 0 {
		return &demo.Spawn{X: rng.Float32()*40 - 20, Z: rng.Float32()*40 - 20}
	}
	unit := uint32(units[rng.Intn(len(units))])
	if rng.Intn(3) == 0 {
		return &demo.Damage{Unit: unit, Amount: int64(rng.Intn(30) + 1)}
	}
	return &demo.Move{Unit: unit, DX: rng.Float32()*6 - 3, DZ: rng.Float32()*6 - 3}
}

func writeReplay(cfg replay.Config, rec *replay.Recorder) error {
	f, err := os.Create(cfg.Path)
	if err != nil {
		return err
	}
	if err = replay.WriteArchive(f, rec, cfg.Compression); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
