package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/zeusync/netsync/internal/config"
	"github.com/zeusync/netsync/internal/core/command"
	"github.com/zeusync/netsync/internal/core/lockstep"
	"github.com/zeusync/netsync/internal/core/replay"
	"github.com/zeusync/netsync/internal/demo"
)

// replay re-simulates a recorded session and prints the final checksum.
func main() {
	path := flag.String("path", "session.replay", "replay archive written by the bot")
	configPath := flag.String("config", "", "configuration the session ran with")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	f, err := os.Open(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	defer func() { _ = f.Close() }()

	registry := demo.Commands()
	rec, err := replay.ReadArchive(f, registry)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}

	checksum, turns, err := resimulate(cfg.Lockstep, registry, rec)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(3)
	}
	fmt.Printf("turns=%d checksum=%016x\n", turns, checksum)
}

// resimulate feeds every recorded turn through a fresh lockstep client and
// drains it.
func resimulate(lc lockstep.Config, registry *command.Registry, rec *replay.Recorder) (uint64, uint64, error) {
	lc.ClientStartDelay = 0
	world := demo.NewWorld()
	logic, err := world.Logic(registry)
	if err != nil {
		return 0, 0, err
	}
	c := lockstep.NewClient(lc, registry, logic, nil, nil)
	c.SetSimulation(world.Step)
	rec.Replay(c)

	for c.TurnBuffer() > 0 {
		applied, err := c.Update(lc.CommandStepDuration)
		if err != nil {
			return 0, 0, err
		}
		if applied == 0 && c.TurnBuffer() > 0 {
			// a gap in the recording; nothing after it can be applied
			break
		}
	}
	return world.Checksum(), c.NextTurn(), nil
}
