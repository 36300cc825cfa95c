package demo

import (
	"fmt"
	"time"

	"github.com/zeusync/netsync/internal/core/behaviour"
	"github.com/zeusync/netsync/internal/core/command"
	"github.com/zeusync/netsync/internal/core/lockstep"
	"github.com/zeusync/netsync/internal/core/scene"
)

const (
	TypeUnit scene.TypeTag = iota + 1
)

const (
	unitHealth = 100
	// arenaHalfSize clamps unit positions to [-arenaHalfSize, arenaHalfSize].
	arenaHalfSize = 50
)

// World applies demo commands to a scene. The server host runs it on every
// closed turn to keep the replicated scene current; clients run it from the
// lockstep client and end up with the same checksum.
type World struct {
	scene *scene.Scene
	codec *scene.ObjectCodec
	score *Score
}

func NewWorld() *World {
	s := scene.New()
	score := &Score{}
	s.Behaviours.Add(score)
	return &World{
		scene: s,
		codec: scene.NewObjectCodec(Behaviours()),
		score: score,
	}
}

func (w *World) Scene() *scene.Scene       { return w.scene }
func (w *World) Codec() *scene.ObjectCodec { return w.codec }
func (w *World) Score() Score              { return *w.score }

// Checksum hashes the replicated state of the world.
func (w *World) Checksum() uint64 {
	return scene.Checksum(w.scene, w.codec)
}

// Logic binds the demo rules to registry.
func (w *World) Logic(registry *command.Registry) (*lockstep.Logic, error) {
	l := lockstep.NewLogic(registry)
	if err := lockstep.On(l, w.spawn); err != nil {
		return nil, err
	}
	if err := lockstep.On(l, w.move); err != nil {
		return nil, err
	}
	if err := lockstep.On(l, w.damage); err != nil {
		return nil, err
	}
	return l, l.Validate()
}

// ApplyTurn runs the commands of turn and then the simulation steps a turn
// spans under config.
func (w *World) ApplyTurn(l *lockstep.Logic, turn lockstep.Turn, config lockstep.Config) error {
	for _, e := range turn.Entries {
		if err := l.Dispatch(e); err != nil {
			return fmt.Errorf("turn %d: %w", turn.Number, err)
		}
	}
	for range config.StepsPerTurn() {
		w.Step(config.SimulationStepDuration)
	}
	return nil
}

// Step moves every unit by its velocity.
func (w *World) Step(dt time.Duration) {
	seconds := float32(dt.Seconds())
	for obj := range w.scene.Objects() {
		v, ok := behaviour.Get[*Velocity](obj.Behaviours)
		if !ok || (v.X == 0 && v.Z == 0) {
			continue
		}
		p := obj.Transform.Position
		p.X = clamp(p.X+v.X*seconds, -arenaHalfSize, arenaHalfSize)
		p.Z = clamp(p.Z+v.Z*seconds, -arenaHalfSize, arenaHalfSize)
		obj.Transform.Position = p
	}
}

func (w *World) spawn(player lockstep.PlayerNumber, cmd *Spawn) error {
	w.scene.Instantiate(TypeUnit, scene.At(clamp(cmd.X, -arenaHalfSize, arenaHalfSize), 0, clamp(cmd.Z, -arenaHalfSize, arenaHalfSize)),
		&Health{Current: unitHealth, Max: unitHealth},
		&Owner{Player: uint8(player)},
		&Velocity{},
	)
	return nil
}

func (w *World) move(player lockstep.PlayerNumber, cmd *Move) error {
	obj, ok := w.scene.Get(scene.ObjectID(cmd.Unit))
	if !ok {
		return nil
	}
	if owner, ok := behaviour.Get[*Owner](obj.Behaviours); !ok || owner.Player != uint8(player) {
		return nil
	}
	if v, ok := behaviour.Get[*Velocity](obj.Behaviours); ok {
		v.X, v.Z = cmd.DX, cmd.DZ
	}
	return nil
}

func (w *World) damage(player lockstep.PlayerNumber, cmd *Damage) error {
	obj, ok := w.scene.Get(scene.ObjectID(cmd.Unit))
	if !ok || cmd.Amount <= 0 {
		return nil
	}
	h, ok := behaviour.Get[*Health](obj.Behaviours)
	if !ok {
		return nil
	}
	h.Current -= cmd.Amount
	if h.Current <= 0 {
		w.scene.Destroy(obj.ID)
		if int(player) < len(w.score.Kills) {
			w.score.Kills[player]++
		}
	}
	return nil
}

func clamp(v, lo, hi float32) float32 {
	return max(lo, min(v, hi))
}

// Factory builds client-side units with their presentation behaviours.
func Factory() scene.Factory {
	return scene.FactoryFunc(func(typ scene.TypeTag) (*scene.GameObject, error) {
		obj := scene.NewGameObject(typ, scene.IdentityTransform())
		if typ == TypeUnit {
			obj.AddBehaviour(&Nameplate{Text: "unit"})
		}
		return obj, nil
	})
}
