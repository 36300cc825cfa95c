package replication

import (
	"fmt"
	"time"

	"github.com/zeusync/netsync/internal/core/behaviour"
	"github.com/zeusync/netsync/internal/core/diff"
	"github.com/zeusync/netsync/internal/core/observability/log"
	"github.com/zeusync/netsync/internal/core/protocol"
	"github.com/zeusync/netsync/internal/core/scene"
	"github.com/zeusync/netsync/internal/core/wire"
)

// Hooks are the collaborator callbacks invoked when objects appear in or
// leave the client scene.
type Hooks struct {
	OnInstantiateObject func(obj *scene.GameObject)
	OnDestroyObject     func(obj *scene.GameObject)
}

type tween struct {
	from, to scene.Transform
	elapsed  time.Duration
}

// staged is one decoded entry waiting for the whole update to validate.
type staged struct {
	header entryHeader
	object *scene.GameObject
	fresh  bool
}

// Applier rebuilds the server scene on a client.
//
// It keeps the authoritative copy the server diffs are relative to, and a
// view scene that game code reads. The view holds the objects built by the
// factory, so their local behaviours survive updates. With prediction the
// view transforms tween towards the authoritative ones over one sync
// interval.
type Applier struct {
	config  Config
	codec   *scene.ObjectCodec
	factory scene.Factory
	hooks   Hooks
	logger  log.Log

	auth     *scene.Scene
	view     *scene.Scene
	tweens   map[scene.ObjectID]*tween
	sequence uint64
	synced   bool
	desynced bool
}

func NewApplier(config Config, codec *scene.ObjectCodec, factory scene.Factory, hooks Hooks, logger log.Log) *Applier {
	if logger == nil {
		logger = log.Nop()
	}
	if factory == nil {
		factory = scene.DefaultFactory
	}
	return &Applier{
		config:  config,
		codec:   codec,
		factory: factory,
		hooks:   hooks,
		logger:  logger.With(log.String("component", "replication_applier")),
		auth:    scene.New(),
		view:    scene.New(),
		tweens:  make(map[scene.ObjectID]*tween),
	}
}

// Scene returns the client-visible scene.
func (a *Applier) Scene() *scene.Scene { return a.view }

// Authoritative returns the last state received from the server.
func (a *Applier) Authoritative() *scene.Scene { return a.auth }

// Synced reports whether a baseline has been applied and no protocol error
// happened since.
func (a *Applier) Synced() bool { return a.synced && !a.desynced }

func (a *Applier) Desynced() bool { return a.desynced }

// Apply decodes one scene update payload (without the envelope kind byte).
// The update is applied completely or not at all. A decode failure returns a
// fatal protocol error and puts the applier in the desynced state, where
// incremental updates are dropped until the next baseline.
func (a *Applier) Apply(payload []byte) error {
	r := wire.NewReader(payload)
	header := readUpdateHeader(r)
	if err := r.Err(); err != nil {
		return a.fail(err)
	}

	if !header.Baseline {
		if !a.synced || a.desynced {
			a.logger.Debug("incremental update dropped",
				log.Uint64("sequence", header.Sequence),
				log.Error(ErrDesynced),
			)
			return nil
		}
		if header.Sequence <= a.sequence {
			return nil
		}
	}

	entries, sceneBehaviours, err := a.decode(r, header)
	if err != nil {
		return a.fail(err)
	}

	a.commit(header, entries, sceneBehaviours)
	a.sequence = header.Sequence
	a.synced = true
	a.desynced = false
	return nil
}

func (a *Applier) fail(err error) error {
	perr := classify(err)
	a.desynced = true
	a.logger.Warn("scene update rejected", log.Error(perr))
	return perr
}

func (a *Applier) decode(r *wire.Reader, header updateHeader) ([]staged, *behaviour.Container, error) {
	if header.Count > uint32(r.Remaining()) {
		return nil, nil, fmt.Errorf("%w: %d entries in %d bytes", protocol.ErrMalformedMessage, header.Count, r.Remaining())
	}

	entries := make([]staged, 0, header.Count)
	seen := make(map[scene.ObjectID]bool, header.Count)

	for range header.Count {
		eh := readEntryHeader(r)
		if err := r.Err(); err != nil {
			return nil, nil, err
		}
		if seen[eh.ID] {
			return nil, nil, fmt.Errorf("%w: %d listed twice", ErrDuplicate, eh.ID)
		}
		seen[eh.ID] = true

		prev, known := a.auth.Get(eh.ID)
		entry := staged{header: eh}

		switch eh.Op {
		case OpAdded:
			if known && !header.Baseline {
				return nil, nil, fmt.Errorf("%w: %d", ErrDuplicate, eh.ID)
			}
			var base *scene.GameObject
			if _, inView := a.view.Get(eh.ID); !inView {
				created, err := a.factory.Create(eh.Type)
				if err != nil {
					return nil, nil, protocol.NewProtocolError(protocol.ErrorCodeUnknownTypeTag,
						fmt.Sprintf("object type %d", eh.Type), err)
				}
				base = created
				entry.fresh = true
			}
			entry.object = a.codec.Parse(base, r, nil)

		case OpRemoved:
			if !known || header.Baseline {
				return nil, nil, fmt.Errorf("%w: removed %d", ErrUnknownObject, eh.ID)
			}

		case OpDiff:
			if !known || header.Baseline {
				return nil, nil, fmt.Errorf("%w: diff for %d", ErrUnknownObject, eh.ID)
			}
			obj, err := diff.Decode[*scene.GameObject](a.codec, r, &prev)
			if err != nil {
				return nil, nil, err
			}
			entry.object = obj

		default:
			return nil, nil, fmt.Errorf("%w: %s", ErrUnknownOp, eh.Op)
		}

		if err := r.Err(); err != nil {
			return nil, nil, err
		}
		if entry.object != nil {
			entry.object.ID = eh.ID
			entry.object.Type = eh.Type
		}
		entries = append(entries, entry)
	}

	var sceneBehaviours *behaviour.Container
	if r.ReadBool() {
		if header.Baseline {
			sceneBehaviours = a.codec.Behaviours().DecodeBaseline(r, a.auth.Behaviours)
		} else {
			sceneBehaviours = a.codec.Behaviours().Decode(r, a.auth.Behaviours)
		}
	}
	if err := r.Done(); err != nil {
		return nil, nil, err
	}
	return entries, sceneBehaviours, nil
}

func (a *Applier) commit(header updateHeader, entries []staged, sceneBehaviours *behaviour.Container) {
	if header.Baseline {
		listed := make(map[scene.ObjectID]bool, len(entries))
		for _, e := range entries {
			listed[e.header.ID] = true
		}
		for _, id := range a.view.IDs() {
			if !listed[id] {
				a.destroy(id)
			}
		}
		a.auth = scene.New()
	}

	for _, e := range entries {
		switch e.header.Op {
		case OpAdded:
			if e.fresh {
				a.auth.Replace(e.object.Clone())
				_ = a.view.Insert(e.object)
				if a.hooks.OnInstantiateObject != nil {
					a.hooks.OnInstantiateObject(e.object)
				}
				continue
			}
			a.auth.Replace(e.object)
			a.present(e.object)
		case OpRemoved:
			a.destroy(e.header.ID)
		case OpDiff:
			a.auth.Replace(e.object)
			a.present(e.object)
		}
	}

	if sceneBehaviours != nil {
		a.auth.Behaviours = sceneBehaviours
		a.view.Behaviours.SyncReplicated(sceneBehaviours)
	}
}

// present copies authoritative state onto the view object.
func (a *Applier) present(auth *scene.GameObject) {
	obj, ok := a.view.Get(auth.ID)
	if !ok {
		return
	}
	obj.Behaviours.SyncReplicated(auth.Behaviours)

	if !a.config.EnablePrediction || obj.Transform == auth.Transform {
		obj.Transform = auth.Transform
		delete(a.tweens, auth.ID)
		return
	}
	a.tweens[auth.ID] = &tween{from: obj.Transform, to: auth.Transform}
}

func (a *Applier) destroy(id scene.ObjectID) {
	obj, ok := a.view.Get(id)
	a.auth.Destroy(id)
	delete(a.tweens, id)
	if !ok {
		return
	}
	a.view.Destroy(id)
	if a.hooks.OnDestroyObject != nil {
		a.hooks.OnDestroyObject(obj)
	}
}

// Update advances prediction tweens. Each tween lands exactly on the
// authoritative transform after one sync interval.
func (a *Applier) Update(dt time.Duration) {
	for id, tw := range a.tweens {
		obj, ok := a.view.Get(id)
		if !ok {
			delete(a.tweens, id)
			continue
		}
		tw.elapsed += dt
		f := float32(tw.elapsed) / float32(a.config.SyncInterval)
		obj.Transform = tw.from.Lerp(tw.to, f)
		if f >= 1 {
			delete(a.tweens, id)
		}
	}
}

// Reset forgets all replicated state, as after a reconnect.
func (a *Applier) Reset() {
	for _, id := range a.view.IDs() {
		a.destroy(id)
	}
	a.auth = scene.New()
	a.view.Behaviours.SyncReplicated(nil)
	clear(a.tweens)
	a.sequence = 0
	a.synced = false
	a.desynced = false
}
