package replication

import (
	"maps"
	"slices"
	"time"

	"github.com/zeusync/netsync/internal/core/diff"
	"github.com/zeusync/netsync/internal/core/observability/log"
	"github.com/zeusync/netsync/internal/core/protocol"
	"github.com/zeusync/netsync/internal/core/scene"
	"github.com/zeusync/netsync/internal/core/wire"
)

// Broadcaster owns the last broadcast snapshot of a server scene and pushes
// the difference to every client once per sync interval. Clients that just
// joined or asked for a resync receive a full baseline instead.
type Broadcaster struct {
	config Config
	scene  *scene.Scene
	codec  *scene.ObjectCodec
	sender protocol.Sender
	logger log.Log

	last     *scene.Scene
	elapsed  time.Duration
	sequence uint64

	// conn -> waiting for a baseline
	clients map[protocol.ConnID]bool
}

func NewBroadcaster(config Config, s *scene.Scene, codec *scene.ObjectCodec, sender protocol.Sender, logger log.Log) *Broadcaster {
	if logger == nil {
		logger = log.Nop()
	}
	return &Broadcaster{
		config:  config,
		scene:   s,
		codec:   codec,
		sender:  sender,
		logger:  logger.With(log.String("component", "replication_broadcaster")),
		clients: make(map[protocol.ConnID]bool),
	}
}

func (b *Broadcaster) Scene() *scene.Scene { return b.scene }

func (b *Broadcaster) Sequence() uint64 { return b.sequence }

// AddClient schedules a baseline for conn on the next sync.
func (b *Broadcaster) AddClient(conn protocol.ConnID) {
	b.clients[conn] = true
}

func (b *Broadcaster) RemoveClient(conn protocol.ConnID) {
	delete(b.clients, conn)
}

// Resync schedules a new baseline for a client whose state is no longer
// trusted.
func (b *Broadcaster) Resync(conn protocol.ConnID) {
	if _, ok := b.clients[conn]; ok {
		b.clients[conn] = true
		b.logger.Debug("resync scheduled", log.String("conn", string(conn)))
	}
}

func (b *Broadcaster) Clients() int { return len(b.clients) }

// Update accumulates dt and syncs once SyncInterval has elapsed. At most one
// sync happens per call.
func (b *Broadcaster) Update(dt time.Duration) {
	b.elapsed += dt
	if b.elapsed < b.config.SyncInterval {
		return
	}
	b.elapsed %= b.config.SyncInterval
	b.Flush()
}

// Flush syncs immediately and takes a new snapshot.
func (b *Broadcaster) Flush() {
	b.sequence++

	var incremental, baseline []byte
	if b.last != nil {
		incremental = b.encodeDiff()
	}

	for _, conn := range slices.Sorted(maps.Keys(b.clients)) {
		data := incremental
		if b.clients[conn] {
			if baseline == nil {
				baseline = b.encodeBaseline()
			}
			data = baseline
		}
		if data == nil {
			continue
		}
		if err := b.sender.Send(conn, data); err != nil {
			b.logger.Warn("scene update send failed",
				log.String("conn", string(conn)),
				log.Error(err),
			)
			b.clients[conn] = true
			continue
		}
		b.clients[conn] = false
	}

	b.last = b.scene.Clone()
}

func (b *Broadcaster) encodeBaseline() []byte {
	return protocol.Encode(protocol.KindSceneUpdate, func(w *wire.Writer) {
		updateHeader{Sequence: b.sequence, Baseline: true, Count: uint32(b.scene.Len())}.write(w)
		for obj := range b.scene.Objects() {
			entryHeader{ID: obj.ID, Type: obj.Type, Op: OpAdded}.write(w)
			b.codec.Serialize(obj, nil, w, nil)
		}
		w.WriteBool(true)
		b.codec.Behaviours().EncodeBaseline(w, b.scene.Behaviours)
	})
}

// encodeDiff returns nil when nothing changed since the last snapshot.
func (b *Broadcaster) encodeDiff() []byte {
	body := wire.AcquireWriter()
	defer wire.ReleaseWriter(body)

	var count uint32
	for _, id := range b.changedIDs() {
		cur, inCur := b.scene.Get(id)
		prev, inPrev := b.last.Get(id)
		switch {
		case inCur && !inPrev:
			entryHeader{ID: id, Type: cur.Type, Op: OpAdded}.write(body)
			b.codec.Serialize(cur, nil, body, nil)
		case !inCur && inPrev:
			entryHeader{ID: id, Type: prev.Type, Op: OpRemoved}.write(body)
		default:
			bits := diff.Compute[*scene.GameObject](b.codec, cur, prev)
			if !bits.Any() {
				continue
			}
			entryHeader{ID: id, Type: cur.Type, Op: OpDiff}.write(body)
			bits.Write(body)
			b.codec.Serialize(cur, prev, body, bits)
		}
		count++
	}

	sceneChanged := b.codec.Behaviours().Changed(b.scene.Behaviours, b.last.Behaviours)
	if count == 0 && !sceneChanged {
		return nil
	}

	return protocol.Encode(protocol.KindSceneUpdate, func(w *wire.Writer) {
		updateHeader{Sequence: b.sequence, Count: count}.write(w)
		w.WriteRaw(body.Bytes())
		w.WriteBool(sceneChanged)
		if sceneChanged {
			b.codec.Behaviours().Encode(w, b.scene.Behaviours, b.last.Behaviours)
		}
	})
}

// changedIDs returns the union of current and snapshot ids in order.
func (b *Broadcaster) changedIDs() []scene.ObjectID {
	ids := b.scene.IDs()
	for _, id := range b.last.IDs() {
		if _, ok := b.scene.Get(id); !ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}
