// Package pipeline wires the capture, flow-identifier, reassembler, frame-
// reader, and wire-dispatch components (C1–C5) into the encounter engine
// (C7), the capture-task hot loop of spec.md §5: one cooperative consumer
// that turns raw captured frames into encounter.Event values.
package pipeline

import (
	"context"
	"time"

	"github.com/google/gopacket"
	"go.uber.org/zap"

	"github.com/resonance-logs/meterd/internal/capture"
	"github.com/resonance-logs/meterd/internal/capture/flowid"
	"github.com/resonance-logs/meterd/internal/encounter"
	"github.com/resonance-logs/meterd/internal/stream/framereader"
	"github.com/resonance-logs/meterd/internal/stream/reassembler"
	"github.com/resonance-logs/meterd/internal/wire"
	"github.com/resonance-logs/meterd/internal/wire/payloads"
)

// batchSize and batchBudget bound how many queued frames the hot loop
// drains before yielding, per spec.md §5's capture-task scheduling model:
// up to 20 packets per iteration, or 20ms, whichever comes first.
const (
	batchSize   = 20
	batchBudget = 20 * time.Millisecond
)

// Pipeline holds the per-process C2–C4 state (one recognized flow at a
// time) and drives a single encounter.Engine.
type Pipeline struct {
	log    *zap.Logger
	engine *encounter.Engine

	flow   *flowid.Identifier
	reasm  *reassembler.Reassembler
	frames *framereader.Reader
}

// New constructs a Pipeline with no recognized flow yet.
func New(linkType gopacket.LayerType, engine *encounter.Engine, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		log:    log,
		engine: engine,
		flow:   flowid.New(linkType, log),
		reasm:  reassembler.New(),
		frames: framereader.New(),
	}
}

// Run drains src.Frames() until ctx is cancelled or the source closes its
// channel, batching up to batchSize frames or batchBudget of wall time per
// iteration before yielding, matching the capture task's coalesced-emit
// scheduling (§5). The live snapshot feed owns the idle-heartbeat timeout
// separately, so this loop only needs to bound batch latency.
func (p *Pipeline) Run(ctx context.Context, src capture.Source) error {
	frames := src.Frames()
	for {
		deadline := time.NewTimer(batchBudget)
		drained := 0
	drain:
		for drained < batchSize {
			select {
			case <-ctx.Done():
				deadline.Stop()
				return ctx.Err()
			case f, ok := <-frames:
				if !ok {
					deadline.Stop()
					return nil
				}
				p.HandleFrame(f)
				drained++
			case <-deadline.C:
				break drain
			}
		}
		deadline.Stop()
	}
}

// HandleFrame decodes one captured link-layer frame through the flow
// identifier, reassembler, frame reader, and wire dispatcher, feeding any
// resulting encounter.Event(s) into the engine. Every stage is infallible
// by design (§4.7.8): a frame that fails to decode, belongs to no
// recognized flow, or yields no complete application frame is silently
// dropped, never interrupting the loop.
func (p *Pipeline) HandleFrame(f capture.Frame) {
	seg, ok := p.flow.Process(f)
	if !ok {
		return
	}
	ts := uint64(time.Now().UnixMilli())

	if seg.IsServerChange {
		p.reasm.Reset(seg.Seq)
		p.frames = framereader.New()
		p.engine.Handle(encounter.Event{Kind: encounter.EventServerChange, TimestampMs: ts})
		return
	}

	if seg.FIN || seg.RST {
		p.reasm.ResetUnknown()
		p.frames = framereader.New()
		return
	}
	if seg.SYN {
		p.reasm.Reset(seg.Seq + 1)
	}

	out, ok := p.reasm.InsertSegment(seg.Seq, seg.Payload)
	if !ok {
		return
	}
	p.frames.Push(out)

	for {
		frame, ok := p.frames.TryNext()
		if !ok {
			break
		}
		for _, nev := range wire.Dispatch(frame) {
			if ev, ok := translate(nev, ts); ok {
				p.engine.Handle(ev)
			}
		}
	}
}

// translate maps a decoded Notify opcode/payload pair onto the engine's
// ingest union (§4.7.1). Opcodes the engine treats as no-ops (§4.5's
// SyncServerTime, SyncNearDeltaInfo, SyncContainerDirtyData) are forwarded
// with an empty payload rather than decoded, since nothing downstream
// reads their fields. A payload that fails to decode is dropped along with
// its event — the next frame is unaffected.
func translate(nev wire.NotifyEvent, timestampMs uint64) (encounter.Event, bool) {
	switch nev.Opcode {
	case wire.OpServerChangeInfo:
		return encounter.Event{Kind: encounter.EventServerChange, TimestampMs: timestampMs}, true

	case wire.OpSyncNearEntities:
		msg, err := payloads.DecodeSyncNearEntities(nev.Payload)
		if err != nil {
			return encounter.Event{}, false
		}
		return encounter.Event{Kind: encounter.EventSyncNearEntities, SyncNearEntities: msg, TimestampMs: timestampMs}, true

	case wire.OpSyncContainerData:
		msg, err := payloads.DecodeSyncContainerData(nev.Payload)
		if err != nil {
			return encounter.Event{}, false
		}
		return encounter.Event{Kind: encounter.EventSyncContainerData, SyncContainerData: msg, TimestampMs: timestampMs}, true

	case wire.OpSyncContainerDirtyData:
		return encounter.Event{Kind: encounter.EventSyncContainerDirtyData, TimestampMs: timestampMs}, true

	case wire.OpSyncServerTime:
		return encounter.Event{Kind: encounter.EventSyncServerTime, TimestampMs: timestampMs}, true

	case wire.OpSyncToMeDeltaInfo:
		msg, err := payloads.DecodeSyncToMeDeltaInfo(nev.Payload)
		if err != nil {
			return encounter.Event{}, false
		}
		return encounter.Event{Kind: encounter.EventSyncToMeDeltaInfo, SyncToMeDeltaInfo: msg, TimestampMs: timestampMs}, true

	case wire.OpSyncNearDeltaInfo:
		return encounter.Event{Kind: encounter.EventSyncNearDeltaInfo, TimestampMs: timestampMs}, true

	default:
		return encounter.Event{}, false
	}
}
