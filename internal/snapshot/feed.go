package snapshot

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/resonance-logs/meterd/internal/encounter"
	"github.com/resonance-logs/meterd/internal/model"
	"github.com/resonance-logs/meterd/internal/refdata"
)

// tickGranularity is how often Run polls the throttle/heartbeat clock. It
// is far smaller than any sane update rate so the configured rate, not this
// constant, governs actual emission cadence.
const tickGranularity = 20 * time.Millisecond

// idleHeartbeat forces an aggregate emission at least this often even when
// the configured update rate would otherwise suppress it, so a connected
// client never mistakes a quiet encounter for a dead feed.
const idleHeartbeat = 2 * time.Second

// DefaultUpdateRate is the aggregate-tick throttle used until SetUpdateRate
// is called.
const DefaultUpdateRate = 150 * time.Millisecond

type subKey struct {
	role model.Role
	uid  uint64
}

// Feed derives and throttles the live event stream (C9): a per-hit
// unthrottled path via encounter.Observer, and a throttled aggregate path
// (header, player rows, subscribed skill breakdowns) driven by a dynamic
// golang.org/x/time/rate limiter plus an idle heartbeat, grounded on
// live_main.rs's dynamically-read event_update_rate_ms throttle.
type Feed struct {
	engine *encounter.Engine
	tables *refdata.Tables
	log    *zap.Logger

	out chan LiveEvent

	mu      sync.Mutex
	limiter *rate.Limiter
	subs    map[subKey]struct{}

	lastTick time.Time
}

// NewFeed constructs a Feed reading from engine and emitting to a buffered
// channel. It registers itself as engine's Observer, so constructing two
// Feeds over one Engine silently drops the first's per-hit events — callers
// should keep one Feed per Engine.
func NewFeed(engine *encounter.Engine, tables *refdata.Tables, log *zap.Logger) *Feed {
	if log == nil {
		log = zap.NewNop()
	}
	f := &Feed{
		engine:  engine,
		tables:  tables,
		log:     log,
		out:     make(chan LiveEvent, 256),
		limiter: rate.NewLimiter(rate.Every(DefaultUpdateRate), 1),
		subs:    make(map[subKey]struct{}),
	}
	engine.SetObserver(f)
	return f
}

// Events returns the channel a WebSocket hub (C10) should drain.
func (f *Feed) Events() <-chan LiveEvent { return f.out }

// SetUpdateRate changes the aggregate-tick throttle at runtime, mirroring
// the original's per-iteration re-read of event_update_rate_ms from shared
// config state.
func (f *Feed) SetUpdateRate(d time.Duration) {
	if d <= 0 {
		d = DefaultUpdateRate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limiter.SetLimit(rate.Every(d))
}

// Subscribe adds (role, uid) to the set of actors whose per-skill
// breakdown is pushed on every aggregate tick, per spec.md's
// subscribe_player_skills command.
func (f *Feed) Subscribe(role model.Role, uid uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[subKey{role, uid}] = struct{}{}
}

// Unsubscribe removes a prior Subscribe.
func (f *Feed) Unsubscribe(role model.Role, uid uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, subKey{role, uid})
}

func (f *Feed) subscribed() []subKey {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]subKey, 0, len(f.subs))
	for k := range f.subs {
		out = append(out, k)
	}
	return out
}

func (f *Feed) emit(ev LiveEvent) {
	select {
	case f.out <- ev:
	default:
		f.log.Warn("live event feed full, dropping event", zap.String("type", string(ev.Type)))
	}
}

// Run drives the throttled aggregate tick until ctx is cancelled. Per-hit
// events arrive independently via the Observer callbacks below and need no
// driving loop.
func (f *Feed) Run(ctx context.Context) {
	ticker := time.NewTicker(tickGranularity)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			f.mu.Lock()
			allowed := f.limiter.Allow()
			idle := now.Sub(f.lastTick) >= idleHeartbeat
			f.mu.Unlock()
			if !allowed && !idle {
				continue
			}
			f.mu.Lock()
			f.lastTick = now
			f.mu.Unlock()
			f.tick()
		}
	}
}

func (f *Feed) tick() {
	enc := f.engine.Snapshot()
	nowMs := nowMillis()

	if header := BuildHeaderInfo(enc); header != nil {
		f.emit(LiveEvent{
			Type:      EventEncounterUpdate,
			Data:      EncounterUpdateData{HeaderInfo: header, IsPaused: enc.IsPaused},
			Timestamp: nowMs,
		})
	}

	for _, role := range []model.Role{model.RoleDPS, model.RoleHeal} {
		win := BuildPlayersWindow(enc, role)
		for _, row := range win.PlayerRows {
			f.emit(LiveEvent{
				Type:      EventPlayerUpdate,
				Data:      PlayerUpdateData{PlayerUID: row.UID, PlayerRow: row},
				Timestamp: nowMs,
			})
		}
	}

	for _, k := range f.subscribed() {
		win := BuildSkillsWindow(enc, k.uid, k.role, f.tables)
		f.emit(LiveEvent{
			Type:      EventSkillUpdate,
			Data:      SkillUpdateData{PlayerUID: k.uid, SkillRows: win.SkillRows},
			Timestamp: nowMs,
		})
	}
}

// nowMillis is the one place Run touches wall-clock time for the emitted
// timestamp field, kept separate so it is easy to stub in tests.
var nowMillis = func() int64 { return time.Now().UnixMilli() }

// --- encounter.Observer implementation: unthrottled per-hit events ---

func (f *Feed) OnDamage(attackerUID, defenderUID uint64, skillID uint32, hasSkill bool, value uint64, isCrit, isLucky bool) {
	f.emit(LiveEvent{
		Type: EventNewDamage,
		Data: DamageUpdateData{
			PlayerUID:    attackerUID,
			SkillUID:     int32(skillID),
			DamageAmount: value,
			IsCrit:       isCrit,
			IsLucky:      isLucky,
		},
		Timestamp: nowMillis(),
	})
	_ = defenderUID // defender identity is carried by the aggregate tick, not the per-hit event
}

func (f *Feed) OnHeal(attackerUID, defenderUID uint64, skillID uint32, hasSkill bool, value uint64, isCrit, isLucky bool) {
	f.emit(LiveEvent{
		Type: EventNewHeal,
		Data: HealUpdateData{
			PlayerUID:  attackerUID,
			SkillUID:   int32(skillID),
			HealAmount: value,
			IsCrit:     isCrit,
			IsLucky:    isLucky,
		},
		Timestamp: nowMillis(),
	})
	_ = defenderUID
}

func (f *Feed) OnReset() {
	f.emit(LiveEvent{
		Type:      EventEncounterReset,
		Data:      EncounterUpdateData{HeaderInfo: &HeaderInfo{}, IsPaused: false},
		Timestamp: nowMillis(),
	})
}

func (f *Feed) OnPause(paused bool) {
	t := EventEncounterResume
	if paused {
		t = EventEncounterPause
	}
	f.emit(LiveEvent{
		Type:      t,
		Data:      EncounterUpdateData{HeaderInfo: &HeaderInfo{}, IsPaused: paused},
		Timestamp: nowMillis(),
	})
}
