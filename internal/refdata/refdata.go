// Package refdata holds the read-only, lazily-loaded lookup tables the
// encounter engine uses to render ids as display names: skills, monsters,
// scenes, and buffs. Tables are loaded once from JSON files under a
// meter-data directory and can be hot-reloaded via fsnotify.
package refdata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Tables is the thread-safe, hot-reloadable set of reference lookups.
type Tables struct {
	dir string
	log *zap.Logger

	mu       sync.RWMutex
	skills   map[int32]string
	monsters map[int32]string
	bosses   map[int32]struct{}
	scenes   map[int32]string
	buffs    map[int32]string

	watcher *fsnotify.Watcher
}

// Load reads all reference JSON files from dir. Missing files are
// tolerated — the corresponding table is simply empty, and lookups fall
// back to an "Unknown ..." rendering.
func Load(dir string, log *zap.Logger) (*Tables, error) {
	t := &Tables{dir: dir, log: log}
	if err := t.reloadAll(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tables) reloadAll() error {
	skills, err := loadIDNameJSON(filepath.Join(t.dir, "SkillName.json"))
	if err != nil {
		return fmt.Errorf("load skill names: %w", err)
	}
	monsters, bosses, err := loadMonsterJSON(filepath.Join(t.dir, "MonsterName.json"))
	if err != nil {
		return fmt.Errorf("load monster names: %w", err)
	}
	scenes, err := loadIDNameJSON(filepath.Join(t.dir, "SceneName.json"))
	if err != nil {
		return fmt.Errorf("load scene names: %w", err)
	}
	buffs, err := loadBuffJSON(filepath.Join(t.dir, "BuffName.json"))
	if err != nil {
		return fmt.Errorf("load buff names: %w", err)
	}

	t.mu.Lock()
	t.skills, t.monsters, t.bosses, t.scenes, t.buffs = skills, monsters, bosses, scenes, buffs
	t.mu.Unlock()
	return nil
}

// loadIDNameJSON decodes a flat {"<id>": "<name>"} object, skipping keys
// that don't parse as an integer id.
func loadIDNameJSON(path string) (map[int32]string, error) {
	out := make(map[int32]string)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	var obj map[string]string
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	for k, v := range obj {
		id, err := strconv.ParseInt(k, 10, 32)
		if err != nil {
			continue
		}
		out[int32(id)] = v
	}
	return out, nil
}

// monsterEntry holds both the non-boss name table and a parallel boss
// subset; boss membership is key presence in the boss map, not a flag.
type monsterEntry struct {
	Name   string `json:"name"`
	IsBoss bool   `json:"is_boss"`
}

func loadMonsterJSON(path string) (map[int32]string, map[int32]struct{}, error) {
	names := make(map[int32]string)
	bosses := make(map[int32]struct{})
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return names, bosses, nil
	}
	if err != nil {
		return nil, nil, err
	}
	var obj map[string]monsterEntry
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, nil, err
	}
	for k, v := range obj {
		id, err := strconv.ParseInt(k, 10, 32)
		if err != nil {
			continue
		}
		names[int32(id)] = v.Name
		if v.IsBoss {
			bosses[int32(id)] = struct{}{}
		}
	}
	return names, bosses, nil
}

// buffTableEntry mirrors the nested shape of BuffName.json: a manual
// override takes priority over the AI-generated English short name, which
// in turn takes priority over the Chinese short name.
type buffTableEntry struct {
	ChineseShort   string `json:"ChineseShort"`
	AIEnglishShort string `json:"AIEnglishShort"`
}

type buffEntry struct {
	BuffTable      *buffTableEntry `json:"BuffTable_Clean.json"`
	ManualOverride string          `json:"EnglishShortManualOverride"`
}

func loadBuffJSON(path string) (map[int32]string, error) {
	out := make(map[int32]string)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	var obj map[string]buffEntry
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	for k, entry := range obj {
		id, err := strconv.ParseInt(k, 10, 32)
		if err != nil {
			continue
		}
		name := entry.ManualOverride
		if name == "" && entry.BuffTable != nil {
			if entry.BuffTable.AIEnglishShort != "" {
				name = entry.BuffTable.AIEnglishShort
			} else {
				name = entry.BuffTable.ChineseShort
			}
		}
		if name != "" {
			out[int32(id)] = name
		}
	}
	return out, nil
}

// Skill returns the skill name for id, or false on a miss.
func (t *Tables) Skill(id int32) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	name, ok := t.skills[id]
	return name, ok
}

// Monster returns the monster display name for id, or false on a miss.
func (t *Tables) Monster(id int32) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	name, ok := t.monsters[id]
	return name, ok
}

// IsBoss reports whether monster_type_id is a member of the boss id set.
func (t *Tables) IsBoss(monsterTypeID int32) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.bosses[monsterTypeID]
	return ok
}

// Scene returns the scene name for id, or false on a miss.
func (t *Tables) Scene(id int32) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	name, ok := t.scenes[id]
	return name, ok
}

// Buff returns the buff name for id, or false on a miss.
func (t *Tables) Buff(id int32) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	name, ok := t.buffs[id]
	return name, ok
}

// SkillOrUnknown renders the skill name, falling back to the engine's
// "Unknown Skill (<id>)" convention on a miss.
func (t *Tables) SkillOrUnknown(id int32) string {
	if name, ok := t.Skill(id); ok {
		return name
	}
	return fmt.Sprintf("Unknown Skill (%d)", id)
}

// MonsterOrUnknown renders the monster name, falling back to "Unknown
// Monster (<id>)" on a miss.
func (t *Tables) MonsterOrUnknown(id int32) string {
	if name, ok := t.Monster(id); ok {
		return name
	}
	return fmt.Sprintf("Unknown Monster (%d)", id)
}

// Reload re-reads all reference JSON files from disk, replacing the tables
// atomically. Safe to call concurrently with lookups.
func (t *Tables) Reload() error {
	return t.reloadAll()
}

// WatchReload starts an fsnotify watch on the reference directory and
// triggers Reload on every write event, logging failures rather than
// propagating them (a stale table is preferable to crashing ingestion).
func (t *Tables) WatchReload() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create reference-table watcher: %w", err)
	}
	if err := w.Add(t.dir); err != nil {
		w.Close()
		return fmt.Errorf("watch reference directory %s: %w", t.dir, err)
	}
	t.watcher = w

	go func() {
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := t.reloadAll(); err != nil {
					t.log.Warn("reference table reload failed", zap.Error(err))
					continue
				}
				t.log.Info("reference tables reloaded", zap.String("file", event.Name))
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				t.log.Warn("reference table watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

// Close stops the hot-reload watcher, if one was started.
func (t *Tables) Close() error {
	if t.watcher == nil {
		return nil
	}
	return t.watcher.Close()
}
