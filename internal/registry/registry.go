package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"
)

// Registry owns the persisted model: script configs, groups, membership
// and the order ledger. It is the single writer of the backing store.
//
// mu guards the in-memory maps. saveMu serializes every store write,
// including the read-patch-write partial saves, so a narrow save can never
// interleave with a full save and clobber a field it did not touch.
type Registry struct {
	mu   sync.RWMutex
	path string

	scripts    map[string]ScriptConfig
	order      []string          // flat display order of script ids
	groups     map[string]Group
	membership map[string]string // script id -> group id

	// order ledger: bucket key (group id or UngroupedBucket) -> ordered ids
	buckets map[string][]string

	saveMu sync.Mutex
}

func New(path string) *Registry {
	return &Registry{
		path:       path,
		scripts:    make(map[string]ScriptConfig),
		groups:     make(map[string]Group),
		membership: make(map[string]string),
		buckets:    make(map[string][]string),
	}
}

// Load reads the persisted store. Two historical shapes are accepted: the
// current envelope, and a bare map of script configs from before groups
// existed. Missing order buckets are synthesized by lexicographic sort of
// the relevant ids and persisted back.
func (r *Registry) Load() error {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		slog.Info("config store not found, creating empty store", "path", r.path)
		return r.Save()
	}
	if err != nil {
		return fmt.Errorf("read config store: %w", err)
	}

	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("parse config store: %w", err)
	}

	r.mu.Lock()
	synthesized := false
	if rawScripts, ok := root["scripts"]; ok {
		var sf storeFile
		if err := json.Unmarshal(data, &sf); err != nil {
			r.mu.Unlock()
			return fmt.Errorf("parse config store: %w", err)
		}
		if err := json.Unmarshal(rawScripts, &r.scripts); err != nil {
			r.mu.Unlock()
			return fmt.Errorf("parse scripts: %w", err)
		}
		if r.order, err = scanKeyOrder(rawScripts); err != nil {
			r.mu.Unlock()
			return fmt.Errorf("parse script order: %w", err)
		}
		if sf.Groups != nil {
			r.groups = sf.Groups
		}
		if sf.ScriptGroups != nil {
			r.membership = sf.ScriptGroups
		}
		if sf.ScriptOrder != nil {
			r.buckets = sf.ScriptOrder
		}
	} else {
		// Legacy shape: the whole object is the scripts map.
		if err := json.Unmarshal(data, &r.scripts); err != nil {
			r.mu.Unlock()
			return fmt.Errorf("parse legacy config store: %w", err)
		}
		if r.order, err = scanKeyOrder(data); err != nil {
			r.mu.Unlock()
			return fmt.Errorf("parse script order: %w", err)
		}
		r.groups = make(map[string]Group)
		r.membership = make(map[string]string)
		r.buckets = make(map[string][]string)
		synthesized = true
	}
	// Drop memberships pointing at ids or groups that no longer exist.
	for id, gid := range r.membership {
		if _, ok := r.scripts[id]; !ok {
			delete(r.membership, id)
			continue
		}
		if _, ok := r.groups[gid]; !ok {
			delete(r.membership, id)
		}
	}
	synthesized = r.initBucketsLocked() || synthesized
	nScripts, nGroups := len(r.scripts), len(r.groups)
	r.mu.Unlock()

	slog.Info("config store loaded", "scripts", nScripts, "groups", nGroups)
	if synthesized {
		return r.Save()
	}
	return nil
}

// initBucketsLocked fills in any missing order buckets by lexicographic
// sort. Returns true if anything was synthesized.
func (r *Registry) initBucketsLocked() bool {
	changed := false
	for gid := range r.groups {
		if _, ok := r.buckets[gid]; ok {
			continue
		}
		var members []string
		for id, g := range r.membership {
			if g == gid {
				members = append(members, id)
			}
		}
		sort.Strings(members)
		r.buckets[gid] = members
		changed = true
	}
	if _, ok := r.buckets[UngroupedBucket]; !ok {
		var ungrouped []string
		for id := range r.scripts {
			if _, grouped := r.membership[id]; !grouped {
				ungrouped = append(ungrouped, id)
			}
		}
		sort.Strings(ungrouped)
		r.buckets[UngroupedBucket] = ungrouped
		changed = true
	}
	return changed
}

func (r *Registry) snapshotLocked() (storeFile, error) {
	rawScripts, err := marshalScriptsOrdered(r.order, r.scripts)
	if err != nil {
		return storeFile{}, err
	}
	groups := make(map[string]Group, len(r.groups))
	for k, v := range r.groups {
		groups[k] = v
	}
	membership := make(map[string]string, len(r.membership))
	for k, v := range r.membership {
		membership[k] = v
	}
	buckets := make(map[string][]string, len(r.buckets))
	for k, v := range r.buckets {
		buckets[k] = append([]string(nil), v...)
	}
	return storeFile{
		Scripts:      rawScripts,
		Groups:       groups,
		ScriptGroups: membership,
		ScriptOrder:  buckets,
	}, nil
}

// Save rewrites the whole store.
func (r *Registry) Save() error {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()
	return r.saveLocked()
}

// saveLocked snapshots and rewrites the store. The caller holds saveMu;
// the snapshot is taken inside it, so a save can never write state older
// than one that already reached the disk.
func (r *Registry) saveLocked() error {
	r.mu.RLock()
	sf, err := r.snapshotLocked()
	r.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("snapshot config store: %w", err)
	}
	data, err := indentJSON(sf)
	if err != nil {
		return fmt.Errorf("encode config store: %w", err)
	}
	if err := writeFileAtomic(r.path, data); err != nil {
		return fmt.Errorf("write config store: %w", err)
	}
	slog.Debug("config store saved", "path", r.path)
	return nil
}

// SaveScriptOrder rewrites only the scripts member of the store, in the
// current flat display order. Used by the flat list view after a drag
// reorder so concurrent group-order edits on disk are not clobbered.
func (r *Registry) SaveScriptOrder() error {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()
	r.mu.RLock()
	rawScripts, err := marshalScriptsOrdered(r.order, r.scripts)
	r.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode scripts: %w", err)
	}
	return r.patchStoreLocked("scripts", rawScripts)
}

// SaveBucketOrder rewrites only the script_order member of the store.
// Used by grouped views after a drag reorder.
func (r *Registry) SaveBucketOrder() error {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()
	r.mu.RLock()
	buckets := make(map[string][]string, len(r.buckets))
	for k, v := range r.buckets {
		buckets[k] = append([]string(nil), v...)
	}
	r.mu.RUnlock()
	raw, err := json.Marshal(buckets)
	if err != nil {
		return fmt.Errorf("encode script_order: %w", err)
	}
	return r.patchStoreLocked("script_order", raw)
}

// patchStoreLocked performs read-patch-write of a single top-level store
// member. The caller holds saveMu, so the snapshot the patch was built
// from and the write land under one critical section, imposing a total
// order on all store writes. If the store is missing or not yet in
// envelope form, fall back to a full save.
func (r *Registry) patchStoreLocked(key string, value json.RawMessage) error {
	data, err := os.ReadFile(r.path)
	if err == nil {
		var root map[string]json.RawMessage
		if jerr := json.Unmarshal(data, &root); jerr == nil {
			if _, ok := root["scripts"]; ok {
				root[key] = value
				out, merr := indentJSON(root)
				if merr != nil {
					return fmt.Errorf("encode config store: %w", merr)
				}
				if werr := writeFileAtomic(r.path, out); werr != nil {
					return fmt.Errorf("write config store: %w", werr)
				}
				return nil
			}
		}
	}
	return r.saveLocked()
}

// --- scripts ---

func (r *Registry) Script(id string) (ScriptConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.scripts[id]
	return cfg, ok
}

// GroupOf returns the group id a script belongs to; empty means
// ungrouped.
func (r *Registry) GroupOf(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.membership[id]
}

// ScriptIDs returns all script ids in flat display order.
func (r *Registry) ScriptIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// AddScript registers a new script and appends it to the flat order and
// the ungrouped bucket.
func (r *Registry) AddScript(id string, cfg ScriptConfig) error {
	r.mu.Lock()
	if _, ok := r.scripts[id]; ok {
		r.mu.Unlock()
		return ErrScriptExists
	}
	r.scripts[id] = cfg
	r.order = append(r.order, id)
	r.buckets[UngroupedBucket] = append(r.buckets[UngroupedBucket], id)
	r.mu.Unlock()
	slog.Info("script added", "id", id, "name", cfg.Name)
	return r.Save()
}

// UpdateScript replaces the config for an existing id.
func (r *Registry) UpdateScript(id string, cfg ScriptConfig) error {
	r.mu.Lock()
	if _, ok := r.scripts[id]; !ok {
		r.mu.Unlock()
		return ErrScriptNotFound
	}
	r.scripts[id] = cfg
	r.mu.Unlock()
	return r.Save()
}

// SetEnabled flips the enabled flag and returns the new value.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	r.mu.Lock()
	cfg, ok := r.scripts[id]
	if !ok {
		r.mu.Unlock()
		return ErrScriptNotFound
	}
	cfg.Enabled = enabled
	r.scripts[id] = cfg
	r.mu.Unlock()
	return r.Save()
}

// RemoveScript deletes the config plus membership and every order entry.
func (r *Registry) RemoveScript(id string) error {
	r.mu.Lock()
	if _, ok := r.scripts[id]; !ok {
		r.mu.Unlock()
		return ErrScriptNotFound
	}
	delete(r.scripts, id)
	delete(r.membership, id)
	r.order = removeID(r.order, id)
	for key, ids := range r.buckets {
		r.buckets[key] = removeID(ids, id)
	}
	r.mu.Unlock()
	slog.Info("script removed", "id", id)
	return r.Save()
}

// --- groups ---

func (r *Registry) Group(id string) (Group, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[id]
	return g, ok
}

func (r *Registry) CreateGroup(id, name, description string) error {
	r.mu.Lock()
	if _, ok := r.groups[id]; ok {
		r.mu.Unlock()
		return ErrGroupExists
	}
	r.groups[id] = Group{Name: name, Description: description, CreatedAt: time.Now()}
	if _, ok := r.buckets[id]; !ok {
		r.buckets[id] = []string{}
	}
	r.mu.Unlock()
	slog.Info("group created", "id", id, "name", name)
	return r.Save()
}

// UpdateGroup changes name and/or description; nil means leave unchanged.
func (r *Registry) UpdateGroup(id string, name, description *string) error {
	r.mu.Lock()
	g, ok := r.groups[id]
	if !ok {
		r.mu.Unlock()
		return ErrGroupNotFound
	}
	if name != nil {
		g.Name = *name
	}
	if description != nil {
		g.Description = *description
	}
	r.groups[id] = g
	r.mu.Unlock()
	return r.Save()
}

// DeleteGroup reassigns members to ungrouped (appended in bucket order)
// and removes the group's order bucket. Scripts are not deleted.
func (r *Registry) DeleteGroup(id string) error {
	r.mu.Lock()
	if _, ok := r.groups[id]; !ok {
		r.mu.Unlock()
		return ErrGroupNotFound
	}
	moved := append([]string(nil), r.buckets[id]...)
	for sid, gid := range r.membership {
		if gid != id {
			continue
		}
		delete(r.membership, sid)
		if !containsID(moved, sid) {
			moved = append(moved, sid)
		}
	}
	for _, sid := range moved {
		if !containsID(r.buckets[UngroupedBucket], sid) {
			r.buckets[UngroupedBucket] = append(r.buckets[UngroupedBucket], sid)
		}
	}
	delete(r.groups, id)
	delete(r.buckets, id)
	r.mu.Unlock()
	slog.Info("group deleted", "id", id, "reassigned", len(moved))
	return r.Save()
}

// MoveScriptToGroup moves a script into groupID (empty string = ungrouped)
// at position, clamped to [0, len]; a nil position appends.
func (r *Registry) MoveScriptToGroup(id, groupID string, position *int) error {
	r.mu.Lock()
	if _, ok := r.scripts[id]; !ok {
		r.mu.Unlock()
		return ErrScriptNotFound
	}
	if groupID != "" {
		if _, ok := r.groups[groupID]; !ok {
			r.mu.Unlock()
			return ErrGroupNotFound
		}
	}

	oldKey := UngroupedBucket
	if gid, ok := r.membership[id]; ok {
		oldKey = gid
	}
	r.buckets[oldKey] = removeID(r.buckets[oldKey], id)

	targetKey := UngroupedBucket
	if groupID == "" {
		delete(r.membership, id)
	} else {
		r.membership[id] = groupID
		targetKey = groupID
	}

	bucket := r.buckets[targetKey]
	if position != nil && *position >= 0 && *position <= len(bucket) {
		bucket = append(bucket, "")
		copy(bucket[*position+1:], bucket[*position:])
		bucket[*position] = id
	} else {
		bucket = append(bucket, id)
	}
	r.buckets[targetKey] = bucket
	r.mu.Unlock()
	slog.Info("script moved", "id", id, "group", groupID)
	return r.Save()
}

// Reorder replaces a bucket's order. BucketAll reorders the flat script
// list itself. Unknown ids fail the whole operation; ids omitted from the
// submitted list keep their previous relative order and are appended, so a
// stale client cannot drop scripts.
func (r *Registry) Reorder(bucket string, ids []string) error {
	r.mu.Lock()
	for _, id := range ids {
		if _, ok := r.scripts[id]; !ok {
			r.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrScriptNotFound, id)
		}
	}
	flat := bucket == BucketAll
	var prev []string
	if flat {
		prev = r.order
	} else {
		prev = r.buckets[bucket]
	}
	next := append([]string(nil), ids...)
	for _, id := range prev {
		if !containsID(next, id) {
			next = append(next, id)
		}
	}
	if flat {
		r.order = next
	} else {
		r.buckets[bucket] = next
	}
	r.mu.Unlock()
	slog.Info("bucket reordered", "bucket", bucket, "count", len(ids))
	if flat {
		return r.SaveScriptOrder()
	}
	return r.SaveBucketOrder()
}

// UngroupedScripts returns the ungrouped ids in display order, pruning
// stale entries and appending newly ungrouped scripts sorted, as reads
// are the lazy repair point for the ledger.
func (r *Registry) UngroupedScripts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ungroupedLocked()
}

func (r *Registry) ungroupedLocked() []string {
	current := make(map[string]bool)
	for id := range r.scripts {
		if _, grouped := r.membership[id]; !grouped {
			current[id] = true
		}
	}
	ordered := make([]string, 0, len(current))
	for _, id := range r.buckets[UngroupedBucket] {
		if current[id] {
			ordered = append(ordered, id)
			delete(current, id)
		}
	}
	var fresh []string
	for id := range current {
		fresh = append(fresh, id)
	}
	sort.Strings(fresh)
	ordered = append(ordered, fresh...)
	r.buckets[UngroupedBucket] = append([]string(nil), ordered...)
	return ordered
}

// GroupsInfo returns every group with its members in display order,
// pruning ids whose membership no longer matches.
func (r *Registry) GroupsInfo() []GroupInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.groups))
	for gid := range r.groups {
		ids = append(ids, gid)
	}
	sort.Strings(ids)
	infos := make([]GroupInfo, 0, len(ids))
	for _, gid := range ids {
		g := r.groups[gid]
		var members []string
		for _, sid := range r.buckets[gid] {
			if r.membership[sid] == gid {
				members = append(members, sid)
			}
		}
		var fresh []string
		for sid, mgid := range r.membership {
			if mgid == gid && !containsID(members, sid) {
				fresh = append(fresh, sid)
			}
		}
		sort.Strings(fresh)
		members = append(members, fresh...)
		r.buckets[gid] = append([]string(nil), members...)
		infos = append(infos, GroupInfo{
			ID:          gid,
			Name:        g.Name,
			Description: g.Description,
			CreatedAt:   g.CreatedAt,
			ScriptCount: len(members),
			Scripts:     members,
		})
	}
	return infos
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
