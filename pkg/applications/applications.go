// Package applications implements the applications registry of spec.md §3
// and §4.3: it enumerates manifest files, loads and caches one Record per
// application, and classifies each scan into ADDED/CHANGED/REMOVED/UNCHANGED
// identifiers for Control to act on.
//
// Grounded on lazydocker's pkg/commands/docker.go RefreshContainersAndServices,
// which diffs a freshly observed list against cached state and reports what
// changed; here the "list" is a directory of manifest files instead of
// running containers.
package applications

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sailjaild/sailjaild/pkg/manifest"
	"github.com/sailjaild/sailjaild/pkg/stringset"
)

// State is the application record lifecycle of spec.md §4.10.
type State int

const (
	StateUnset State = iota
	StateValid
	StateInvalid
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateValid:
		return "VALID"
	case StateInvalid:
		return "INVALID"
	case StateDeleted:
		return "DELETED"
	default:
		return "UNSET"
	}
}

// Record is the merged application record of spec.md §3.
type Record struct {
	Id string

	Name       string
	Type       string
	Icon       string
	Exec       string
	NoDisplay  bool
	Service    string
	ObjectPath string
	Method     string

	Organization string
	Application  string

	Requested *stringset.Set
	Masked    *stringset.Set

	State    State
	ModTime  int64
}

// valid reports invariant (i) of spec.md §3: VALID iff parsed without error
// and name/type/exec are present.
func (r *Record) valid() bool {
	return r.Name != "" && r.Type != "" && r.Exec != ""
}

// snapshot captures the fields compared for change detection (invariant I3).
type snapshot struct {
	name, typ, exec, icon, service, objectPath, method, org, app string
	noDisplay                                                    bool
	requested                                                    string
	state                                                        State
}

func (r *Record) snapshot() snapshot {
	return snapshot{
		name: r.Name, typ: r.Type, exec: r.Exec, icon: r.Icon,
		service: r.Service, objectPath: r.ObjectPath, method: r.Method,
		org: r.Organization, app: r.Application,
		noDisplay: r.NoDisplay,
		requested: strings.Join(r.Requested.Slice(), ";"),
		state:     r.State,
	}
}

// Registry holds id -> Record, exclusively owned (per spec.md §3
// "Ownership") by whichever Control instance constructed it.
type Registry struct {
	Dir string
	Ext string

	records map[string]*Record
}

// New builds an empty registry rooted at dir, scanning files with the given
// extension.
func New(dir, ext string) *Registry {
	return &Registry{Dir: dir, Ext: ext, records: make(map[string]*Record)}
}

// Get looks up a record by id. The returned pointer must not be held across
// a suspension point (spec.md §3 "Ownership").
func (r *Registry) Get(id string) (*Record, bool) {
	rec, ok := r.records[id]
	return rec, ok
}

// All returns every known id, sorted for deterministic iteration.
func (r *Registry) All() []string {
	ids := make([]string, 0, len(r.records))
	for id := range r.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Rescan enumerates r.Dir for *.<Ext> files, loads each through the manifest
// loader, and classifies every id touched into ADDED, CHANGED, REMOVED or
// UNCHANGED (spec.md §4.3). It returns the union of ADDED ∪ CHANGED ∪
// REMOVED — the set Control must notify about after its own passes run.
//
// Tie-break: an id cached but absent from the directory is only classified
// REMOVED once its record has already reached StateDeleted, so a single
// transient rename does not both remove and recreate a record in one pass
// (spec.md §4.3 "Tie-breaks").
func (r *Registry) Rescan() (touched *stringset.Set) {
	touched = stringset.New()

	seen := make(map[string]bool)
	entries, _ := os.ReadDir(r.Dir)
	suffix := "." + r.Ext
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), suffix)
		seen[id] = true
		path := filepath.Join(r.Dir, entry.Name())

		cached, exists := r.records[id]
		if exists && cached.State != StateDeleted {
			if info, statErr := os.Stat(path); statErr == nil && info.ModTime().Unix() == cached.ModTime {
				continue // unchanged mtime: skip reparse (spec.md §4.3 "Performance")
			}
		}

		before := snapshot{}
		if exists {
			before = cached.snapshot()
		}

		parsed, ok, loadErr := manifest.Load(path)
		rec := &Record{Id: id}
		if exists {
			rec = cached
		}
		rec.Id = id

		if loadErr != nil || parsed == nil {
			rec.State = StateInvalid
		} else {
			rec.Name = parsed.Name
			rec.Type = parsed.Type
			rec.Icon = parsed.Icon
			rec.Exec = parsed.Exec
			rec.NoDisplay = parsed.NoDisplay
			rec.Service = parsed.Service
			rec.ObjectPath = parsed.ObjectPath
			rec.Method = parsed.Method
			rec.Organization = parsed.Organization
			rec.Application = parsed.Application
			rec.Requested = parsed.Requested
			rec.ModTime = parsed.ModTime
			if ok && rec.valid() {
				rec.State = StateValid
			} else {
				rec.State = StateInvalid
			}
		}
		if rec.Requested == nil {
			rec.Requested = stringset.New()
		}
		if rec.Masked == nil {
			rec.Masked = stringset.New()
		}

		r.records[id] = rec

		if !exists || rec.snapshot() != before {
			touched.Add(id)
		}
	}

	for id, rec := range r.records {
		if seen[id] {
			continue
		}
		if rec.State != StateDeleted {
			// First pass without the manifest: transition to DELETED and
			// notify once (spec.md S5). The record itself is only
			// dropped from the cache on the pass after this one.
			rec.State = StateDeleted
			touched.Add(id)
		} else {
			delete(r.records, id)
		}
	}

	return touched
}

