// Package permissions implements the permissions registry of spec.md §4.4:
// the set of permission identifiers presently installed on the host is the
// mask. Simpler than the applications registry — no per-record state, just
// a set and a symmetric-diff change event.
package permissions

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-ini/ini"
	"github.com/sailjaild/sailjaild/pkg/stringset"
)

// Registry tracks the set of installed permission identifiers.
type Registry struct {
	Dir string
	Ext string

	mask *stringset.Set
}

// New builds an empty registry rooted at dir.
func New(dir, ext string) *Registry {
	return &Registry{Dir: dir, Ext: ext, mask: stringset.New()}
}

// Mask returns the currently installed permission set.
func (r *Registry) Mask() *stringset.Set {
	return r.mask
}

// Rescan enumerates r.Dir for [A-Z]*.<Ext> files (spec.md §6) and recomputes
// the mask. It returns the symmetric difference between the old and new
// mask — the "mask changed" event of spec.md §4.4.
func (r *Registry) Rescan() *stringset.Set {
	entries, _ := os.ReadDir(r.Dir)
	suffix := "." + r.Ext
	next := stringset.New()
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), suffix)
		if name == "" || name[0] < 'A' || name[0] > 'Z' {
			continue
		}
		id := permissionID(filepath.Join(r.Dir, entry.Name()), name)
		next.Add(id)
	}

	diff := stringset.SymmetricDiff(r.mask, next)
	r.mask = next
	return diff
}

// permissionID reads the permission's own Name key if present, falling back
// to the file stem — the on-disk files can be thin (just a marker of
// installation), so a missing Name key is not an error.
func permissionID(path, fallback string) string {
	cfg, err := ini.Load(path)
	if err != nil {
		return fallback
	}
	sec, err := cfg.GetSection("Permission")
	if err != nil {
		return fallback
	}
	if name := sec.Key("Name").String(); name != "" {
		return name
	}
	return fallback
}
