// Package manifest parses a single application manifest file: a desktop
// entry augmented with sandbox metadata (spec.md §4.2). It mirrors
// appinfo.c's app_info_update_from_file, reworked into idiomatic Go as a
// pure parse function returning a typed Record plus a Validity outcome.
//
// The loader never panics on structural noise in the file; it reports
// Invalid when the mandatory {Name, Type, Exec} triple is incomplete, and
// NotFound when the file itself is gone.
package manifest

import (
	"os"
	"strings"

	"github.com/go-ini/ini"
	"github.com/sailjaild/sailjaild/pkg/apperrors"
	"github.com/sailjaild/sailjaild/pkg/stringset"
)

const (
	sectionDesktopEntry = "Desktop Entry"
	sectionSailjailX    = "X-Sailjail"
	sectionSailjail     = "Sailjail"
)

// Record is the raw content of one manifest file, before any masking or
// per-user policy is applied. Keyed externally by manifest stem (the
// Applications registry assigns Id).
type Record struct {
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
	Requested    *stringset.Set

	// ModTime is the manifest file's modification time as reported by the
	// filesystem, used by the applications registry to skip reparsing an
	// unchanged file (spec.md §4.3 "Performance").
	ModTime int64
}

// Load reads and parses the manifest at path. It returns apperrors with
// KindNotFound when the file does not exist (errno ENOENT, per spec.md
// §4.2), and a Record with ok=false when the file exists but is missing the
// mandatory {Name, Type, Exec} triple. A successfully parsed, complete
// manifest returns ok=true.
func Load(path string) (rec *Record, ok bool, err error) {
	info, statErr := os.Stat(path)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return nil, false, apperrors.Newf(apperrors.KindNotFound, "manifest %s: no such entry", path)
		}
		return nil, false, apperrors.Newf(apperrors.KindTransient, "stat %s: %v", path, statErr)
	}

	cfg, loadErr := ini.LoadSources(ini.LoadOptions{AllowNonUniqueSections: false}, path)
	if loadErr != nil {
		// The source can't be read as a key/value file at all; this is
		// INVALID, not a hard failure of the pass (spec.md §4.2).
		return &Record{}, false, nil
	}

	rec = &Record{ModTime: info.ModTime().Unix()}

	if sec, err := cfg.GetSection(sectionDesktopEntry); err == nil {
		rec.Name = sec.Key("Name").String()
		rec.Type = sec.Key("Type").String()
		rec.Icon = sec.Key("Icon").String()
		rec.Exec = sec.Key("Exec").String()
		rec.NoDisplay = sec.HasKey("NoDisplay") && sec.Key("NoDisplay").MustBool(false)
		rec.Service = sec.Key("X-Maemo-Service").String()
		rec.ObjectPath = sec.Key("X-Maemo-Object-Path").String()
		rec.Method = sec.Key("X-Maemo-Method").String()
	}

	// "primary shadows secondary wholesale": consult Sailjail only when
	// X-Sailjail is entirely absent from the file (spec.md DESIGN NOTES,
	// Open Question — the other interpretation is not implemented without
	// evidence).
	sandboxSection, err := cfg.GetSection(sectionSailjailX)
	if err != nil {
		sandboxSection, err = cfg.GetSection(sectionSailjail)
	}
	if err == nil {
		rec.Organization = sandboxSection.Key("OrganizationName").String()
		rec.Application = sandboxSection.Key("ApplicationName").String()
		perms := sandboxSection.Key("Permissions").String()
		rec.Requested = stringset.New(splitPermissions(perms)...)
	} else {
		rec.Requested = stringset.New()
	}

	complete := rec.Name != "" && rec.Type != "" && rec.Exec != ""
	return rec, complete, nil
}

func splitPermissions(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
