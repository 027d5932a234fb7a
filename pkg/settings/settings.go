// Package settings implements the per-user settings store of spec.md §4.6:
// one file per uid, one group per application identifier, three fields per
// group (Allowed, Agreed, Granted). Writes are coalesced through a single
// shared 1-second debounce timer, grounded on lazydocker's
// pkg/gui/gui.go use of github.com/boz/go-throttle for UI-refresh
// coalescing — here it coalesces disk writes instead of redraws.
package settings

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	throttle "github.com/boz/go-throttle"
	"github.com/go-ini/ini"
	deadlock "github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"

	"github.com/sailjaild/sailjaild/pkg/stringset"
)

// Allowed is the per-app allow lattice of spec.md §3.
type Allowed int

const (
	AllowedUnset Allowed = 0
	AllowedAlways Allowed = 1
	AllowedNever  Allowed = 2
)

// Agreed is the per-app license-agreement lattice of spec.md §3.
type Agreed int

const (
	AgreedUnset Agreed = 0
	AgreedYes   Agreed = 1
	AgreedNo    Agreed = 2
)

// maxWriteAttempts bounds retried writes per uid per session (spec.md
// §4.11), per original settings.c's save-retry behavior.
const maxWriteAttempts = 5

// AppSetting is the per-app settings record of spec.md §3.
type AppSetting struct {
	Allowed Allowed
	Agreed  Agreed
	Granted *stringset.Set
}

func newAppSetting() *AppSetting {
	return &AppSetting{Granted: stringset.New()}
}

// Bucket is one uid's settings, keyed by application identifier.
type Bucket struct {
	uid  int
	apps map[string]*AppSetting
}

// Store is the settings store. Dirty tracking uses go-deadlock's drop-in
// sync.Mutex, matching the teacher's pkg/commands/podman.go/pkg/gui/gui.go
// mutex fields, because the debounce timer fires on a separate goroutine
// from the main loop that mutates settings.
type Store struct {
	Dir string
	Ext string

	Log *logrus.Entry

	mu       deadlock.Mutex
	buckets  map[int]*Bucket
	dirty    map[int]bool
	attempts map[int]int
	exhausted map[int]bool

	debounce  throttle.ThrottleDriver
	interval  time.Duration
}

// New builds an empty store. Call Load for each valid uid at startup, per
// spec.md §4.6 "Load policy".
func New(dir, ext string, interval time.Duration, log *logrus.Entry) *Store {
	s := &Store{
		Dir:       dir,
		Ext:       ext,
		Log:       log,
		buckets:   map[int]*Bucket{},
		dirty:     map[int]bool{},
		attempts:  map[int]int{},
		exhausted: map[int]bool{},
		interval:  interval,
	}
	s.debounce = throttle.ThrottleFunc(interval, true, s.flushDirty)
	return s
}

func (s *Store) path(uid int) string {
	return filepath.Join(s.Dir, "user-"+strconv.Itoa(uid)+"."+s.Ext)
}

// Load reads uid's settings file, if any, dropping groups whose application
// identifier validate() rejects (spec.md §4.6 "Load policy": "groups whose
// application identifier is not currently valid are silently dropped").
//
// Loaded values are merged onto any bucket already held in memory rather
// than replacing the bucket outright. For a group already in memory, the
// Allowed and Agreed fields are merged via dario.cat/mergo with override:
// a non-zero disk value replaces the in-memory one, a zero (unset) disk
// value leaves it as it is. Granted is always replaced by the disk copy.
func (s *Store) Load(uid int, validApp func(appID string) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.buckets[uid]
	if !ok {
		bucket = &Bucket{uid: uid, apps: map[string]*AppSetting{}}
		s.buckets[uid] = bucket
	}

	cfg, err := ini.Load(s.path(uid))
	if err != nil {
		return
	}

	for _, sec := range cfg.Sections() {
		appID := sec.Name()
		if appID == ini.DefaultSection {
			continue
		}
		if validApp != nil && !validApp(appID) {
			continue
		}
		disk := newAppSetting()
		disk.Allowed = Allowed(sec.Key("Allowed").MustInt(0))
		disk.Agreed = Agreed(sec.Key("Agreed").MustInt(0))
		disk.Granted = stringset.New(splitList(sec.Key("Granted").String())...)

		live, exists := bucket.apps[appID]
		if !exists {
			bucket.apps[appID] = disk
			continue
		}
		// mergo only walks the scalar lattice fields here: stringset.Set
		// keeps its internal index unexported, so the granted set is
		// swapped in directly rather than handed to reflection-based merge.
		scalars := struct {
			Allowed Allowed
			Agreed  Agreed
		}{Allowed: live.Allowed, Agreed: live.Agreed}
		diskScalars := struct {
			Allowed Allowed
			Agreed  Agreed
		}{Allowed: disk.Allowed, Agreed: disk.Agreed}
		if err := mergo.Merge(&scalars, diskScalars, mergo.WithOverride); err != nil && s.Log != nil {
			s.Log.WithField("uid", uid).WithField("app", appID).WithError(err).Warn("settings merge on reload failed")
		}
		live.Allowed = scalars.Allowed
		live.Agreed = scalars.Agreed
		live.Granted = disk.Granted
	}
}

// Bucket returns uid's bucket, creating an empty one if absent.
func (s *Store) Bucket(uid int) *Bucket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bucketLocked(uid)
}

func (s *Store) bucketLocked(uid int) *Bucket {
	b, ok := s.buckets[uid]
	if !ok {
		b = &Bucket{uid: uid, apps: map[string]*AppSetting{}}
		s.buckets[uid] = b
	}
	return b
}

// UIDs returns every uid with a bucket currently held in memory.
func (s *Store) UIDs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.buckets))
	for uid := range s.buckets {
		out = append(out, uid)
	}
	return out
}

// Prune removes uid's bucket entirely (spec.md I5: a uid outside the valid
// range has no settings bucket after a user pass).
func (s *Store) Prune(uid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, uid)
	delete(s.dirty, uid)
	delete(s.attempts, uid)
	delete(s.exhausted, uid)
}

// Get returns the (uid, app) setting, creating an empty one on first access
// of a valid pair (spec.md §3 "Lifecycle").
func (b *Bucket) Get(appID string) *AppSetting {
	as, ok := b.apps[appID]
	if !ok {
		as = newAppSetting()
		b.apps[appID] = as
	}
	return as
}

// Apps returns every application identifier with a setting in this bucket.
func (b *Bucket) Apps() []string {
	out := make([]string, 0, len(b.apps))
	for id := range b.apps {
		out = append(out, id)
	}
	return out
}

// Has reports whether appID has a setting in this bucket, without creating
// one as Get would.
func (b *Bucket) Has(appID string) bool {
	_, ok := b.apps[appID]
	return ok
}

func (s *Store) markDirty(uid int) {
	s.mu.Lock()
	s.dirty[uid] = true
	s.mu.Unlock()
	s.debounce.Trigger()
}

// SetAllowed implements the setter semantics of spec.md §4.6:
// set_allowed(ALWAYS) copies the application's current masked set into
// granted; set_allowed(x != ALWAYS) clears granted.
func (s *Store) SetAllowed(uid int, appID string, allowed Allowed, masked *stringset.Set) {
	s.mu.Lock()
	as := s.bucketLocked(uid).Get(appID)
	as.Allowed = allowed
	if allowed == AllowedAlways {
		as.Granted = masked.Clone()
	} else {
		as.Granted = stringset.New()
	}
	s.mu.Unlock()
	s.markDirty(uid)
}

// SetAgreed sets the license-agreement field.
func (s *Store) SetAgreed(uid int, appID string, agreed Agreed) {
	s.mu.Lock()
	s.bucketLocked(uid).Get(appID).Agreed = agreed
	s.mu.Unlock()
	s.markDirty(uid)
}

// SetGranted implements set_granted(S) of spec.md §4.6: S is filtered
// through the current mask before assigning; if allowed != ALWAYS, S is
// first replaced by the empty set (invariant I2). Returns whether the
// granted set actually changed, using the stringset.Assign change-detect
// primitive (R2: idempotent).
func (s *Store) SetGranted(uid int, appID string, wanted *stringset.Set, masked *stringset.Set) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	as := s.bucketLocked(uid).Get(appID)
	if as.Allowed != AllowedAlways {
		wanted = stringset.New()
	}
	filtered := wanted.FilterIn(masked)
	changed := stringset.Assign(&as.Granted, filtered)
	if changed {
		s.dirty[uid] = true
		go s.debounce.Trigger()
	}
	return changed
}

// Remask re-applies set_granted(current) in place for (uid, appID) against
// masked, enforcing invariant §3.ii without emitting a change if the
// intersection did not move. Used by Control's mask/settings passes
// (spec.md §4.7 passes 2-4). Returns whether granted changed.
func (s *Store) Remask(uid int, appID string, masked *stringset.Set) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[uid]
	if !ok {
		return false
	}
	as, ok := b.apps[appID]
	if !ok {
		return false
	}
	if as.Allowed != AllowedAlways {
		changed := as.Granted.Len() != 0
		as.Granted = stringset.New()
		return changed
	}
	filtered := as.Granted.FilterIn(masked)
	return stringset.Assign(&as.Granted, filtered)
}

func splitList(raw string) []string {
	raw = strings.TrimSuffix(strings.TrimSpace(raw), ";")
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

func joinList(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return strings.Join(items, ";") + ";"
}

// flushDirty writes every dirty uid's bucket to disk. It is invoked by the
// throttle at most once per s.interval (spec.md §4.6 "Write policy").
func (s *Store) flushDirty() {
	s.mu.Lock()
	uids := make([]int, 0, len(s.dirty))
	for uid := range s.dirty {
		if s.exhausted[uid] {
			continue
		}
		uids = append(uids, uid)
	}
	s.mu.Unlock()

	for _, uid := range uids {
		if err := s.save(uid); err != nil {
			s.mu.Lock()
			s.attempts[uid]++
			attempts := s.attempts[uid]
			s.mu.Unlock()
			if attempts >= maxWriteAttempts {
				s.mu.Lock()
				s.exhausted[uid] = true
				delete(s.dirty, uid)
				s.mu.Unlock()
				if s.Log != nil {
					s.Log.WithField("uid", uid).WithError(err).Error("giving up on settings write after repeated failures")
				}
			} else if s.Log != nil {
				s.Log.WithField("uid", uid).WithError(err).Warn("settings write failed, will retry")
			}
			continue
		}
		s.mu.Lock()
		delete(s.dirty, uid)
		s.attempts[uid] = 0
		s.mu.Unlock()
	}
}

func (s *Store) save(uid int) error {
	s.mu.Lock()
	b, ok := s.buckets[uid]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	cfg := ini.Empty()
	for appID, as := range b.apps {
		sec, err := cfg.NewSection(appID)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		sec.Key("Allowed").SetValue(strconv.Itoa(int(as.Allowed)))
		sec.Key("Agreed").SetValue(strconv.Itoa(int(as.Agreed)))
		sec.Key("Granted").SetValue(joinList(as.Granted.Slice()))
	}
	s.mu.Unlock()

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}
	tmp := s.path(uid) + ".tmp"
	if err := cfg.SaveTo(tmp); err != nil {
		return err
	}
	return os.Rename(tmp, s.path(uid))
}

// Flush forces an immediate synchronous save of every dirty uid, bypassing
// the debounce. Used at shutdown (spec.md §5 "Cancellation and timeouts":
// "Shutdown drains the debounce by forcing an immediate flush").
func (s *Store) Flush() {
	s.flushDirty()
}

// Close stops the debounce timer, flushing first so no mutation is lost.
func (s *Store) Close() {
	s.Flush()
	s.debounce.Stop()
}
