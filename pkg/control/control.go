// Package control implements the policy evaluator of spec.md §4.7 — the
// join between the applications, permissions and users registries and the
// settings store. It is the architectural center of the daemon, grounded on
// pkg/app/app.go's role as the struct that owns and coordinates every other
// long-lived component (there, Config/Log/DockerCommand/Gui; here, the four
// registries plus the settings store).
package control

import (
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/sailjaild/sailjaild/pkg/apperrors"
	"github.com/sailjaild/sailjaild/pkg/applications"
	"github.com/sailjaild/sailjaild/pkg/permissions"
	"github.com/sailjaild/sailjaild/pkg/settings"
	"github.com/sailjaild/sailjaild/pkg/stringset"
	"github.com/sailjaild/sailjaild/pkg/users"
)

// SignalKind identifies the outbound notification shape of spec.md §4.9.
type SignalKind int

const (
	SignalAdded SignalKind = iota
	SignalChanged
	SignalRemoved
)

func (k SignalKind) String() string {
	switch k {
	case SignalAdded:
		return "added"
	case SignalRemoved:
		return "removed"
	default:
		return "changed"
	}
}

// Notification is one entry of the notify pass (spec.md §4.7 pass 5).
type Notification struct {
	ID   string
	Kind SignalKind
}

// Control owns the four registries and the settings store, and runs the
// ordered passes of spec.md §4.7 whenever one of its inputs changes.
// Exclusively owned by the main loop (spec.md §3 "Ownership"): everything
// here runs inline on the single event-loop goroutine, so it carries no
// internal locking of its own (unlike Settings, whose debounce fires off-loop).
type Control struct {
	Apps     *applications.Registry
	Perms    *permissions.Registry
	Users    *users.Registry
	Settings *settings.Store

	Log *logrus.Entry

	// OnNotify is invoked once per identifier at the end of a recomputation,
	// in identifier order (spec.md §5 "Ordering"). Left nil in tests that
	// only want to inspect the returned notifications.
	OnNotify func(Notification)

	known map[string]bool
}

// New wires together a Control instance over already-constructed registries.
func New(apps *applications.Registry, perms *permissions.Registry, usersReg *users.Registry, store *settings.Store, log *logrus.Entry) *Control {
	return &Control{
		Apps:     apps,
		Perms:    perms,
		Users:    usersReg,
		Settings: store,
		Log:      log,
		known:    map[string]bool{},
	}
}

// LookupApplication exposes look-up-application / look-up-appinfo of
// spec.md §4.7 to the service facade.
func (c *Control) LookupApplication(id string) (*applications.Record, bool) {
	return c.Apps.Get(id)
}

// Applications exposes enumerate-applications.
func (c *Control) Applications() []string {
	return c.Apps.All()
}

// CurrentMask exposes current-mask.
func (c *Control) CurrentMask() *stringset.Set {
	return c.Perms.Mask()
}

// ValidUID exposes valid-uid-predicate.
func (c *Control) ValidUID(uid int) bool {
	return c.Users.Valid(uid)
}

// ValidApp exposes valid-app-predicate: an application identifier is valid
// if it has a VALID (not INVALID or DELETED) record.
func (c *Control) ValidApp(id string) bool {
	rec, ok := c.Apps.Get(id)
	return ok && rec.State == applications.StateValid
}

// EffectiveGrant exposes effective-grant-for(uid, app): the current granted
// set, or empty if no setting exists yet (spec.md §4.9).
func (c *Control) EffectiveGrant(uid int, appID string) *stringset.Set {
	b := c.Settings.Bucket(uid)
	return b.Get(appID).Granted.Clone()
}

// Allowed exposes the per-user allowed read.
func (c *Control) Allowed(uid int, appID string) settings.Allowed {
	return c.Settings.Bucket(uid).Get(appID).Allowed
}

// Agreed exposes the per-user agreed read.
func (c *Control) Agreed(uid int, appID string) settings.Agreed {
	return c.Settings.Bucket(uid).Get(appID).Agreed
}

func (c *Control) maskedOrEmpty(appID string) *stringset.Set {
	rec, ok := c.Apps.Get(appID)
	if !ok {
		return stringset.New()
	}
	return rec.Masked
}

// SetAllowed validates (uid, app) and applies set_allowed (spec.md §4.6).
func (c *Control) SetAllowed(uid int, appID string, allowed settings.Allowed) error {
	if !c.ValidUID(uid) {
		return apperrors.Newf(apperrors.KindDenied, "uid %d is not valid", uid)
	}
	if !c.ValidApp(appID) {
		return apperrors.Newf(apperrors.KindDenied, "application %s not found", appID)
	}
	c.Settings.SetAllowed(uid, appID, allowed, c.maskedOrEmpty(appID))
	return nil
}

// SetAgreed validates (uid, app) and applies the agreed setter.
func (c *Control) SetAgreed(uid int, appID string, agreed settings.Agreed) error {
	if !c.ValidUID(uid) {
		return apperrors.Newf(apperrors.KindDenied, "uid %d is not valid", uid)
	}
	if !c.ValidApp(appID) {
		return apperrors.Newf(apperrors.KindDenied, "application %s not found", appID)
	}
	c.Settings.SetAgreed(uid, appID, agreed)
	return nil
}

// SetGranted validates (uid, app) and applies set_granted (spec.md §4.6).
func (c *Control) SetGranted(uid int, appID string, wanted *stringset.Set) error {
	if !c.ValidUID(uid) {
		return apperrors.Newf(apperrors.KindDenied, "uid %d is not valid", uid)
	}
	if !c.ValidApp(appID) {
		return apperrors.Newf(apperrors.KindDenied, "application %s not found", appID)
	}
	c.Settings.SetGranted(uid, appID, wanted, c.maskedOrEmpty(appID))
	return nil
}

// OnPermissionsChanged runs pass 1 and pass 2 of spec.md §4.7: rescans the
// permissions registry, recomputes masked for every application against the
// new mask, then re-applies set_granted(current) for every settings entry.
// Returns the identifiers touched by pass 1 (pass 2 never emits by itself).
func (c *Control) OnPermissionsChanged() *stringset.Set {
	c.Perms.Rescan()
	mask := c.Perms.Mask()

	touched := stringset.New()
	for _, id := range c.Apps.All() {
		rec, ok := c.Apps.Get(id)
		if !ok || rec.State == applications.StateDeleted {
			continue
		}
		newMasked := rec.Requested.FilterIn(mask)
		if stringset.Assign(&rec.Masked, newMasked) {
			touched.Add(id)
		}
	}

	c.remaskAllSettings()
	return touched
}

// OnManifestsChanged runs pass 3 of spec.md §4.7: rescans the applications
// registry, recomputes masked for the changed identifiers, and re-masks the
// settings affected by those identifiers. Returns the union of the registry's
// own diff (name/icon/etc. changes, additions, removals) and any additional
// identifiers whose masked set moved.
func (c *Control) OnManifestsChanged() *stringset.Set {
	diff := c.Apps.Rescan()
	mask := c.Perms.Mask()

	touched := diff.Clone()
	for _, id := range diff.Slice() {
		rec, ok := c.Apps.Get(id)
		var masked *stringset.Set
		if ok && rec.State != applications.StateDeleted {
			masked = rec.Requested.FilterIn(mask)
			if stringset.Assign(&rec.Masked, masked) {
				touched.Add(id)
			}
			masked = rec.Masked
		} else {
			masked = stringset.New()
		}
		c.remaskSettingsForApp(id, masked)
	}
	return touched
}

// OnUsersChanged runs pass 4 of spec.md §4.7: rescans the users registry,
// pruning settings buckets for uids that left the valid range and loading
// buckets (then fully re-masking them) for uids that entered it. Never
// produces an application-level notification.
func (c *Control) OnUsersChanged() *stringset.Set {
	diff := c.Users.Rescan()

	for _, uidStr := range diff.Slice() {
		uid, err := strconv.Atoi(uidStr)
		if err != nil {
			continue
		}
		if c.Users.Valid(uid) {
			c.Settings.Load(uid, c.ValidApp)
			for _, appID := range c.Settings.Bucket(uid).Apps() {
				c.Settings.Remask(uid, appID, c.maskedOrEmpty(appID))
			}
		} else {
			c.Settings.Prune(uid)
		}
	}
	return stringset.New()
}

func (c *Control) remaskAllSettings() {
	for _, uid := range c.Settings.UIDs() {
		b := c.Settings.Bucket(uid)
		for _, appID := range b.Apps() {
			c.Settings.Remask(uid, appID, c.maskedOrEmpty(appID))
		}
	}
}

func (c *Control) remaskSettingsForApp(appID string, masked *stringset.Set) {
	for _, uid := range c.Settings.UIDs() {
		b := c.Settings.Bucket(uid)
		if !b.Has(appID) {
			continue
		}
		c.Settings.Remask(uid, appID, masked)
	}
}

// Notify runs pass 5 of spec.md §4.7: classifies every touched identifier
// as added/changed/removed relative to what was last announced, emits each
// exactly once via OnNotify in identifier order, and returns the resulting
// notifications for callers (e.g. tests) that want them directly.
func (c *Control) Notify(touched *stringset.Set) []Notification {
	ids := touched.Slice()
	sort.Strings(ids)

	out := make([]Notification, 0, len(ids))
	for _, id := range ids {
		rec, ok := c.Apps.Get(id)
		present := ok && rec.State != applications.StateDeleted

		var kind SignalKind
		switch {
		case present && c.known[id]:
			kind = SignalChanged
		case present && !c.known[id]:
			kind = SignalAdded
			c.known[id] = true
		default:
			kind = SignalRemoved
			delete(c.known, id)
		}

		n := Notification{ID: id, Kind: kind}
		out = append(out, n)
		if c.OnNotify != nil {
			c.OnNotify(n)
		}
	}
	return out
}

// Source names the upstream registry whose change triggers a Recompute.
type Source int

const (
	SourcePermissions Source = iota
	SourceManifests
	SourceUsers
)

// Recompute runs the full pass sequence for one kind of upstream change and
// performs the notify pass over the result. It is the single entry point
// the main loop calls per watched event (spec.md §4.7, §5 "Ordering").
func (c *Control) Recompute(src Source) []Notification {
	var touched *stringset.Set
	switch src {
	case SourcePermissions:
		touched = c.OnPermissionsChanged()
	case SourceManifests:
		touched = c.OnManifestsChanged()
	case SourceUsers:
		touched = c.OnUsersChanged()
	default:
		touched = stringset.New()
	}
	return c.Notify(touched)
}
