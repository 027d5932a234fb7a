package settings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sailjaild/sailjaild/pkg/stringset"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(t.TempDir(), "settings", time.Hour, nil)
	t.Cleanup(func() { s.debounce.Stop() })
	return s
}

func TestSetAllowedAlwaysCopiesMaskedIntoGranted(t *testing.T) {
	s := newTestStore(t)
	masked := stringset.New("Internet", "Contacts")

	s.SetAllowed(100000, "app.one", AllowedAlways, masked)

	as := s.Bucket(100000).Get("app.one")
	assert.Equal(t, AllowedAlways, as.Allowed)
	assert.True(t, stringset.Equal(masked, as.Granted))
}

func TestSetAllowedNeverClearsGranted(t *testing.T) {
	s := newTestStore(t)
	masked := stringset.New("Internet")
	s.SetAllowed(100000, "app.one", AllowedAlways, masked)

	s.SetAllowed(100000, "app.one", AllowedNever, masked)

	as := s.Bucket(100000).Get("app.one")
	assert.Equal(t, AllowedNever, as.Allowed)
	assert.Equal(t, 0, as.Granted.Len())
}

func TestSetGrantedRequiresAllowedAlways(t *testing.T) {
	// I2: allowed != ALWAYS => granted stays empty regardless of request.
	s := newTestStore(t)
	masked := stringset.New("Internet", "Contacts")

	changed := s.SetGranted(100000, "app.one", stringset.New("Internet"), masked)

	assert.False(t, changed)
	assert.Equal(t, 0, s.Bucket(100000).Get("app.one").Granted.Len())
}

func TestSetGrantedFiltersThroughMask(t *testing.T) {
	// R3 exercised through the store: requesting an unmasked permission is
	// dropped.
	s := newTestStore(t)
	masked := stringset.New("Internet", "Contacts")
	s.SetAllowed(100000, "app.one", AllowedAlways, masked)

	changed := s.SetGranted(100000, "app.one", stringset.New("Internet", "Bluetooth"), masked)

	assert.True(t, changed)
	granted := s.Bucket(100000).Get("app.one").Granted
	assert.True(t, granted.Contains("Internet"))
	assert.False(t, granted.Contains("Bluetooth"))
}

func TestSetGrantedIsIdempotent(t *testing.T) {
	// R2: calling set_granted again with the same effective set reports no
	// change.
	s := newTestStore(t)
	masked := stringset.New("Internet")
	s.SetAllowed(100000, "app.one", AllowedAlways, masked)

	s.SetGranted(100000, "app.one", stringset.New("Internet"), masked)
	changed := s.SetGranted(100000, "app.one", stringset.New("Internet"), masked)

	assert.False(t, changed)
}

func TestRemaskShrinksGrantedWhenMaskShrinks(t *testing.T) {
	// B3: a mask shrink removes a granted item with exactly one change.
	s := newTestStore(t)
	masked := stringset.New("Internet", "Contacts")
	s.SetAllowed(100000, "app.one", AllowedAlways, masked)

	shrunk := stringset.New("Internet")
	changed := s.Remask(100000, "app.one", shrunk)

	assert.True(t, changed)
	granted := s.Bucket(100000).Get("app.one").Granted
	assert.True(t, granted.Contains("Internet"))
	assert.False(t, granted.Contains("Contacts"))

	// A second remask against the same mask is idempotent.
	assert.False(t, s.Remask(100000, "app.one", shrunk))
}

func TestRemaskClearsGrantedWhenNotAllowedAlways(t *testing.T) {
	s := newTestStore(t)
	masked := stringset.New("Internet")
	s.SetAllowed(100000, "app.one", AllowedNever, masked)
	// Directly poke a nonzero Granted to simulate stale state.
	s.Bucket(100000).Get("app.one").Granted = stringset.New("Internet")

	changed := s.Remask(100000, "app.one", masked)
	assert.True(t, changed)
	assert.Equal(t, 0, s.Bucket(100000).Get("app.one").Granted.Len())
}

func TestRemaskUnknownBucketOrAppIsNoop(t *testing.T) {
	s := newTestStore(t)
	assert.False(t, s.Remask(999, "nope", stringset.New()))
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	// R1: save/reload equivalence after re-masking.
	s := newTestStore(t)
	masked := stringset.New("Internet", "Contacts")
	s.SetAllowed(100000, "app.one", AllowedAlways, masked)
	s.SetAgreed(100000, "app.one", AgreedYes)
	s.Flush()

	reloaded := New(s.Dir, s.Ext, time.Hour, nil)
	t.Cleanup(func() { reloaded.debounce.Stop() })
	reloaded.Load(100000, func(appID string) bool { return appID == "app.one" })

	as := reloaded.Bucket(100000).Get("app.one")
	assert.Equal(t, AllowedAlways, as.Allowed)
	assert.Equal(t, AgreedYes, as.Agreed)
	assert.True(t, stringset.Equal(masked, as.Granted))
}

func TestLoadDropsInvalidApps(t *testing.T) {
	s := newTestStore(t)
	s.SetAllowed(100000, "stale.app", AllowedAlways, stringset.New("Internet"))
	s.Flush()

	reloaded := New(s.Dir, s.Ext, time.Hour, nil)
	t.Cleanup(func() { reloaded.debounce.Stop() })
	reloaded.Load(100000, func(appID string) bool { return false })

	assert.False(t, reloaded.Bucket(100000).Has("stale.app"))
}

func TestLoadMergesOntoInMemoryBucketKeepsAllowed(t *testing.T) {
	s := newTestStore(t)
	masked := stringset.New("Internet")
	s.SetAllowed(100000, "app.one", AllowedAlways, masked)
	s.Flush()

	// Simulate an in-memory mutation that raced ahead of the on-disk value;
	// Load merges onto the existing group rather than recreating it.
	live := s.Bucket(100000).Get("app.one")
	live.Granted = stringset.New("Internet", "Contacts")

	s.Load(100000, func(appID string) bool { return true })

	as := s.Bucket(100000).Get("app.one")
	assert.Equal(t, AllowedAlways, as.Allowed)
}

func TestPruneRemovesBucketEntirely(t *testing.T) {
	// I5: uid out of range => no settings bucket.
	s := newTestStore(t)
	s.SetAllowed(100000, "app.one", AllowedAlways, stringset.New())
	s.Prune(100000)

	assert.False(t, s.Bucket(100000).Has("app.one"))
}

func TestUIDsReflectsLiveBuckets(t *testing.T) {
	s := newTestStore(t)
	s.Bucket(100000)
	s.Bucket(100001)

	uids := s.UIDs()
	assert.ElementsMatch(t, []int{100000, 100001}, uids)
}
