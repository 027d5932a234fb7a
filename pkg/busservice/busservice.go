// Package busservice is the transport-facing facade of spec.md §4.9: it
// exposes Control and Prompter over a godbus/dbus/v5 object, translating
// between the core's native types and the bus wire format at the boundary
// only (spec.md DESIGN NOTES "Dynamic variant dictionary on the wire").
//
// Grounded on pkg/gui/tasks_adapter.go's shape: a thin adapter type holding
// a pointer to the real owner (there, *Gui; here, *control.Control and
// *prompter.Prompter) and re-exposing its operations under the names a
// different caller expects.
package busservice

import (
	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	"github.com/sailjaild/sailjaild/pkg/apperrors"
	"github.com/sailjaild/sailjaild/pkg/applications"
	"github.com/sailjaild/sailjaild/pkg/control"
	"github.com/sailjaild/sailjaild/pkg/prompter"
	"github.com/sailjaild/sailjaild/pkg/settings"
	"github.com/sailjaild/sailjaild/pkg/stringset"
)

const (
	ifaceName = "org.sailfishos.sailjaild.Manager"

	sigApplicationAdded   = "ApplicationAdded"
	sigApplicationChanged = "ApplicationChanged"
	sigApplicationRemoved = "ApplicationRemoved"

	// unknownSentinel is the rendering-only value of DESIGN NOTES
	// "'unknown' sentinel": never a valid identifier or permission.
	unknownSentinel = "unknown"
)

// ValueKind tags the variant dictionary's heterogeneous values (spec.md
// DESIGN NOTES "Dynamic variant dictionary on the wire").
type ValueKind int

const (
	KindString ValueKind = iota
	KindBool
	KindStringSeq
)

// Value is the tagged-sum representation the core builds; it is encoded to
// a dbus.Variant only at the transport boundary, never held internally.
type Value struct {
	Kind ValueKind
	Str  string
	Bool bool
	Seq  []string
}

// Encode converts a Value into its native dbus.Variant.
func (v Value) Encode() dbus.Variant {
	switch v.Kind {
	case KindBool:
		return dbus.MakeVariant(v.Bool)
	case KindStringSeq:
		seq := v.Seq
		if seq == nil {
			seq = []string{}
		}
		return dbus.MakeVariant(seq)
	default:
		return dbus.MakeVariant(v.Str)
	}
}

func strValue(s string) Value {
	if s == "" {
		return Value{Kind: KindString, Str: unknownSentinel}
	}
	return Value{Kind: KindString, Str: s}
}

// Service implements the bus-exported methods of spec.md §4.9 over a
// Control and a Prompter. Conn is nil in tests that exercise the method
// bodies without a live bus connection.
type Service struct {
	Control  *control.Control
	Prompter *prompter.Prompter
	Log      *logrus.Entry

	Conn       *dbus.Conn
	ObjectPath dbus.ObjectPath
}

// New builds a Service. Export must be called separately once Conn is set,
// mirroring pkg/gui/tasks_adapter.go's construction-then-wiring split.
func New(ctrl *control.Control, p *prompter.Prompter, log *logrus.Entry) *Service {
	return &Service{Control: ctrl, Prompter: p, Log: log}
}

// Export registers the service on conn at path, and wires Control's notify
// pass to the three broadcast signals.
func (s *Service) Export(conn *dbus.Conn, path dbus.ObjectPath) error {
	s.Conn = conn
	s.ObjectPath = path
	s.Control.OnNotify = s.emit

	return conn.Export(s, path, ifaceName)
}

func (s *Service) emit(n control.Notification) {
	if s.Conn == nil {
		return
	}
	var signal string
	switch n.Kind {
	case control.SignalAdded:
		signal = sigApplicationAdded
	case control.SignalRemoved:
		signal = sigApplicationRemoved
	default:
		signal = sigApplicationChanged
	}
	if err := s.Conn.Emit(s.ObjectPath, ifaceName+"."+signal, n.ID); err != nil && s.Log != nil {
		s.Log.WithError(err).WithField("id", n.ID).Warn("failed to emit application signal")
	}
}

// EnumerateApplications is a synchronous method of spec.md §4.9.
func (s *Service) EnumerateApplications() ([]string, *dbus.Error) {
	return s.Control.Applications(), nil
}

// GetAppInfo is a synchronous method of spec.md §4.9: returns the merged
// record as a string->variant dictionary, or an empty one for an unknown
// identifier (spec.md §7 "Error handling design").
func (s *Service) GetAppInfo(id string) (map[string]dbus.Variant, *dbus.Error) {
	rec, ok := s.Control.LookupApplication(id)
	out := map[string]dbus.Variant{}
	if !ok {
		return out, nil
	}

	fields := map[string]Value{
		"Id":           strValue(rec.Id),
		"Name":         strValue(rec.Name),
		"Type":         strValue(rec.Type),
		"Icon":         strValue(rec.Icon),
		"Exec":         strValue(rec.Exec),
		"NoDisplay":    {Kind: KindBool, Bool: rec.NoDisplay},
		"Service":      strValue(rec.Service),
		"ObjectPath":   strValue(rec.ObjectPath),
		"Method":       strValue(rec.Method),
		"Organization": strValue(rec.Organization),
		"Application":  strValue(rec.Application),
		"Requested":    {Kind: KindStringSeq, Seq: rec.Requested.Slice()},
		"Masked":       {Kind: KindStringSeq, Seq: rec.Masked.Slice()},
		"Valid":        {Kind: KindBool, Bool: rec.State == applications.StateValid},
	}
	for k, v := range fields {
		out[k] = v.Encode()
	}
	return out, nil
}

// deniedErr translates a *apperrors.Error into the typed dbus error name
// spec.md §7 calls for ("Service translates Denied and Invalid to typed
// transport errors"), switching on the wrapped Kind rather than always
// reporting the same name.
func deniedErr(err error) *dbus.Error {
	if err == nil {
		return nil
	}
	name := "org.sailfishos.sailjaild.Error.Denied"
	if kind, ok := apperrors.KindOf(err); ok {
		switch kind {
		case apperrors.KindInvalid:
			name = "org.sailfishos.sailjaild.Error.Invalid"
		case apperrors.KindNotFound:
			name = "org.sailfishos.sailjaild.Error.NotFound"
		case apperrors.KindTransient:
			name = "org.sailfishos.sailjaild.Error.Transient"
		case apperrors.KindConflict:
			name = "org.sailfishos.sailjaild.Error.Conflict"
		default:
			name = "org.sailfishos.sailjaild.Error.Denied"
		}
	}
	return dbus.NewError(name, []interface{}{err.Error()})
}

// GetGranted queries effective permissions for (uid, app) (spec.md §4.9).
func (s *Service) GetGranted(uid uint32, id string) ([]string, *dbus.Error) {
	return s.Control.EffectiveGrant(int(uid), id).Slice(), nil
}

// GetAllowed reads the per-user allowed lattice value.
func (s *Service) GetAllowed(uid uint32, id string) (int32, *dbus.Error) {
	return int32(s.Control.Allowed(int(uid), id)), nil
}

// SetAllowed writes the per-user allowed lattice value.
func (s *Service) SetAllowed(uid uint32, id string, allowed int32) *dbus.Error {
	return deniedErr(s.Control.SetAllowed(int(uid), id, settings.Allowed(allowed)))
}

// GetAgreed reads the per-user agreed lattice value.
func (s *Service) GetAgreed(uid uint32, id string) (int32, *dbus.Error) {
	return int32(s.Control.Agreed(int(uid), id)), nil
}

// SetAgreed writes the per-user agreed lattice value.
func (s *Service) SetAgreed(uid uint32, id string, agreed int32) *dbus.Error {
	return deniedErr(s.Control.SetAgreed(int(uid), id, settings.Agreed(agreed)))
}

// SetGranted writes the per-user granted set, subject to §4.6 semantics.
func (s *Service) SetGranted(uid uint32, id string, items []string) *dbus.Error {
	return deniedErr(s.Control.SetGranted(int(uid), id, stringset.New(items...)))
}

// Prompt is the asynchronous method of spec.md §4.9: it blocks the calling
// goroutine (godbus dispatches each method call on its own goroutine) until
// the prompter reaches a terminal state for (uid, app), then returns the
// resulting granted set.
func (s *Service) Prompt(uid uint32, id string) ([]string, *dbus.Error) {
	if !s.Control.ValidUID(int(uid)) {
		return nil, deniedErr(apperrors.Newf(apperrors.KindDenied, "uid %d is not valid", uid))
	}
	if !s.Control.ValidApp(id) {
		return nil, deniedErr(apperrors.Newf(apperrors.KindDenied, "application %s not found", id))
	}

	// Already decided: spec.md §7 "prompt for an already-decided
	// application returns the current grant without showing UI".
	if s.Control.Allowed(int(uid), id) != settings.AllowedUnset {
		return s.Control.EffectiveGrant(int(uid), id).Slice(), nil
	}

	result := <-s.Prompter.Request(int(uid), id)
	if result.Err != nil {
		return nil, deniedErr(result.Err)
	}
	return s.Control.EffectiveGrant(int(uid), id).Slice(), nil
}
