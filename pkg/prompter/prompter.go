// Package prompter serialises user-consent prompts (spec.md §4.8). It is
// grounded on pkg/tasks/tasks.go's shape — a mutex-guarded "current task"
// plus a stop/notify channel pair — generalised from "at most one running
// task, cancel-then-replace" to "at most one ACTIVE request, queue the rest,
// let identical requests join the one already in flight".
package prompter

import (
	deadlock "github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"

	"github.com/sailjaild/sailjaild/pkg/apperrors"
	"github.com/sailjaild/sailjaild/pkg/control"
	"github.com/sailjaild/sailjaild/pkg/settings"
)

// Outcome is a request's terminal state (spec.md §4.10).
type Outcome int

const (
	Granted Outcome = iota
	Denied
	Deferred
)

// State is a request's position in the PENDING → ACTIVE → terminal machine.
type State int

const (
	StatePending State = iota
	StateActive
	StateGranted
	StateDenied
	StateDeferred
)

func (s State) terminal() bool {
	return s == StateGranted || s == StateDenied || s == StateDeferred
}

type key struct {
	uid   int
	appID string
}

// request is one in-flight or queued consent request. All waiters for the
// same (uid, app) pair share this struct and its outcome (spec.md §4.8
// "the new request joins the existing one").
type request struct {
	uid   int
	appID string
	state State
	waiters []chan Result
}

// Result is delivered to every waiter of a request once it reaches a
// terminal state.
type Result struct {
	Outcome Outcome
	Err     error
}

// Dispatcher issues the actual consent UI request to the transport layer.
// It is called once per request, exactly when that request becomes ACTIVE.
type Dispatcher func(uid int, appID string)

// Prompter serialises consent prompts: one dispatch in flight at a time.
type Prompter struct {
	Control    *control.Control
	Dispatch   Dispatcher
	Log        *logrus.Entry

	mu      deadlock.Mutex
	queue   []*request
	active  *request
	byKey   map[key]*request
	closed  bool
}

// New builds a Prompter that mutates settings through ctrl and hands off UI
// requests to dispatch.
func New(ctrl *control.Control, dispatch Dispatcher, log *logrus.Entry) *Prompter {
	return &Prompter{
		Control:  ctrl,
		Dispatch: dispatch,
		Log:      log,
		byKey:    map[key]*request{},
	}
}

// Request enqueues a consent prompt for (uid, appID), or joins the existing
// PENDING/ACTIVE request for the same pair if one exists (spec.md §4.8). It
// returns a channel that receives exactly one Result.
func (p *Prompter) Request(uid int, appID string) <-chan Result {
	ch := make(chan Result, 1)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		ch <- Result{Err: apperrors.New(apperrors.KindTransient, "prompter is shut down")}
		return ch
	}

	k := key{uid: uid, appID: appID}
	if existing, ok := p.byKey[k]; ok && !existing.state.terminal() {
		existing.waiters = append(existing.waiters, ch)
		return ch
	}

	req := &request{uid: uid, appID: appID, state: StatePending, waiters: []chan Result{ch}}
	p.byKey[k] = req

	if p.active == nil {
		p.activateLocked(req)
	} else {
		p.queue = append(p.queue, req)
	}
	return ch
}

func (p *Prompter) activateLocked(req *request) {
	req.state = StateActive
	p.active = req
	dispatch := p.Dispatch
	if dispatch != nil {
		go dispatch(req.uid, req.appID)
	}
}

// Resolve completes the currently ACTIVE request for (uid, appID) with
// outcome, applying the settings mutation spec.md §4.8 prescribes, notifies
// every joined waiter, then advances the queue.
func (p *Prompter) Resolve(uid int, appID string, outcome Outcome) error {
	p.mu.Lock()
	active := p.active
	if active == nil || active.uid != uid || active.appID != appID {
		p.mu.Unlock()
		return apperrors.Newf(apperrors.KindConflict, "no active prompt for uid=%d app=%s", uid, appID)
	}
	p.mu.Unlock()

	var settleErr error
	switch outcome {
	case Granted:
		if err := p.Control.SetAllowed(uid, appID, settings.AllowedAlways); err != nil {
			settleErr = err
			break
		}
		if rec, ok := p.Control.LookupApplication(appID); ok {
			settleErr = p.Control.SetGranted(uid, appID, rec.Requested.Clone())
		}
	case Denied:
		settleErr = p.Control.SetAllowed(uid, appID, settings.AllowedNever)
	case Deferred:
		// No settings mutation (spec.md §4.8).
	}

	p.mu.Lock()
	switch outcome {
	case Granted:
		active.state = StateGranted
	case Denied:
		active.state = StateDenied
	default:
		active.state = StateDeferred
	}
	waiters := active.waiters
	delete(p.byKey, key{uid: uid, appID: appID})
	p.active = nil
	p.advanceLocked()
	p.mu.Unlock()

	for _, w := range waiters {
		w <- Result{Outcome: outcome, Err: settleErr}
	}
	return settleErr
}

func (p *Prompter) advanceLocked() {
	if len(p.queue) == 0 {
		return
	}
	next := p.queue[0]
	p.queue = p.queue[1:]
	p.activateLocked(next)
}

// Shutdown fails every pending and active waiter with a transport error,
// without mutating settings (spec.md §4.8, §5 "Cancellation and timeouts").
func (p *Prompter) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	err := apperrors.New(apperrors.KindTransient, "daemon is shutting down")

	all := p.queue
	if p.active != nil {
		all = append(all, p.active)
	}
	for _, req := range all {
		for _, w := range req.waiters {
			w <- Result{Err: err}
		}
	}
	p.queue = nil
	p.active = nil
	p.byKey = map[key]*request{}
}
