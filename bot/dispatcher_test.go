package bot

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDetector struct {
	name    string
	verdict Verdict
	err     error
	panics  bool

	calls int
}

func (d *stubDetector) Name() string { return d.name }

func (d *stubDetector) Evaluate(evt *MessageEvent) (Verdict, error) {
	d.calls++
	if d.panics {
		panic("boom")
	}
	return d.verdict, d.err
}

type stubJoinHandler struct {
	calls int
	err   error
	last  *MemberJoinEvent
}

func (h *stubJoinHandler) OnRejoin(evt *MemberJoinEvent) error {
	h.calls++
	h.last = evt
	return h.err
}

func TestDispatchMessageStopsAtFirstClaim(t *testing.T) {
	first := &stubDetector{name: "first", verdict: VerdictNotApplicable}
	second := &stubDetector{name: "second", verdict: VerdictHandledStop}
	third := &stubDetector{name: "third", verdict: VerdictNotApplicable}

	unclaimedCalls := 0
	d := NewDispatcher(nil, first, second, third)
	d.Unclaimed = func(evt *MessageEvent) { unclaimedCalls++ }

	d.DispatchMessage(&MessageEvent{ID: 1})

	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Equal(t, 0, third.calls, "detectors after a claim must not run")
	assert.Equal(t, 0, unclaimedCalls, "a claimed message never reaches the command hand-off")
}

func TestDispatchMessageContinuePassesThrough(t *testing.T) {
	first := &stubDetector{name: "first", verdict: VerdictHandledContinue}
	second := &stubDetector{name: "second", verdict: VerdictNotApplicable}

	unclaimedCalls := 0
	d := NewDispatcher(nil, first, second)
	d.Unclaimed = func(evt *MessageEvent) { unclaimedCalls++ }

	d.DispatchMessage(&MessageEvent{ID: 1})

	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Equal(t, 1, unclaimedCalls)
}

func TestDispatchMessageErrorCountsAsNotApplicable(t *testing.T) {
	failing := &stubDetector{name: "failing", verdict: VerdictHandledStop, err: errors.New("backend down")}
	after := &stubDetector{name: "after", verdict: VerdictNotApplicable}

	var sunk []string
	d := NewDispatcher(nil, failing, after)
	d.SetErrorSink(func(source string, err error) {
		sunk = append(sunk, source)
	})

	d.DispatchMessage(&MessageEvent{ID: 1})

	assert.Equal(t, 1, after.calls, "a failing detector must not suppress later ones")
	require.Len(t, sunk, 1)
	assert.Equal(t, "failing", sunk[0])
}

func TestDispatchMessagePanicCountsAsNotApplicable(t *testing.T) {
	panicking := &stubDetector{name: "panicking", panics: true}
	after := &stubDetector{name: "after", verdict: VerdictNotApplicable}

	var sunk []error
	d := NewDispatcher(nil, panicking, after)
	d.SetErrorSink(func(source string, err error) {
		sunk = append(sunk, err)
	})

	assert.NotPanics(t, func() {
		d.DispatchMessage(&MessageEvent{ID: 1})
	})

	assert.Equal(t, 1, after.calls)
	require.Len(t, sunk, 1)
	assert.Contains(t, sunk[0].Error(), "boom")
}

func TestDispatchMessageNoDetectors(t *testing.T) {
	unclaimedCalls := 0
	d := NewDispatcher(nil)
	d.Unclaimed = func(evt *MessageEvent) { unclaimedCalls++ }

	d.DispatchMessage(&MessageEvent{ID: 1})
	assert.Equal(t, 1, unclaimedCalls)
}

func TestDispatchJoin(t *testing.T) {
	h := &stubJoinHandler{}
	d := NewDispatcher(h)

	evt := &MemberJoinEvent{UserID: 42, GuildID: 7}
	d.DispatchJoin(evt)

	assert.Equal(t, 1, h.calls)
	assert.Equal(t, evt, h.last)
}

func TestDispatchJoinErrorGoesToSink(t *testing.T) {
	h := &stubJoinHandler{err: errors.New("db gone")}

	var sunk []string
	d := NewDispatcher(h)
	d.SetErrorSink(func(source string, err error) {
		sunk = append(sunk, source)
	})

	d.DispatchJoin(&MemberJoinEvent{UserID: 42})
	require.Len(t, sunk, 1)
	assert.Equal(t, "member_join", sunk[0])
}

func TestDispatchJoinNilHandler(t *testing.T) {
	d := NewDispatcher(nil)
	assert.NotPanics(t, func() {
		d.DispatchJoin(&MemberJoinEvent{UserID: 42})
	})
}
