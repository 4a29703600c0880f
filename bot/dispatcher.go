package bot

import (
	"fmt"
	"runtime/debug"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/ward-gg/wardbot/common"
)

// Verdict is the outcome of one detector's evaluation of a message.
type Verdict int

const (
	// VerdictNotApplicable means the detector had nothing to say about the event
	VerdictNotApplicable Verdict = iota
	// VerdictHandledStop means the detector claimed the event, later
	// detectors and the command hand-off are skipped
	VerdictHandledStop
	// VerdictHandledContinue means the detector acted on the event but
	// later detectors still run
	VerdictHandledContinue
)

func (v Verdict) String() string {
	switch v {
	case VerdictNotApplicable:
		return "not_applicable"
	case VerdictHandledStop:
		return "handled_stop"
	case VerdictHandledContinue:
		return "handled_continue"
	}
	return fmt.Sprintf("Verdict(%d)", int(v))
}

// Detector inspects a message and may act on it.
type Detector interface {
	Name() string
	Evaluate(evt *MessageEvent) (Verdict, error)
}

// JoinHandler receives member join events, regardless of what the message
// detectors are doing.
type JoinHandler interface {
	OnRejoin(evt *MemberJoinEvent) error
}

// ErrorSink receives errors from detectors and supervised background work
// instead of those errors aborting the pipeline.
type ErrorSink func(source string, err error)

// Dispatcher runs the ordered detector pipeline over inbound events.
// Each event is expected to be dispatched on its own goroutine by the
// gateway layer; Dispatch itself is synchronous.
type Dispatcher struct {
	detectors   []Detector
	joinHandler JoinHandler

	// Unclaimed receives messages no detector stopped on, the hand-off
	// point for the command layer. Optional.
	Unclaimed func(evt *MessageEvent)

	errorSink ErrorSink
}

func NewDispatcher(joinHandler JoinHandler, detectors ...Detector) *Dispatcher {
	return &Dispatcher{
		detectors:   detectors,
		joinHandler: joinHandler,
		errorSink:   defaultErrorSink,
	}
}

// SetErrorSink overrides where detector errors are reported. Should only be
// called during startup.
func (d *Dispatcher) SetErrorSink(sink ErrorSink) {
	d.errorSink = sink
}

// ReportError routes an error from supervised background work to the sink.
func (d *Dispatcher) ReportError(source string, err error) {
	if err == nil {
		return
	}
	d.errorSink(source, err)
}

// DispatchMessage runs the detector pipeline over a message event. The
// first HandledStop verdict short-circuits everything after it, including
// the unclaimed hand-off. A detector error or panic counts as
// NotApplicable and never suppresses the remaining detectors.
func (d *Dispatcher) DispatchMessage(evt *MessageEvent) {
	for _, det := range d.detectors {
		verdict := d.evaluate(det, evt)
		metricsDetectorVerdicts.With(prometheus.Labels{
			"detector": det.Name(),
			"verdict":  verdict.String(),
		}).Inc()

		if verdict == VerdictHandledStop {
			return
		}
	}

	if d.Unclaimed != nil {
		d.Unclaimed(evt)
	}
}

// DispatchJoin hands a member join to the mute lifecycle evasion check,
// never subject to short-circuiting.
func (d *Dispatcher) DispatchJoin(evt *MemberJoinEvent) {
	if d.joinHandler == nil {
		return
	}

	if err := d.joinHandler.OnRejoin(evt); err != nil {
		d.errorSink("member_join", err)
	}
}

func (d *Dispatcher) evaluate(det Detector, evt *MessageEvent) (verdict Verdict) {
	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			d.errorSink(det.Name(), fmt.Errorf("recovered from panic: %v\n%s", r, stack))
			metricsDetectorErrors.With(prometheus.Labels{"detector": det.Name()}).Inc()
			verdict = VerdictNotApplicable
		}
	}()

	verdict, err := det.Evaluate(evt)
	if err != nil {
		d.errorSink(det.Name(), err)
		metricsDetectorErrors.With(prometheus.Labels{"detector": det.Name()}).Inc()
		return VerdictNotApplicable
	}

	return verdict
}

func defaultErrorSink(source string, err error) {
	logger.WithError(err).WithField("detector", source).Error("detector evaluation failed")
}

var logger = common.GetFixedPrefixLogger("dispatcher")

var metricsDetectorVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "wardbot_detector_verdicts_total",
	Help: "Detector evaluations by verdict",
}, []string{"detector", "verdict"})

var metricsDetectorErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "wardbot_detector_errors_total",
	Help: "Detector evaluations that returned an error or panicked",
}, []string{"detector"})
