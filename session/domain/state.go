package domain

// State is the lifecycle status of a tenant's channel session.
type State string

const (
	StateOffline      State = "OFFLINE" // reported when no session exists
	StateInitializing State = "INITIALIZING"
	StateScanQRCode   State = "SCAN_QR_CODE"
	StateStarting     State = "STARTING"
	StateWorking      State = "WORKING"
	StateReconnecting State = "RECONNECTING"
	StateFailed       State = "FAILED"
)

// States lists every state a live session can be in.
var States = []State{StateInitializing, StateScanQRCode, StateStarting, StateWorking, StateReconnecting, StateFailed}

// EventKind identifies what happened to a session.
type EventKind string

const (
	// provider events
	EventQRIssued     EventKind = "qr_issued"
	EventPaired       EventKind = "paired"
	EventReady        EventKind = "ready"
	EventDisconnected EventKind = "disconnected"
	EventLoggedOut    EventKind = "logged_out"
	EventInitFailed   EventKind = "init_failed"

	// supervisor events
	EventInitTimeout      EventKind = "init_timeout"
	EventProbeFailed      EventKind = "probe_failed"
	EventReinitDue        EventKind = "reinit_due"
	EventRetryDue         EventKind = "retry_due"
	EventLogoutRequested  EventKind = "logout_requested"
	EventRestartRequested EventKind = "restart_requested"
)

// Event is fed to Transition. QRCode is set for EventQRIssued, Err for failures.
type Event struct {
	Kind   EventKind
	QRCode string
	Err    error
}

// Effect is a side effect the supervisor must carry out after a transition.
type Effect string

const (
	EffectStoreQR        Effect = "store_qr"
	EffectClearQR        Effect = "clear_qr"
	EffectStartProbe     Effect = "start_probe"
	EffectStopProbe      Effect = "stop_probe"
	EffectResetFailures  Effect = "reset_failures"
	EffectRecordFailure  Effect = "record_failure"
	EffectScheduleRetry  Effect = "schedule_retry"
	EffectScheduleReinit Effect = "schedule_reinit"
	EffectRemoteLogout   Effect = "remote_logout"
	EffectTeardown       Effect = "teardown"
	EffectClearAuth      Effect = "clear_auth"
	EffectReinit         Effect = "reinit"
)

func in(s State, set ...State) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Transition is the whole session state machine. It is pure: given the current
// state and an event it returns the next state and the ordered side effects.
// Events that do not apply to the current state return (current, nil).
func Transition(current State, evt Event) (State, []Effect) {
	switch evt.Kind {
	case EventQRIssued:
		if in(current, StateInitializing, StateScanQRCode) {
			return StateScanQRCode, []Effect{EffectStoreQR}
		}

	case EventPaired:
		if in(current, StateInitializing, StateScanQRCode) {
			return StateStarting, []Effect{EffectClearQR}
		}

	case EventReady:
		if in(current, StateInitializing, StateScanQRCode, StateStarting, StateReconnecting) {
			return StateWorking, []Effect{EffectClearQR, EffectResetFailures, EffectStartProbe}
		}

	case EventDisconnected:
		if in(current, StateScanQRCode, StateStarting, StateWorking) {
			return StateReconnecting, []Effect{EffectStopProbe, EffectClearQR, EffectScheduleReinit}
		}

	case EventProbeFailed:
		if current == StateWorking {
			return StateReconnecting, []Effect{EffectStopProbe, EffectScheduleReinit}
		}

	case EventInitFailed, EventInitTimeout:
		if in(current, StateInitializing, StateScanQRCode, StateStarting) {
			return StateFailed, []Effect{EffectClearQR, EffectTeardown, EffectRecordFailure, EffectScheduleRetry}
		}

	case EventReinitDue:
		if current == StateReconnecting {
			return StateInitializing, []Effect{EffectTeardown, EffectReinit}
		}

	case EventRetryDue:
		if current == StateFailed {
			return StateInitializing, []Effect{EffectReinit}
		}

	case EventLoggedOut:
		return StateInitializing, []Effect{EffectStopProbe, EffectClearQR, EffectTeardown, EffectClearAuth, EffectReinit}

	case EventLogoutRequested:
		return StateInitializing, []Effect{EffectStopProbe, EffectClearQR, EffectRemoteLogout, EffectTeardown, EffectClearAuth, EffectReinit}

	case EventRestartRequested:
		return StateInitializing, []Effect{EffectStopProbe, EffectClearQR, EffectTeardown, EffectClearAuth, EffectReinit}
	}

	return current, nil
}
