package captcha

import "fmt"

// State is a step of one solve attempt.
type State int

const (
	StateIdle State = iota
	StateDetecting
	StateNoChallenge
	StateSubmitting
	StateSubmitFailed
	StatePolling
	StatePollFailed
	StatePollTimedOut
	StateTokenReady
	StateInjecting
	StateDone
)

var stateNames = map[State]string{
	StateIdle:         "idle",
	StateDetecting:    "detecting",
	StateNoChallenge:  "no_challenge",
	StateSubmitting:   "submitting",
	StateSubmitFailed: "submit_failed",
	StatePolling:      "polling",
	StatePollFailed:   "poll_failed",
	StatePollTimedOut: "poll_timed_out",
	StateTokenReady:   "token_ready",
	StateInjecting:    "injecting",
	StateDone:         "done",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case StateNoChallenge, StateSubmitFailed, StatePollFailed, StatePollTimedOut, StateDone:
		return true
	}
	return false
}

// Event drives a State forward.
type Event int

const (
	EventStart Event = iota
	EventNoSiteKey
	EventSiteKeyFound
	EventSubmitRejected
	EventSubmitAccepted
	EventNotReady
	EventPollRejected
	EventWaitExhausted
	EventTokenReceived
	EventInject
	EventInjected
)

type transitionKey struct {
	from  State
	event Event
}

var transitions = map[transitionKey]State{
	{StateIdle, EventStart}:                StateDetecting,
	{StateDetecting, EventNoSiteKey}:       StateNoChallenge,
	{StateDetecting, EventSiteKeyFound}:    StateSubmitting,
	{StateSubmitting, EventSubmitRejected}: StateSubmitFailed,
	{StateSubmitting, EventSubmitAccepted}: StatePolling,
	{StatePolling, EventNotReady}:          StatePolling,
	{StatePolling, EventPollRejected}:      StatePollFailed,
	{StatePolling, EventWaitExhausted}:     StatePollTimedOut,
	{StatePolling, EventTokenReceived}:     StateTokenReady,
	{StateTokenReady, EventInject}:         StateInjecting,
	{StateInjecting, EventInjected}:        StateDone,
}

// Transition returns the state reached from s on e. Unknown pairs leave the
// state unchanged and return an error.
func Transition(s State, e Event) (State, error) {
	next, ok := transitions[transitionKey{s, e}]
	if !ok {
		return s, fmt.Errorf("invalid transition from %s on event %d", s, int(e))
	}
	return next, nil
}
