package captcha

import (
	"strings"
	"time"
)

// Variant distinguishes the checkbox/invisible challenge from the score-based one.
type Variant int

const (
	V2 Variant = iota
	V3
)

func (v Variant) String() string {
	if v == V3 {
		return "v3"
	}
	return "v2"
}

// ParseVariant maps "v3" (any case) to V3 and everything else to V2.
func ParseVariant(s string) Variant {
	if strings.EqualFold(strings.TrimSpace(s), "v3") {
		return V3
	}
	return V2
}

// Descriptor is everything the solving service needs to know about one
// challenge widget. It is derived once per attempt and passed by value.
type Descriptor struct {
	SiteKey    string
	PageURL    string
	Variant    Variant
	Action     string
	MinScore   *float64
	Enterprise bool
	Proxy      string

	// DetectedBy names the detector that found the site key.
	DetectedBy string
}

// SolveRequest is a descriptor on its way to the solving service.
type SolveRequest struct {
	Descriptor  Descriptor
	SubmittedAt time.Time
}

// JobStatus is the lifecycle of a submitted task.
type JobStatus int

const (
	JobPending JobStatus = iota
	JobReady
	JobFailed
	JobTimedOut
)

func (s JobStatus) String() string {
	switch s {
	case JobReady:
		return "ready"
	case JobFailed:
		return "failed"
	case JobTimedOut:
		return "timed_out"
	default:
		return "pending"
	}
}

// SolveJob tracks a task accepted by the solving service. Only the polling
// loop changes its status; Ready, Failed and TimedOut are final.
type SolveJob struct {
	RequestID string
	Status    JobStatus
}

// SolveResult carries the verification token. It is consumed once, by
// injection into the page, and never stored.
type SolveResult struct {
	Token string
}
