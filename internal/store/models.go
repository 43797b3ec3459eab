package store

import (
	"strings"
	"time"
)

// Status represents the lifecycle of an analysis session.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether the status is a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Speaker roles assigned during classification. Silence rows carry RoleSilence
// from the moment they are synthesized.
const (
	RoleAdult   = "ADULT"
	RoleChild   = "CHILD"
	RoleSilence = "SILENCE"
)

// Milestone progression states. Promotion is one-way: once achieved, a
// milestone never returns to emerging.
const (
	MilestoneEmerging = "emerging"
	MilestoneAchieved = "achieved"
)

// Session is an analysis session persisted in SQLite.
type Session struct {
	ID               string
	UserRef          string
	ChildID          int64
	Status           Status
	Mode             string
	AudioRef         string
	ChildAgeMonths   int
	ChildGender      string
	Concern          string
	Transcript       string
	DurationSeconds  float64
	DivergenceJSON   string
	TagCountsJSON    string
	OverallScore     *int
	ErrorMessage     string
	RetryCount       int
	LastRetryAt      *time.Time
	PermanentFailure bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Utterance is one row of a session timeline, either speech or a synthesized
// silence marker.
type Utterance struct {
	ID           int64
	SessionID    string
	Seq          int
	Speaker      string
	Role         string
	StartSeconds float64
	EndSeconds   float64
	Text         string
	IsSilence    bool
	Feedback     string
	BehaviorCode string
}

// Child is the longitudinal subject record shared by all sessions of a user.
type Child struct {
	ID           int64
	UserRef      string
	AgeMonths    int
	Gender       string
	BaselineDone bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profiling is one developmental profile snapshot generated from a session.
type Profiling struct {
	ID           int64
	ChildID      int64
	SessionID    string
	AgeMonths    int
	DomainsJSON  string
	CoachingJSON string
	OverallScore int
	CreatedAt    time.Time
}

// Milestone is one entry of the embedded milestone library.
type Milestone struct {
	Key          string
	Domain       string
	Title        string
	Description  string
	MinAgeMonths int
	MaxAgeMonths int
	Threshold    int
}

// ChildMilestone tracks per-child progression against one library milestone.
type ChildMilestone struct {
	ChildID         int64
	MilestoneKey    string
	State           string
	EvidenceCount   int
	FirstObservedAt time.Time
	AchievedAt      *time.Time
	UpdatedAt       time.Time
}

// Achieved reports whether the milestone has been promoted.
func (m ChildMilestone) Achieved() bool {
	return m.State == MilestoneAchieved
}

// HealthSummary describes aggregated session counts per lifecycle state.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Failed     int
}
