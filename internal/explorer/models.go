package explorer

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/api/schemas"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// allowedTransitions encodes the one-directional status flow. Pause/resume
// is the only cycle.
var allowedTransitions = map[Status][]Status{
	StatusIdle:    {StatusRunning},
	StatusRunning: {StatusPaused, StatusCompleted, StatusError},
	StatusPaused:  {StatusRunning},
}

// Stop reasons reported in the terminal result.
const (
	StopCompleted       = "completed"
	StopMaxStepsReached = "max-steps-reached"
	StopError           = "error"
	StopExplicitDone    = "explicit-done"
	// StopPaused is reported when cancellation suspended the session
	// between steps; the checkpoint allows a later resume.
	StopPaused = "paused"
)

// newFindingID mints an id for advisor-observed issues promoted to findings.
func newFindingID() string {
	return uuid.NewString()
}

// Session owns everything durable about one exploration: configuration,
// status, the monotonic step counter, ordered history and the accepted
// finding ids. Only the step state machine mutates it; stores serialize it
// at checkpoints.
type Session struct {
	ID          string        `json:"id"`
	TargetURL   string        `json:"target_url"`
	Goal        string        `json:"goal"`
	MaxSteps    int           `json:"max_steps"`
	MaxDuration time.Duration `json:"max_duration"`

	Status      Status                `json:"status"`
	CurrentStep int                   `json:"current_step"`
	History     []schemas.StepOutcome `json:"history"`
	FindingIDs  []string              `json:"finding_ids"`
	TokenUsage  schemas.TokenUsage    `json:"token_usage"`
	Summary     string                `json:"summary,omitempty"`
	LastError   string                `json:"last_error,omitempty"`

	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession creates an idle session for the target.
func NewSession(targetURL, goal string, maxSteps int, maxDuration time.Duration) *Session {
	now := time.Now()
	return &Session{
		ID:          uuid.NewString(),
		TargetURL:   targetURL,
		Goal:        goal,
		MaxSteps:    maxSteps,
		MaxDuration: maxDuration,
		Status:      StatusIdle,
		StartedAt:   now,
		UpdatedAt:   now,
	}
}

// Transition moves the session to a new status, enforcing the
// one-directional flow (pause/resume excepted).
func (s *Session) Transition(to Status) error {
	for _, allowed := range allowedTransitions[s.Status] {
		if allowed == to {
			s.Status = to
			s.UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("invalid session status transition %s -> %s", s.Status, to)
}

// NextStep advances the monotonic step counter and returns the new value.
func (s *Session) NextStep() int {
	s.CurrentStep++
	s.UpdatedAt = time.Now()
	return s.CurrentStep
}

// AppendOutcome records one executed step, in strict step order.
func (s *Session) AppendOutcome(o schemas.StepOutcome) {
	s.History = append(s.History, o)
	s.UpdatedAt = time.Now()
}

// AddFinding records an accepted finding id.
func (s *Session) AddFinding(id string) {
	s.FindingIDs = append(s.FindingIDs, id)
	s.UpdatedAt = time.Now()
}

// ProgressEvent is the per-step progress notification exposed to the CLI.
type ProgressEvent struct {
	Step          int      `json:"step"`
	URL           string   `json:"url"`
	FindingsCount int      `json:"findings_count"`
	RecentActions []string `json:"recent_actions"`
}

// Result is the terminal outcome of a session, emitted once the machine
// reaches DONE or ERROR.
type Result struct {
	SessionID     string                `json:"session_id"`
	TargetURL     string                `json:"target_url"`
	TotalSteps    int                   `json:"total_steps"`
	Duration      time.Duration         `json:"duration"`
	StoppedReason string                `json:"stopped_reason"`
	Findings      []schemas.Finding     `json:"findings"`
	History       []schemas.StepOutcome `json:"history"`
	TokenUsage    schemas.TokenUsage    `json:"token_usage"`
	Summary       string                `json:"summary,omitempty"`
	Error         string                `json:"error,omitempty"`
}
