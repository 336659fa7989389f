package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// User represents an account with a credit balance.
type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Credits      int       `json:"credits"`
	PasswordHash string    `json:"-"` // Never serialize to JSON
	PasswordSet  bool      `json:"password_set"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Transaction type values written to the credit ledger.
const (
	TxTypePurchase   = "purchase"
	TxTypeAdjustment = "adjustment"
	TxTypeRunCost    = "run_cost"
)

// Transaction is an append-only ledger row explaining a credit mutation.
// Amount is signed: positive for grants, negative for spends.
type Transaction struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Type        string    `json:"type"`
	Amount      int       `json:"amount"`
	ReferenceID *string   `json:"reference_id,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RunStatus is the lifecycle state of an inference run.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// runTransitions defines the allowed run status transitions.
// Terminal statuses (completed, failed) have no outgoing edges;
// a second terminal transition is rejected rather than overwriting.
var runTransitions = map[RunStatus][]RunStatus{
	RunQueued:  {RunRunning, RunCompleted, RunFailed},
	RunRunning: {RunCompleted, RunFailed},
}

// CanTransitionTo reports whether a run may move from s to next.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	for _, allowed := range runTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status has no outgoing transitions.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// Valid reports whether s is a known run status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunQueued, RunRunning, RunCompleted, RunFailed:
		return true
	}
	return false
}

// Run represents one AI-inference invocation. Cost is debited at creation;
// an external worker moves the run to a terminal status.
type Run struct {
	ID          uuid.UUID       `json:"id"`
	WorkflowID  *uuid.UUID      `json:"workflow_id,omitempty"`
	UserID      uuid.UUID       `json:"user_id"`
	Status      RunStatus       `json:"status"`
	Input       json.RawMessage `json:"input,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorMsg    string          `json:"error,omitempty"`
	Cost        int             `json:"cost"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// JobStatus is the lifecycle state of an agent job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobClaimed   JobStatus = "claimed"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// jobTransitions defines the claim protocol: queued -> claimed ->
// {completed, failed}. There is no edge back to queued, so a crashed
// claimant strands the job in claimed (see DESIGN.md).
var jobTransitions = map[JobStatus][]JobStatus{
	JobQueued:  {JobClaimed},
	JobClaimed: {JobCompleted, JobFailed},
}

// CanTransitionTo reports whether a job may move from s to next.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known job status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobQueued, JobClaimed, JobCompleted, JobFailed:
		return true
	}
	return false
}

// Agent job types drained by the background worker.
const (
	JobTypeMarketingCampaign = "marketing_campaign"
	JobTypeChurnCheck        = "churn_check"
	JobTypeWeeklyDigest      = "weekly_digest"
)

// AgentJob is a row in the priority+FIFO background work queue.
type AgentJob struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"type"`
	Status      JobStatus       `json:"status"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Priority    int             `json:"priority"`
	CreatedAt   time.Time       `json:"created_at"`
	ClaimedAt   *time.Time      `json:"claimed_at,omitempty"`
	ClaimedBy   *string         `json:"claimed_by,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorMsg    string          `json:"error,omitempty"`
}

// TicketStatus is the closed set of ticket statuses accepted at the boundary.
type TicketStatus string

const (
	TicketOpen       TicketStatus = "open"
	TicketInProgress TicketStatus = "in_progress"
	TicketClosed     TicketStatus = "closed"
)

// Valid reports whether s is a known ticket status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketOpen, TicketInProgress, TicketClosed:
		return true
	}
	return false
}

// Ticket represents a support ticket scoped to an organization.
type Ticket struct {
	ID          uuid.UUID    `json:"id"`
	OrgID       uuid.UUID    `json:"org_id"`
	CreatedBy   uuid.UUID    `json:"created_by"`
	AssigneeID  *uuid.UUID   `json:"assignee_id,omitempty"`
	Status      TicketStatus `json:"status"`
	Priority    string       `json:"priority"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// TicketComment is an append-only child of a ticket.
type TicketComment struct {
	ID        uuid.UUID `json:"id"`
	TicketID  uuid.UUID `json:"ticket_id"`
	AuthorID  uuid.UUID `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Workflow persists the node/edge graph document of the canvas editor.
// Nodes and edges are opaque JSON; the editor owns their shape.
type Workflow struct {
	ID        uuid.UUID       `json:"id"`
	Owner     uuid.UUID       `json:"owner"`
	Title     string          `json:"title"`
	Nodes     json.RawMessage `json:"nodes"`
	Edges     json.RawMessage `json:"edges"`
	IsPublic  bool            `json:"is_public"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
