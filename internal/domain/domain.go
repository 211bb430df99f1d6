package domain

// VolunteerStatus is the closed set of lifecycle statuses. Lead is assigned by
// an administrator only; no automated rule ever produces it.
type VolunteerStatus string

const (
	StatusProbation VolunteerStatus = "probation"
	StatusActive    VolunteerStatus = "active"
	StatusLead      VolunteerStatus = "lead"
	StatusInactive  VolunteerStatus = "inactive"
)

func (s VolunteerStatus) IsValid() bool {
	switch s {
	case StatusProbation, StatusActive, StatusLead, StatusInactive:
		return true
	}
	return false
}

type EventStatus string

const (
	EventPlanning  EventStatus = "planning"
	EventPublished EventStatus = "published"
	EventCompleted EventStatus = "completed"
	EventCancelled EventStatus = "cancelled"
)

func (s EventStatus) IsValid() bool {
	switch s {
	case EventPlanning, EventPublished, EventCompleted, EventCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed.
func (s EventStatus) Terminal() bool {
	return s == EventCompleted || s == EventCancelled
}

// CanTransition enforces the monotonic forward order planning -> published ->
// completed; cancelled is reachable from any non-terminal state.
func (s EventStatus) CanTransition(to EventStatus) bool {
	if s.Terminal() {
		return false
	}
	switch to {
	case EventCancelled:
		return true
	case EventPublished:
		return s == EventPlanning
	case EventCompleted:
		return s == EventPlanning || s == EventPublished
	}
	return false
}

type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskComplete   TaskStatus = "complete"
)

func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskTodo, TaskInProgress, TaskComplete:
		return true
	}
	return false
}

type EventFormat string

const (
	FormatService    EventFormat = "service_day"
	FormatWorkshop   EventFormat = "workshop"
	FormatFundraiser EventFormat = "fundraiser"
	FormatSocial     EventFormat = "social"
	FormatMeeting    EventFormat = "meeting"
)

func (f EventFormat) IsValid() bool {
	switch f {
	case FormatService, FormatWorkshop, FormatFundraiser, FormatSocial, FormatMeeting:
		return true
	}
	return false
}

// Volunteer is a member of the organization. Commitments counts completed
// tasks inside the current tracking period. PeriodEnd nil means open-ended.
// Timestamps are RFC3339 UTC; period boundaries are date-only (2006-01-02).
type Volunteer struct {
	ID          int64           `json:"id"`
	Handle      string          `json:"handle"`
	Name        string          `json:"name,omitempty"`
	Status      VolunteerStatus `json:"status" enum:"probation,active,lead,inactive"`
	Commitments int             `json:"commitments"`
	PeriodStart string          `json:"period_start"`
	PeriodEnd   *string         `json:"period_end,omitempty"`
	CreatedAt   string          `json:"created_at" format:"date-time"`
	UpdatedAt   string          `json:"updated_at" format:"date-time"`
}

// Event groups tasks. Date nil means the date is still TBD.
type Event struct {
	ID        int64       `json:"id"`
	Title     string      `json:"title"`
	Date      *string     `json:"date,omitempty"`
	Format    EventFormat `json:"format"`
	Status    EventStatus `json:"status" enum:"planning,published,completed,cancelled"`
	Venue     string      `json:"venue,omitempty"`
	Details   string      `json:"details,omitempty"`
	CreatedBy *int64      `json:"created_by,omitempty"`
	CreatedAt string      `json:"created_at" format:"date-time"`
	UpdatedAt string      `json:"updated_at" format:"date-time"`
}

// Task belongs to exactly one event for its lifetime.
type Task struct {
	ID          int64      `json:"id"`
	EventID     int64      `json:"event_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status" enum:"todo,in_progress,complete"`
	CreatedAt   string     `json:"created_at" format:"date-time"`
	UpdatedAt   string     `json:"updated_at" format:"date-time"`
}

// Assignment links a volunteer to a task. AssignedBy is the admin who made
// the assignment; nil for self-service commits.
type Assignment struct {
	ID          int64  `json:"id"`
	TaskID      int64  `json:"task_id"`
	VolunteerID int64  `json:"volunteer_id"`
	AssignedBy  *int64 `json:"assigned_by,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// JournalEntry is one row of the append-only change journal.
type JournalEntry struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// VolunteerRef is the light reference returned by bulk operations.
type VolunteerRef struct {
	ID     int64  `json:"id"`
	Handle string `json:"handle"`
	Name   string `json:"name,omitempty"`
}

func (v Volunteer) Ref() VolunteerRef {
	return VolunteerRef{ID: v.ID, Handle: v.Handle, Name: v.Name}
}
