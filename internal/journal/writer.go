package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Writer appends journal entries inside the caller's transaction so the
// journal never disagrees with the mutation it records.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type Payload map[string]any

// Entry types written by the engine.
const (
	TypeVolunteerCreated     = "volunteer.created"
	TypeVolunteerUpdated     = "volunteer.updated"
	TypeVolunteerPromoted    = "volunteer.promoted"
	TypeVolunteerInactivated = "volunteer.inactivated"
	TypeVolunteerDeleted     = "volunteer.deleted"
	TypeEventCreated         = "event.created"
	TypeEventUpdated         = "event.updated"
	TypeEventStatusChanged   = "event.status_changed"
	TypeEventDeleted         = "event.deleted"
	TypeTaskCreated          = "task.created"
	TypeTaskCompleted        = "task.completed"
	TypeTaskDeleted          = "task.deleted"
	TypeAssignmentCreated    = "assignment.created"
	TypeAssignmentRemoved    = "assignment.removed"
	TypePeriodReset          = "period.reset"
)

func (w Writer) Append(ctx context.Context, tx *sql.Tx, entryType, entityKind, entityID, actorID string, payload Payload) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal journal payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO journal(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, entryType, entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
