package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/fundwit/go-commons/types"
)

// AttachedData is auxiliary data carried on a transition, opaque to the
// engine and copied verbatim on duplication. Stored as a JSON column.
type AttachedData map[string]string

func (d AttachedData) Value() (driver.Value, error) {
	jsonBytes, err := json.Marshal(&d)
	if err != nil {
		return nil, err
	}
	return string(jsonBytes), nil
}

func (d *AttachedData) Scan(v interface{}) error {
	jsonString, ok := v.(string)
	if !ok {
		jsonByte, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("type is neither string nor []byte: %T %v", v, v)
		}
		jsonString = string(jsonByte)
	}
	return json.Unmarshal([]byte(jsonString), d)
}

func (d AttachedData) Copy() AttachedData {
	if d == nil {
		return nil
	}
	c := make(AttachedData, len(d))
	for k, v := range d {
		c[k] = v
	}
	return c
}

// Transition is one concrete, timestamped application (or planned
// application) of a state change to a target entity. Scheduled acts as
// the discriminant between the history log and the pending queue.
type Transition struct {
	ID         types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	WorkflowID types.ID `json:"workflowId" sql:"type:BIGINT UNSIGNED NOT NULL"`

	FromSID types.ID `json:"fromSid" gorm:"column:from_sid" sql:"type:BIGINT UNSIGNED NOT NULL"`
	ToSID   types.ID `json:"toSid" gorm:"column:to_sid" sql:"type:BIGINT UNSIGNED NOT NULL"`

	TargetType string   `json:"targetType"`
	TargetID   types.ID `json:"targetId" sql:"type:BIGINT UNSIGNED NOT NULL"`
	RevisionID types.ID `json:"revisionId"`
	Field      string   `json:"field"`

	ActorID   types.ID `json:"actorId"`
	Timestamp int64    `json:"timestamp"`
	Comment   string   `json:"comment" sql:"type:TEXT"`

	Forced    bool `json:"forced"`
	Executed  bool `json:"executed"`
	Scheduled bool `json:"scheduled"`

	Attached AttachedData `json:"attached" sql:"type:TEXT"`
}

// StateChanged reports whether the transition actually moves the target
// to another state. Same-state transitions are exempt from authorization
// but still auditable.
func (t *Transition) StateChanged() bool {
	return t.FromSID != t.ToSID
}

// Empty reports whether executing the transition would have no effect at
// all: no state change, no comment, no attached data.
func (t *Transition) Empty() bool {
	return !t.StateChanged() && t.Comment == "" && len(t.Attached) == 0
}

// DedupKey identifies one logical execution within a request for the
// double-execution guard.
func (t *Transition) DedupKey() string {
	return fmt.Sprintf("%s/%d/%d/%s/%d/%d", t.TargetType, t.TargetID, t.RevisionID, t.Field, t.FromSID, t.ToSID)
}

// TransitionRecord is an executed transition in the append-only history log.
type TransitionRecord struct {
	Transition
}

func (r *TransitionRecord) TableName() string {
	return "transition_log"
}

// PendingSchedule is a deferred transition waiting in the pending queue.
// At most one exists per (target, field); a new one replaces it.
type PendingSchedule struct {
	Transition
}

func (r *PendingSchedule) TableName() string {
	return "transition_schedule"
}
