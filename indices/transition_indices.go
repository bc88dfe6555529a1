package indices

import (
	"context"
	"stateflow/domain"
	"stateflow/es"

	"github.com/fundwit/go-commons/types"
)

const TransitionIndexName = "transitions"

var IndexTransitionRecordFunc = IndexTransitionRecord

// TransitionDocument is the searchable projection of one executed
// transition in the history log.
type TransitionDocument struct {
	ID         types.ID `json:"id"`
	WorkflowID types.ID `json:"workflowId"`

	FromSID types.ID `json:"fromSid"`
	ToSID   types.ID `json:"toSid"`

	TargetType string   `json:"targetType"`
	TargetID   types.ID `json:"targetId"`
	Field      string   `json:"field"`

	ActorID   types.ID `json:"actorId"`
	Timestamp int64    `json:"timestamp"`
	Comment   string   `json:"comment"`
	Forced    bool     `json:"forced"`
}

func IndexTransitionRecord(record *domain.TransitionRecord) error {
	doc := TransitionDocument{
		ID:         record.ID,
		WorkflowID: record.WorkflowID,
		FromSID:    record.FromSID,
		ToSID:      record.ToSID,
		TargetType: record.TargetType,
		TargetID:   record.TargetID,
		Field:      record.Field,
		ActorID:    record.ActorID,
		Timestamp:  record.Timestamp,
		Comment:    record.Comment,
		Forced:     record.Forced,
	}
	return es.Index(context.Background(), TransitionIndexName, record.ID, doc)
}
