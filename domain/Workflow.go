package domain

import (
	"time"

	"github.com/fundwit/go-commons/types"
)

type CommentLevel string

const (
	CommentOff      CommentLevel = "off"
	CommentOptional CommentLevel = "optional"
	CommentRequired CommentLevel = "required"
)

// WorkflowSettings are the per-workflow behavior switches, stored flattened on the workflow row.
type WorkflowSettings struct {
	SchedulingEnabled         bool         `json:"schedulingEnabled"`
	SchedulingTimezoneEnabled bool         `json:"schedulingTimezoneEnabled"`
	CommentLevel              CommentLevel `json:"commentLevel" sql:"type:VARCHAR(16) NOT NULL DEFAULT 'optional'"`
	AlwaysTouchTarget         bool         `json:"alwaysTouchTarget"`
	LogForcedTransitions      bool         `json:"logForcedTransitions"`
}

type Workflow struct {
	ID   types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	Name string   `json:"name"`

	WorkflowSettings

	CreateTime time.Time `json:"createTime" sql:"type:DATETIME(3) NOT NULL"`
}

func (w *Workflow) TableName() string {
	return "workflows"
}

// WorkflowDetail carries the full permission graph of one workflow:
// its states in weight order, its edges, and an adjacency index from
// origin state id to the outgoing edges.
type WorkflowDetail struct {
	Workflow

	States []WorkflowState    `json:"states"`
	Edges  []ConfigTransition `json:"edges"`

	Adjacency map[types.ID][]ConfigTransition `json:"-"`
}

func (d *WorkflowDetail) FindState(sid types.ID) (WorkflowState, bool) {
	for _, s := range d.States {
		if s.ID == sid {
			return s, true
		}
	}
	return WorkflowState{}, false
}

func (d *WorkflowDetail) FindStateByName(name string) (WorkflowState, bool) {
	for _, s := range d.States {
		if s.Name == name {
			return s, true
		}
	}
	return WorkflowState{}, false
}

// CreationState returns the single creation-flagged state, when present.
func (d *WorkflowDetail) CreationState() (WorkflowState, bool) {
	for _, s := range d.States {
		if s.Creation {
			return s, true
		}
	}
	return WorkflowState{}, false
}
