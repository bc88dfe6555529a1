package graph

import (
	"stateflow/domain"

	"github.com/fundwit/go-commons/types"
)

type WorkflowCreation struct {
	Name     string                  `json:"name" binding:"required"`
	Settings domain.WorkflowSettings `json:"settings"`

	States []StateCreating `json:"states" binding:"dive"`
	Edges  []EdgeCreating  `json:"edges" binding:"dive"`

	// BulkImport defers the lazy creation-state bootstrap to the first
	// regular access after the import finished.
	BulkImport bool `json:"bulkImport"`
}

type WorkflowBaseUpdation struct {
	Name     string                  `json:"name" binding:"required"`
	Settings domain.WorkflowSettings `json:"settings"`
}

type StateCreating struct {
	Name   string `json:"name" binding:"required"`
	Weight int    `json:"weight"`
}

// EdgeCreating references its endpoints by state name inside the same
// creation payload; CreateEdge resolves them to state ids.
type EdgeCreating struct {
	From  string   `json:"from" binding:"required"`
	To    string   `json:"to" binding:"required"`
	Roles []string `json:"roles"`
}

type EdgeCreation struct {
	FromSID types.ID `json:"fromSid" binding:"required"`
	ToSID   types.ID `json:"toSid" binding:"required"`
	Roles   []string `json:"roles"`
}

type StateUpdating struct {
	SID    types.ID `json:"sid" binding:"required"`
	Name   string   `json:"name" binding:"required"`
	Weight int      `json:"weight"`
}

type StateWeightUpdating struct {
	SID    types.ID `json:"sid" validate:"required"`
	Weight int      `json:"weight"`
}

type WorkflowQuery struct {
	Name string `form:"name"`
}
