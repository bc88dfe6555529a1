package domain

import (
	"time"

	"github.com/fundwit/go-commons/types"
)

// CreationStateWeight keeps the auto-created creation state sorted before
// every regular state.
const CreationStateWeight = -50

type WorkflowState struct {
	ID         types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	WorkflowID types.ID `json:"workflowId" sql:"type:BIGINT UNSIGNED NOT NULL"`

	Name     string `json:"name"`
	Weight   int    `json:"weight"`
	Active   bool   `json:"active"`
	Creation bool   `json:"creation"`

	CreateTime time.Time `json:"createTime" sql:"type:DATETIME(3) NOT NULL"`
}

func (s *WorkflowState) TableName() string {
	return "workflow_states"
}

type StateFilter int

const (
	StatesAll StateFilter = iota
	StatesActiveNonCreation
	StatesActiveOrCreation
)

func (s *WorkflowState) Match(filter StateFilter) bool {
	switch filter {
	case StatesActiveNonCreation:
		return s.Active && !s.Creation
	case StatesActiveOrCreation:
		return s.Active || s.Creation
	default:
		return true
	}
}
