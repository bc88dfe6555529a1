package graph

import (
	"context"
	"errors"
	"stateflow/bizerror"
	"stateflow/common"
	"stateflow/domain"
	"stateflow/persistence"
	"stateflow/session"
	"strconv"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

const creationStateName = "(creation)"

var (
	CreateStateFunc        = CreateState
	UpdateStateFunc        = UpdateState
	UpdateStateWeightsFunc = UpdateStateWeights
	CreationStateFunc      = CreationState
)

// StatesOf returns the detail's states matching the filter, already in
// weight order (ties broken by id, the insertion order).
func StatesOf(detail *domain.WorkflowDetail, filter domain.StateFilter) []domain.WorkflowState {
	result := []domain.WorkflowState{}
	for _, s := range detail.States {
		if s.Match(filter) {
			result = append(result, s)
		}
	}
	return result
}

func CreateState(ctx context.Context, workflowID types.ID, creating *StateCreating, sec *session.Context) (*domain.WorkflowState, error) {
	if sec == nil || !sec.Perms.HasAdminRole() {
		return nil, bizerror.ErrForbidden
	}

	now := time.Now().Round(time.Millisecond)
	stateEntity := domain.WorkflowState{
		ID: common.NextId(idWorker), WorkflowID: workflowID,
		Name: creating.Name, Weight: creating.Weight, Active: true, CreateTime: now,
	}

	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(&domain.Workflow{ID: workflowID}).First(&domain.Workflow{}).Error; err != nil {
			return err
		}
		var exist domain.WorkflowState
		err := tx.Where(domain.WorkflowState{WorkflowID: workflowID, Name: creating.Name}).First(&exist).Error
		if err == nil {
			return bizerror.ErrStateExisted
		}
		if !gorm.IsRecordNotFoundError(err) {
			return err
		}
		return tx.Create(&stateEntity).Error
	})
	if err != nil {
		return nil, err
	}

	InvalidateCachedWorkflow(workflowID)
	return &stateEntity, nil
}

func UpdateState(ctx context.Context, workflowID types.ID, updating *StateUpdating, sec *session.Context) error {
	if sec == nil || !sec.Perms.HasAdminRole() {
		return bizerror.ErrForbidden
	}

	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	err := db.Transaction(func(tx *gorm.DB) error {
		var origin domain.WorkflowState
		if err := tx.Where(domain.WorkflowState{ID: updating.SID, WorkflowID: workflowID}).
			First(&origin).Error; err != nil {
			return err
		}
		if origin.Name != updating.Name {
			var exist domain.WorkflowState
			err := tx.Where(domain.WorkflowState{WorkflowID: workflowID, Name: updating.Name}).First(&exist).Error
			if err == nil {
				return bizerror.ErrStateExisted
			}
			if !gorm.IsRecordNotFoundError(err) {
				return err
			}
		}
		return tx.Model(&domain.WorkflowState{}).
			Where(&domain.WorkflowState{ID: updating.SID, WorkflowID: workflowID}).
			Update(map[string]interface{}{"name": updating.Name, "weight": updating.Weight}).Error
	})
	if err != nil {
		return err
	}

	InvalidateCachedWorkflow(workflowID)
	return nil
}

func UpdateStateWeights(ctx context.Context, workflowID types.ID, wantedWeights *[]StateWeightUpdating, sec *session.Context) error {
	if wantedWeights == nil || len(*wantedWeights) == 0 {
		return nil
	}
	if sec == nil || !sec.Perms.HasAdminRole() {
		return bizerror.ErrForbidden
	}

	err := persistence.ActiveDataSourceManager.GormDB(ctx).Transaction(func(tx *gorm.DB) error {
		for _, weightUpdating := range *wantedWeights {
			db := tx.Model(&domain.WorkflowState{}).
				Where(&domain.WorkflowState{ID: weightUpdating.SID, WorkflowID: workflowID}).
				Update("weight", weightUpdating.Weight)
			if err := db.Error; err != nil {
				return err
			}
			if db.RowsAffected != 1 {
				return errors.New("expected affected row is 1, but actual is " + strconv.FormatInt(db.RowsAffected, 10))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	InvalidateCachedWorkflow(workflowID)
	return nil
}

// CreationState returns the workflow's creation-flagged state, creating it
// lazily and idempotently when absent. The creation state predates any
// executed transition and always sorts first.
func CreationState(ctx context.Context, workflowID types.ID) (*domain.WorkflowState, error) {
	detail, err := DetailWorkflowFunc(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if found, ok := detail.CreationState(); ok {
		return &found, nil
	}

	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	var created *domain.WorkflowState
	err = db.Transaction(func(tx *gorm.DB) error {
		created, err = creationStateIn(tx, workflowID, time.Now().Round(time.Millisecond))
		return err
	})
	if err != nil {
		return nil, err
	}

	InvalidateCachedWorkflow(workflowID)
	return created, nil
}

func creationStateIn(tx *gorm.DB, workflowID types.ID, now time.Time) (*domain.WorkflowState, error) {
	var exist domain.WorkflowState
	err := tx.Where(domain.WorkflowState{WorkflowID: workflowID, Creation: true}).First(&exist).Error
	if err == nil {
		return &exist, nil
	}
	if !gorm.IsRecordNotFoundError(err) {
		return nil, err
	}

	stateEntity := domain.WorkflowState{
		ID: common.NextId(idWorker), WorkflowID: workflowID,
		Name: creationStateName, Weight: domain.CreationStateWeight,
		Active: true, Creation: true, CreateTime: now,
	}
	if err := tx.Create(&stateEntity).Error; err != nil {
		return nil, err
	}
	return &stateEntity, nil
}
