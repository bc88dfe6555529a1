package graph

import (
	"context"
	"sort"
	"stateflow/bizerror"
	"stateflow/common"
	"stateflow/domain"
	"stateflow/persistence"
	"stateflow/session"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sony/sonyflake"
)

var (
	idWorker = sonyflake.NewSonyflake(sonyflake.Settings{})

	QueryWorkflowsFunc     = QueryWorkflows
	DetailWorkflowFunc     = DetailWorkflow
	CreateWorkflowFunc     = CreateWorkflow
	DeleteWorkflowFunc     = DeleteWorkflow
	UpdateWorkflowBaseFunc = UpdateWorkflowBase
)

func CreateWorkflow(ctx context.Context, c *WorkflowCreation, sec *session.Context) (*domain.WorkflowDetail, error) {
	if sec == nil || !sec.Perms.HasAdminRole() {
		return nil, bizerror.ErrForbidden
	}

	now := time.Now().Round(time.Millisecond)
	workflow := domain.Workflow{
		ID:               common.NextId(idWorker),
		Name:             c.Name,
		WorkflowSettings: c.Settings,
		CreateTime:       now,
	}
	if workflow.CommentLevel == "" {
		workflow.CommentLevel = domain.CommentOptional
	}

	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&workflow).Error; err != nil {
			return err
		}

		stateIndex := map[string]types.ID{}
		for _, s := range c.States {
			stateEntity := domain.WorkflowState{
				ID: common.NextId(idWorker), WorkflowID: workflow.ID,
				Name: s.Name, Weight: s.Weight, Active: true, CreateTime: now,
			}
			if err := tx.Create(&stateEntity).Error; err != nil {
				return err
			}
			stateIndex[s.Name] = stateEntity.ID
		}

		if !c.BulkImport {
			if _, err := creationStateIn(tx, workflow.ID, now); err != nil {
				return err
			}
		}

		for _, e := range c.Edges {
			fromSID, fromFound := stateIndex[e.From]
			toSID, toFound := stateIndex[e.To]
			if !fromFound || !toFound {
				return bizerror.ErrUnknownState
			}
			if _, err := createEdgeIn(tx, workflow.ID, fromSID, toSID, e.Roles, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	InvalidateCachedWorkflow(workflow.ID)
	return DetailWorkflow(ctx, workflow.ID)
}

// DetailWorkflow loads the full permission graph of one workflow, served
// from the per-process cache after the first access.
func DetailWorkflow(ctx context.Context, id types.ID) (*domain.WorkflowDetail, error) {
	if cached, found := detailCache.Get(id.String()); found {
		if detail, ok := cached.(*domain.WorkflowDetail); ok {
			return detail, nil
		}
	}

	detail := domain.WorkflowDetail{}
	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	if err := db.Where(&domain.Workflow{ID: id}).First(&detail.Workflow).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, bizerror.ErrNotFound
		}
		return nil, err
	}

	if err := db.Where(domain.WorkflowState{WorkflowID: id}).
		Order("weight ASC, id ASC").Find(&detail.States).Error; err != nil {
		return nil, err
	}
	if err := db.Where(domain.ConfigTransition{WorkflowID: id}).Find(&detail.Edges).Error; err != nil {
		return nil, err
	}

	detail.Adjacency = map[types.ID][]domain.ConfigTransition{}
	for _, edge := range detail.Edges {
		detail.Adjacency[edge.FromSID] = append(detail.Adjacency[edge.FromSID], edge)
	}

	detailCache.SetDefault(id.String(), &detail)
	return &detail, nil
}

func QueryWorkflows(ctx context.Context, query *WorkflowQuery) (*[]domain.Workflow, error) {
	var workflows []domain.Workflow
	db := persistence.ActiveDataSourceManager.GormDB(ctx)

	q := db.Model(&domain.Workflow{})
	if query != nil && query.Name != "" {
		q = q.Where("name like ?", "%"+query.Name+"%")
	}
	if err := q.Find(&workflows).Error; err != nil {
		return nil, err
	}
	sort.Slice(workflows, func(i, j int) bool { return workflows[i].ID < workflows[j].ID })
	return &workflows, nil
}

func UpdateWorkflowBase(ctx context.Context, id types.ID, c *WorkflowBaseUpdation, sec *session.Context) (*domain.Workflow, error) {
	if sec == nil || !sec.Perms.HasAdminRole() {
		return nil, bizerror.ErrForbidden
	}

	wf := domain.Workflow{}
	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(&domain.Workflow{ID: id}).First(&wf).Error; err != nil {
			return err
		}
		changes := map[string]interface{}{
			"name":                        c.Name,
			"scheduling_enabled":          c.Settings.SchedulingEnabled,
			"scheduling_timezone_enabled": c.Settings.SchedulingTimezoneEnabled,
			"comment_level":               c.Settings.CommentLevel,
			"always_touch_target":         c.Settings.AlwaysTouchTarget,
			"log_forced_transitions":      c.Settings.LogForcedTransitions,
		}
		if err := tx.Model(&domain.Workflow{}).Where(&domain.Workflow{ID: id}).
			Update(changes).Error; err != nil {
			return err
		}
		// query again
		if err := tx.Where(&domain.Workflow{ID: id}).First(&wf).Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	InvalidateCachedWorkflow(id)
	return &wf, nil
}

func DeleteWorkflow(ctx context.Context, id types.ID, sec *session.Context) error {
	if sec == nil || !sec.Perms.HasAdminRole() {
		return bizerror.ErrForbidden
	}

	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	err := db.Transaction(func(tx *gorm.DB) error {
		wf := domain.Workflow{}
		if err := tx.Where(&domain.Workflow{ID: id}).First(&wf).Error; err != nil {
			return err
		}
		if err := isWorkflowReferenced(tx, id); err != nil {
			return err
		}
		if err := tx.Model(&domain.Workflow{}).Delete(&domain.Workflow{ID: id}).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.WorkflowState{}).Where("workflow_id = ?", id).
			Delete(&domain.WorkflowState{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.ConfigTransition{}).Where("workflow_id = ?", id).
			Delete(&domain.ConfigTransition{}).Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	InvalidateCachedWorkflow(id)
	return nil
}

// CommentLevelOf exposes the workflow's comment requirement so callers can
// surface it; the engine itself never enforces it.
func CommentLevelOf(ctx context.Context, workflowID types.ID) (domain.CommentLevel, error) {
	detail, err := DetailWorkflowFunc(ctx, workflowID)
	if err != nil {
		return "", err
	}
	return detail.CommentLevel, nil
}

func isWorkflowReferenced(db *gorm.DB, workflowID types.ID) error {
	var field domain.ItemStateField
	err := db.Model(&domain.ItemStateField{}).Where(&domain.ItemStateField{WorkflowID: workflowID}).First(&field).Error
	if err == nil {
		return bizerror.ErrWorkflowIsReferenced
	}
	if !gorm.IsRecordNotFoundError(err) {
		return err
	}

	var record domain.TransitionRecord
	err = db.Model(&domain.TransitionRecord{}).Where("workflow_id = ?", workflowID).First(&record).Error
	if err == nil {
		return bizerror.ErrWorkflowIsReferenced
	}
	if !gorm.IsRecordNotFoundError(err) {
		return err
	}
	return nil
}
