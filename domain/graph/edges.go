package graph

import (
	"context"
	"errors"
	"stateflow/bizerror"
	"stateflow/common"
	"stateflow/domain"
	"stateflow/persistence"
	"stateflow/session"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

var (
	CreateEdgeFunc = CreateEdge
	DeleteEdgeFunc = DeleteEdge
)

// Edges returns all edges of the detail matching (from, to); a zero id
// acts as a wildcard. Bound origins are answered from the adjacency index.
func Edges(detail *domain.WorkflowDetail, from, to types.ID) []domain.ConfigTransition {
	result := []domain.ConfigTransition{}

	candidates := detail.Edges
	if from != 0 {
		candidates = detail.Adjacency[from]
	}
	for _, edge := range candidates {
		if to == 0 || edge.ToSID == to {
			result = append(result, edge)
		}
	}
	return result
}

// CreateEdge persists a new edge between two states of the workflow.
// Re-creating an edge with the same endpoints is idempotent and returns
// the stored edge unchanged.
func CreateEdge(ctx context.Context, workflowID types.ID, creation *EdgeCreation, sec *session.Context) (*domain.ConfigTransition, error) {
	if sec == nil || !sec.Perms.HasAdminRole() {
		return nil, bizerror.ErrForbidden
	}
	if creation.FromSID == creation.ToSID {
		return nil, &bizerror.ErrBadParam{Cause: errors.New("same-state edges are never checked against the graph")}
	}

	var edge *domain.ConfigTransition
	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	err := db.Transaction(func(tx *gorm.DB) error {
		for _, sid := range []types.ID{creation.FromSID, creation.ToSID} {
			var s domain.WorkflowState
			if err := tx.Where(domain.WorkflowState{ID: sid, WorkflowID: workflowID}).First(&s).Error; err != nil {
				if gorm.IsRecordNotFoundError(err) {
					return bizerror.ErrUnknownState
				}
				return err
			}
		}
		var err error
		edge, err = createEdgeIn(tx, workflowID, creation.FromSID, creation.ToSID, creation.Roles, time.Now().Round(time.Millisecond))
		return err
	})
	if err != nil {
		return nil, err
	}

	InvalidateCachedWorkflow(workflowID)
	return edge, nil
}

func createEdgeIn(tx *gorm.DB, workflowID, fromSID, toSID types.ID, roles []string, now time.Time) (*domain.ConfigTransition, error) {
	var exist domain.ConfigTransition
	err := tx.Where("workflow_id = ? AND from_sid = ? AND to_sid = ?", workflowID, fromSID, toSID).
		First(&exist).Error
	if err == nil {
		return &exist, nil
	}
	if !gorm.IsRecordNotFoundError(err) {
		return nil, err
	}

	edge := domain.ConfigTransition{
		ID: common.NextId(idWorker), WorkflowID: workflowID,
		FromSID: fromSID, ToSID: toSID, Roles: roles, CreateTime: now,
	}
	if err := tx.Create(&edge).Error; err != nil {
		return nil, err
	}
	return &edge, nil
}

func DeleteEdge(ctx context.Context, workflowID, fromSID, toSID types.ID, sec *session.Context) error {
	if sec == nil || !sec.Perms.HasAdminRole() {
		return bizerror.ErrForbidden
	}

	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	err := db.Model(&domain.ConfigTransition{}).
		Where("workflow_id = ? AND from_sid = ? AND to_sid = ?", workflowID, fromSID, toSID).
		Delete(&domain.ConfigTransition{}).Error
	if err != nil {
		return err
	}

	InvalidateCachedWorkflow(workflowID)
	return nil
}
