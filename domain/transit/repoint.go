package transit

import (
	"context"
	"stateflow/bizerror"
	"stateflow/common"
	"stateflow/domain"
	"stateflow/domain/graph"
	"stateflow/persistence"
	"stateflow/session"

	"github.com/fundwit/go-commons/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RepointRatePerSecond paces the bulk migration of a state deactivation so
// a large dataset does not monopolize the store.
var RepointRatePerSecond = rate.Limit(50)

const repointPageSize = 100

type RepointFailure struct {
	TargetID types.ID `json:"targetId"`
	Field    string   `json:"field"`
	Error    string   `json:"error"`
}

type RepointReport struct {
	Migrated int              `json:"migrated"`
	Failures []RepointFailure `json:"failures"`
}

// DeactivateState re-points every target currently sitting in the state to
// the replacement state through forced transitions, then marks the state
// inactive. This is the only place force is applied automatically. It is a
// bulk migration with per-target failure reporting, not part of the
// synchronous engine contract.
func (e *Engine) DeactivateState(ctx context.Context, workflowID, sid, replacementSID types.ID,
	resolve TargetResolver, sec *session.Context) (*RepointReport, error) {

	if sec == nil || !sec.Perms.HasAdminRole() {
		return nil, bizerror.ErrForbidden
	}
	if sid == replacementSID {
		return nil, bizerror.ErrUnknownState
	}

	detail, err := graph.DetailWorkflowFunc(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if _, found := detail.FindState(sid); !found {
		return nil, bizerror.ErrUnknownState
	}
	replacement, found := detail.FindState(replacementSID)
	if !found || !replacement.Active {
		return nil, bizerror.ErrUnknownState
	}

	report := RepointReport{Failures: []RepointFailure{}}
	limiter := rate.NewLimiter(RepointRatePerSecond, 1)
	dedup := NewDedup()
	db := persistence.ActiveDataSourceManager.GormDB(ctx)

	for {
		var fields []domain.ItemStateField
		if err := db.Where("workflow_id = ? AND current_sid = ?", workflowID, sid).
			Order("item_id ASC, field ASC").Limit(repointPageSize).Find(&fields).Error; err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			break
		}

		for _, f := range fields {
			if err := limiter.Wait(ctx); err != nil {
				return &report, err
			}
			if err := e.repointOne(ctx, f, replacementSID, resolve, sec, dedup); err != nil {
				report.Failures = append(report.Failures, RepointFailure{
					TargetID: f.ItemID, Field: f.Field, Error: err.Error(),
				})
				common.Log.WithFields(logrus.Fields{
					"itemId": f.ItemID, "field": f.Field, "fromSid": sid, "toSid": replacementSID,
				}).Warnf("re-point failed: %v", err)
				continue
			}
			report.Migrated++
		}

		// anything that failed stays in the old state; stop instead of
		// rescanning the same rows forever
		if len(fields) < repointPageSize || len(report.Failures) > 0 {
			break
		}
	}

	if len(report.Failures) == 0 {
		if err := db.Model(&domain.WorkflowState{}).
			Where(&domain.WorkflowState{ID: sid, WorkflowID: workflowID}).
			Update("active", false).Error; err != nil {
			return &report, err
		}
		graph.InvalidateCachedWorkflow(workflowID)
	}
	return &report, nil
}

func (e *Engine) repointOne(ctx context.Context, f domain.ItemStateField, replacementSID types.ID,
	resolve TargetResolver, sec *session.Context, dedup *Dedup) error {

	target, err := resolve(ctx, domain.ItemTargetType, f.ItemID)
	if err != nil {
		return err
	}
	if target == nil {
		return bizerror.ErrNotFound
	}

	t, err := e.NewTransition(ctx, &TransitionCreation{
		WorkflowID: f.WorkflowID,
		ToSID:      replacementSID,
		Field:      f.Field,
		Comment:    "state deactivated, moved to replacement state",
	}, target, sec.Identity.ID)
	if err != nil {
		return err
	}

	_, err = e.ExecuteAndUpdateTarget(ctx, t, target, true, dedup)
	return err
}
