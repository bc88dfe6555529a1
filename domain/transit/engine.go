package transit

import (
	"context"
	"time"

	"stateflow/authority"
	"stateflow/bizerror"
	"stateflow/common"
	"stateflow/domain"
	"stateflow/domain/graph"
	"stateflow/event"
	"stateflow/extension"
	"stateflow/persistence"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
	"github.com/sony/sonyflake"
)

var idWorker = sonyflake.NewSonyflake(sonyflake.Settings{})

// Engine validates, authorizes, persists and applies transitions. The
// extension registry is composed once at construction.
type Engine struct {
	extensions *extension.Registry
}

func NewEngine(reg *extension.Registry) *Engine {
	return &Engine{extensions: reg}
}

// NewTransition builds a new instance against the target. The origin state
// is copied from the target's current state, falling back to the previous
// recorded one, then to the workflow's creation state. Only an instance
// with neither an explicit origin nor a target fails, unless it is being
// constructed purely for later deletion.
func (e *Engine) NewTransition(ctx context.Context, c *TransitionCreation, target Target, actor types.ID) (*domain.Transition, error) {
	fromSID := c.FromSID
	if fromSID == 0 && target != nil {
		if sid, found := target.CurrentStateID(c.Field); found {
			fromSID = sid
		} else if sid, found := target.PreviousStateID(c.Field); found {
			fromSID = sid
		} else {
			creation, err := graph.CreationStateFunc(ctx, c.WorkflowID)
			if err != nil {
				return nil, err
			}
			fromSID = creation.ID
		}
	}
	if fromSID == 0 && !c.ForDeletion {
		return nil, bizerror.ErrMissingOrigin
	}

	now := time.Now().Unix()
	timestamp := c.ScheduleAt
	if timestamp == 0 {
		timestamp = now
	}
	scheduled := timestamp > now+ScheduleHorizon
	if scheduled {
		// schedule resolution is one minute
		timestamp = timestamp - timestamp%60
	}

	t := domain.Transition{
		WorkflowID: c.WorkflowID,
		FromSID:    fromSID,
		ToSID:      c.ToSID,
		Field:      c.Field,
		ActorID:    actor,
		Timestamp:  timestamp,
		Comment:    c.Comment,
		Scheduled:  scheduled,
		Attached:   c.Attached.Copy(),
	}
	if target != nil {
		t.TargetType = target.TargetType()
		t.TargetID = target.TargetID()
		t.RevisionID = target.RevisionID()
	}
	return &t, nil
}

// Valid reports whether the instance may execute, without mutating
// anything. A same-state transition is always valid once the target and
// field resolve, regardless of extension vetoes.
func (e *Engine) Valid(ctx context.Context, t *domain.Transition, target Target, actor authority.Actor) bool {
	if target == nil {
		return false
	}
	workflowID, resolved := target.WorkflowOf(t.Field)
	if !resolved || workflowID != t.WorkflowID {
		return false
	}
	if !t.StateChanged() {
		return true
	}

	detail, err := graph.DetailWorkflowFunc(ctx, t.WorkflowID)
	if err != nil {
		common.Log.WithField("workflowId", t.WorkflowID).Warnf("workflow not resolvable: %v", err)
		return false
	}
	cand := authority.TransitionCandidate{
		WorkflowID: t.WorkflowID,
		FromSID:    t.FromSID,
		ToSID:      t.ToSID,
		TargetType: t.TargetType,
		TargetID:   t.TargetID,
		OwnerID:    target.Owner(),
		Edges:      graph.Edges(detail, t.FromSID, t.ToSID),
	}
	if !authority.CanTransit(actor, cand, t.Forced) {
		return false
	}
	if err := e.extensions.Veto(t); err != nil {
		common.Log.WithFields(logrus.Fields{
			"targetType": t.TargetType, "targetId": t.TargetID, "field": t.Field,
		}).Infof("transition vetoed: %v", err)
		return false
	}
	return true
}

// Execute stamps and persists the instance inside tx. On success the new
// effective state id is returned; on failure the instance is reverted to a
// same-state record carrying an explanatory comment suffix and the old
// state id is returned, so the caller is never uncertain about the
// resulting state.
func (e *Engine) Execute(ctx context.Context, tx *gorm.DB, t *domain.Transition) (types.ID, error) {
	oldSID := t.FromSID

	t.Timestamp = time.Now().Unix()
	e.extensions.AlterComment(t)
	if !t.Scheduled {
		t.Executed = true
	}

	var err error
	if t.Scheduled {
		err = upsertSchedule(tx, t)
	} else {
		err = insertRecord(tx, t)
	}
	if err != nil {
		t.ToSID = oldSID
		t.Executed = false
		t.Comment = t.Comment + " (execution failed: " + err.Error() + ")"
		return oldSID, err
	}
	return t.ToSID, nil
}

// ExecuteAndUpdateTarget is the entry point for anything outside the
// target's own save path. It persists scheduled instances without touching
// the target, treats already-executed instances as metadata updates, and
// otherwise applies the state change to the target and records it.
func (e *Engine) ExecuteAndUpdateTarget(ctx context.Context, t *domain.Transition, target Target, force bool, dedup *Dedup) (types.ID, error) {
	if t.ToSID == 0 {
		common.Log.WithFields(logrus.Fields{
			"targetType": t.TargetType, "targetId": t.TargetID, "field": t.Field, "fromSid": t.FromSID,
		}).Error("transition has no destination state")
		return t.FromSID, bizerror.ErrInvalidTarget
	}
	if force {
		t.Forced = true
	}

	db := persistence.ActiveDataSourceManager.GormDB(ctx)

	if t.Scheduled {
		err := db.Transaction(func(tx *gorm.DB) error {
			return upsertSchedule(tx, t)
		})
		return t.FromSID, err
	}

	if t.Executed {
		return t.FromSID, e.updateRecordMetadata(db, t)
	}

	if t.Empty() {
		return t.FromSID, nil
	}

	key := t.DedupKey()
	if prior, seen := dedup.prior(key); seen {
		common.Log.WithFields(logrus.Fields{
			"targetType": t.TargetType, "targetId": t.TargetID,
			"field": t.Field, "fromSid": t.FromSID, "toSid": t.ToSID,
		}).Warn("transition executed twice in a call")
		_ = event.CreateEvent(t.TargetType, t.TargetID, t.Field, event.CategoryDoubleExecution,
			nil, t.ActorID, "", db)
		return prior, nil
	}

	detail, err := graph.DetailWorkflowFunc(ctx, t.WorkflowID)
	if err != nil {
		return t.FromSID, err
	}

	oldSID := t.FromSID
	now := time.Now()
	err = db.Transaction(func(tx *gorm.DB) error {
		t.Timestamp = now.Unix()
		e.extensions.AlterComment(t)
		t.Executed = true

		target.SetWorkflowField(t.Field, t)
		if detail.AlwaysTouchTarget {
			target.Touch(now)
		}
		if err := target.Save(tx); err != nil {
			return err
		}
		if err := insertRecord(tx, t); err != nil {
			return err
		}
		if t.Forced && detail.LogForcedTransitions {
			return event.CreateEvent(t.TargetType, t.TargetID, t.Field, event.CategoryTransitionForced,
				[]event.Property{{Name: "state", OldValue: t.FromSID.String(), NewValue: t.ToSID.String()}},
				t.ActorID, "", tx)
		}
		return nil
	})
	if err != nil {
		t.ToSID = oldSID
		t.Executed = false
		t.Comment = t.Comment + " (execution failed: " + err.Error() + ")"
		dedup.record(key, oldSID)
		return oldSID, err
	}

	dedup.record(key, t.ToSID)
	return t.ToSID, nil
}

// updateRecordMetadata updates comment and attached data of an already
// executed transition; state and target are immutable at this point.
func (e *Engine) updateRecordMetadata(db *gorm.DB, t *domain.Transition) error {
	if t.ID == 0 {
		common.Log.WithFields(logrus.Fields{
			"targetType": t.TargetType, "targetId": t.TargetID, "field": t.Field,
		}).Warn("executed transition without id, metadata update skipped")
		return nil
	}
	return db.Model(&domain.TransitionRecord{}).Where("id = ?", t.ID).
		Update(map[string]interface{}{"comment": t.Comment, "attached": t.Attached}).Error
}

func insertRecord(tx *gorm.DB, t *domain.Transition) error {
	if t.ID == 0 {
		t.ID = common.NextId(idWorker)
	}
	record := domain.TransitionRecord{Transition: *t}
	return tx.Create(&record).Error
}

// upsertSchedule enforces at most one pending schedule per (target, field):
// a new one supersedes and deletes the previous pending instance.
func upsertSchedule(tx *gorm.DB, t *domain.Transition) error {
	if err := tx.Where("target_type = ? AND target_id = ? AND field = ?",
		t.TargetType, t.TargetID, t.Field).Delete(&domain.PendingSchedule{}).Error; err != nil {
		return err
	}
	if t.ID == 0 {
		t.ID = common.NextId(idWorker)
	}
	pending := domain.PendingSchedule{Transition: *t}
	return tx.Create(&pending).Error
}

var QueryHistoryFunc = QueryHistory

// QueryHistory lists the executed transitions of one target, ascending by
// execution time. The history is append-only per (target, field).
func QueryHistory(ctx context.Context, targetType string, targetID types.ID) (*[]domain.TransitionRecord, error) {
	var records []domain.TransitionRecord
	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	if err := db.Where("target_type = ? AND target_id = ?", targetType, targetID).
		Order("timestamp ASC, id ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return &records, nil
}

var QuerySchedulesFunc = QuerySchedules

// QuerySchedules lists the pending schedules of one target, ascending by
// execution time.
func QuerySchedules(ctx context.Context, targetType string, targetID types.ID) (*[]domain.PendingSchedule, error) {
	var pending []domain.PendingSchedule
	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	if err := db.Where("target_type = ? AND target_id = ?", targetType, targetID).
		Order("timestamp ASC").Find(&pending).Error; err != nil {
		return nil, err
	}
	return &pending, nil
}
