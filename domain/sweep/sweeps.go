package sweep

import (
	"context"
	"time"

	"stateflow/common"
	"stateflow/domain"
	"stateflow/domain/transit"
	"stateflow/event"
	"stateflow/indices"
	"stateflow/persistence"

	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
)

// RenderedOutputInvalidateFunc clears any broad rendered-output cache.
// Field-less legacy schedules trigger it once per sweep, after the loop.
var RenderedOutputInvalidateFunc = func() {
	common.Log.Info("rendered output cache invalidated")
}

var RunSweepFunc = RunSweep

type Report struct {
	Processed int `json:"processed"`
	Executed  int `json:"executed"`
	Stale     int `json:"stale"`
	Orphaned  int `json:"orphaned"`
	Failed    int `json:"failed"`
}

// RunSweep executes or discards every pending schedule due inside the
// half-open window [windowStart, windowEnd), ascending by execution time.
// Scheduled execution always bypasses authorization; it was checked when
// the schedule was created. One invocation is single-threaded.
func RunSweep(ctx context.Context, engine *transit.Engine, resolve transit.TargetResolver,
	windowStart, windowEnd time.Time) (*Report, error) {

	var pending []domain.PendingSchedule
	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	if err := db.Where("timestamp >= ? AND timestamp < ?", windowStart.Unix(), windowEnd.Unix()).
		Order("timestamp ASC").Find(&pending).Error; err != nil {
		return nil, err
	}

	report := Report{}
	dedup := transit.NewDedup()
	fieldless := false

	for idx := range pending {
		p := &pending[idx]
		report.Processed++

		target, err := resolve(ctx, p.TargetType, p.TargetID)
		if err != nil {
			report.Failed++
			common.Log.WithFields(logrus.Fields{
				"targetType": p.TargetType, "targetId": p.TargetID,
			}).Warnf("target not resolvable, schedule kept: %v", err)
			continue
		}
		if target == nil {
			// the target is gone; the schedule is orphaned and never retried
			report.Orphaned++
			if err := deletePending(db, p); err != nil {
				return &report, err
			}
			continue
		}

		current, _ := target.CurrentStateID(p.Field)
		if current != p.FromSID {
			// the entity's current state wins; the schedule is abandoned
			report.Stale++
			common.Log.WithFields(logrus.Fields{
				"targetType": p.TargetType, "targetId": p.TargetID, "field": p.Field,
				"scheduledFromSid": p.FromSID, "currentSid": current,
			}).Warn("stale schedule discarded")
			_ = event.CreateEvent(p.TargetType, p.TargetID, p.Field, event.CategoryStaleSchedule,
				[]event.Property{{Name: "fromSid", OldValue: p.FromSID.String(), NewValue: current.String()}},
				p.ActorID, "", db)
			if err := deletePending(db, p); err != nil {
				return &report, err
			}
			continue
		}

		if p.Comment == "" {
			p.Comment = "scheduled transition executed by the scheduler"
		}
		if p.Field == "" {
			fieldless = true
		}

		// queue-to-log move: drop the pending row, refresh the timestamp
		// and execute as a regular transition
		if err := deletePending(db, p); err != nil {
			return &report, err
		}
		t := p.Transition
		t.ID = 0
		t.Scheduled = false

		if _, err := engine.ExecuteAndUpdateTarget(ctx, &t, target, true, dedup); err != nil {
			report.Failed++
			common.Log.WithFields(logrus.Fields{
				"targetType": t.TargetType, "targetId": t.TargetID, "field": t.Field,
			}).Warnf("scheduled transition failed: %v", err)
			continue
		}
		report.Executed++
		if err := indices.IndexTransitionRecordFunc(&domain.TransitionRecord{Transition: t}); err != nil {
			common.Log.Warnf("transition indexing failed: %v", err)
		}
	}

	if fieldless {
		RenderedOutputInvalidateFunc()
	}
	return &report, nil
}

func deletePending(db *gorm.DB, p *domain.PendingSchedule) error {
	return db.Where("id = ?", p.ID).Delete(&domain.PendingSchedule{}).Error
}
