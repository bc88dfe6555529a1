package sweep_test

import (
	"context"
	"errors"
	"stateflow/authority"
	"stateflow/domain"
	"stateflow/domain/graph"
	"stateflow/domain/item"
	"stateflow/domain/sweep"
	"stateflow/domain/transit"
	"stateflow/event"
	"stateflow/extension"
	"stateflow/indices"
	"stateflow/persistence"
	"stateflow/testinfra"
	"testing"
	"time"

	"github.com/fundwit/go-commons/types"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/assert"
)

func setup(t *testing.T, testDatabase **testinfra.TestDatabase) {
	db := testinfra.StartMysqlTestDatabase("stateflow")
	assert.Nil(t, db.DS.GormDB(context.Background()).AutoMigrate(
		&domain.Workflow{}, &domain.WorkflowState{}, &domain.ConfigTransition{},
		&domain.TransitionRecord{}, &domain.PendingSchedule{},
		&domain.Item{}, &domain.ItemStateField{}, &event.EventRecord{}).Error)
	persistence.ActiveDataSourceManager = db.DS
	*testDatabase = db

	indices.IndexTransitionRecordFunc = func(record *domain.TransitionRecord) error { return nil }
}
func teardown(t *testing.T, testDatabase *testinfra.TestDatabase) {
	indices.IndexTransitionRecordFunc = indices.IndexTransitionRecord
	if testDatabase != nil {
		testinfra.StopMysqlTestDatabase(testDatabase)
	}
}

// buildScheduledItem creates a publishing workflow, an item of user 200 on
// the given field, and one pending schedule moving it out of the creation
// state at scheduleAt.
func buildScheduledItem(engine *transit.Engine, field string, scheduleAt int64) (*domain.WorkflowDetail, *domain.ItemDetail, error) {
	ctx := context.Background()
	admin := testinfra.BuildSecCtx(100, authority.RoleAdmin)

	detail, err := graph.CreateWorkflow(ctx, &graph.WorkflowCreation{
		Name:   "publishing",
		States: []graph.StateCreating{{Name: "draft", Weight: 1}, {Name: "published", Weight: 2}},
		Edges:  []graph.EdgeCreating{{From: "draft", To: "published", Roles: []string{"editor"}}},
	}, admin)
	if err != nil {
		return nil, nil, err
	}

	itemDetail, err := item.CreateItem(ctx, &item.ItemCreation{
		Name: "launch post", WorkflowID: detail.ID, Field: field,
	}, testinfra.BuildSecCtx(200, "editor"))
	if err != nil {
		return nil, nil, err
	}

	detail, err = graph.DetailWorkflow(ctx, detail.ID)
	if err != nil {
		return nil, nil, err
	}
	draft, _ := detail.FindStateByName("draft")

	transition, err := engine.NewTransition(ctx, &transit.TransitionCreation{
		WorkflowID: detail.ID, ToSID: draft.ID, Field: field, ScheduleAt: scheduleAt,
	}, itemDetail, types.ID(200))
	if err != nil {
		return nil, nil, err
	}
	if _, err := engine.ExecuteAndUpdateTarget(ctx, transition, itemDetail, false, transit.NewDedup()); err != nil {
		return nil, nil, err
	}
	return detail, itemDetail, nil
}

func TestRunSweep(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase
	engine := transit.NewEngine(extension.NewRegistry())

	t.Run("a schedule outside the window stays queued until a window covers it", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		now := time.Now()
		detail, itemDetail, err := buildScheduledItem(engine, "review", now.Unix()+2*24*3600)
		Expect(err).To(BeNil())
		creation, _ := detail.CreationState()
		draft, _ := detail.FindStateByName("draft")

		// due in two days: a sweep over the next day must not touch it
		report, err := sweep.RunSweep(context.Background(), engine, item.ResolveTarget,
			now.Add(-time.Hour), now.Add(24*time.Hour))
		Expect(err).To(BeNil())
		Expect(report.Processed).To(BeZero())

		pending, err := transit.QuerySchedules(context.Background(), domain.ItemTargetType, itemDetail.ID)
		Expect(err).To(BeNil())
		Expect(len(*pending)).To(Equal(1))
		reloaded, err := item.DetailItem(context.Background(), itemDetail.ID)
		Expect(err).To(BeNil())
		current, _ := reloaded.CurrentStateID("review")
		Expect(current).To(Equal(creation.ID))

		// a window reaching past the due time executes it
		report, err = sweep.RunSweep(context.Background(), engine, item.ResolveTarget,
			now.Add(24*time.Hour), now.Add(3*24*time.Hour))
		Expect(err).To(BeNil())
		Expect(report.Processed).To(Equal(1))
		Expect(report.Executed).To(Equal(1))

		pending, err = transit.QuerySchedules(context.Background(), domain.ItemTargetType, itemDetail.ID)
		Expect(err).To(BeNil())
		Expect(*pending).To(BeEmpty())
		reloaded, err = item.DetailItem(context.Background(), itemDetail.ID)
		Expect(err).To(BeNil())
		current, _ = reloaded.CurrentStateID("review")
		Expect(current).To(Equal(draft.ID))

		// the executed move is a forced transition with a synthesized comment
		history, err := transit.QueryHistory(context.Background(), domain.ItemTargetType, itemDetail.ID)
		Expect(err).To(BeNil())
		Expect(len(*history)).To(Equal(1))
		Expect((*history)[0].Forced).To(BeTrue())
		Expect((*history)[0].Comment).To(Equal("scheduled transition executed by the scheduler"))
	})

	t.Run("a stale schedule is discarded and the entity's current state wins", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		now := time.Now()
		detail, itemDetail, err := buildScheduledItem(engine, "review", now.Unix()+3600)
		Expect(err).To(BeNil())
		draft, _ := detail.FindStateByName("draft")

		// the item moves to draft before the schedule comes due
		immediate, err := engine.NewTransition(context.Background(), &transit.TransitionCreation{
			WorkflowID: detail.ID, ToSID: draft.ID, Field: "review", Comment: "moved by hand",
		}, itemDetail, types.ID(200))
		Expect(err).To(BeNil())
		_, err = engine.ExecuteAndUpdateTarget(context.Background(), immediate, itemDetail, true, transit.NewDedup())
		Expect(err).To(BeNil())

		report, err := sweep.RunSweep(context.Background(), engine, item.ResolveTarget,
			now, now.Add(2*time.Hour))
		Expect(err).To(BeNil())
		Expect(report.Processed).To(Equal(1))
		Expect(report.Stale).To(Equal(1))
		Expect(report.Executed).To(BeZero())

		// the schedule is gone, the item stays where it already was
		pending, err := transit.QuerySchedules(context.Background(), domain.ItemTargetType, itemDetail.ID)
		Expect(err).To(BeNil())
		Expect(*pending).To(BeEmpty())
		reloaded, err := item.DetailItem(context.Background(), itemDetail.ID)
		Expect(err).To(BeNil())
		current, _ := reloaded.CurrentStateID("review")
		Expect(current).To(Equal(draft.ID))

		db := testDatabase.DS.GormDB(context.Background())
		var stale event.EventRecord
		Expect(db.Where("category = ?", event.CategoryStaleSchedule).First(&stale).Error).To(BeNil())
		Expect(stale.SourceId).To(Equal(itemDetail.ID))
	})

	t.Run("a schedule whose target is gone counts as orphaned", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		now := time.Now()
		_, itemDetail, err := buildScheduledItem(engine, "review", now.Unix()+3600)
		Expect(err).To(BeNil())

		db := testDatabase.DS.GormDB(context.Background())
		Expect(db.Where("id = ?", itemDetail.ID).Delete(&domain.Item{}).Error).To(BeNil())

		report, err := sweep.RunSweep(context.Background(), engine, item.ResolveTarget,
			now, now.Add(2*time.Hour))
		Expect(err).To(BeNil())
		Expect(report.Processed).To(Equal(1))
		Expect(report.Orphaned).To(Equal(1))
		Expect(report.Executed).To(BeZero())

		// the orphaned row is dropped, not retried by the next window
		pending, err := transit.QuerySchedules(context.Background(), domain.ItemTargetType, itemDetail.ID)
		Expect(err).To(BeNil())
		Expect(*pending).To(BeEmpty())
		report, err = sweep.RunSweep(context.Background(), engine, item.ResolveTarget,
			now, now.Add(2*time.Hour))
		Expect(err).To(BeNil())
		Expect(report.Processed).To(BeZero())
	})

	t.Run("a resolver failure keeps the schedule for the next run", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		now := time.Now()
		_, itemDetail, err := buildScheduledItem(engine, "review", now.Unix()+3600)
		Expect(err).To(BeNil())

		failing := func(ctx context.Context, targetType string, id types.ID) (transit.Target, error) {
			return nil, errors.New("store unavailable")
		}
		report, err := sweep.RunSweep(context.Background(), engine, failing, now, now.Add(2*time.Hour))
		Expect(err).To(BeNil())
		Expect(report.Failed).To(Equal(1))

		pending, err := transit.QuerySchedules(context.Background(), domain.ItemTargetType, itemDetail.ID)
		Expect(err).To(BeNil())
		Expect(len(*pending)).To(Equal(1))
	})

	t.Run("a field-less schedule invalidates the rendered output cache once", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		invalidations := 0
		originalInvalidate := sweep.RenderedOutputInvalidateFunc
		sweep.RenderedOutputInvalidateFunc = func() { invalidations++ }
		defer func() { sweep.RenderedOutputInvalidateFunc = originalInvalidate }()

		now := time.Now()
		_, itemDetail, err := buildScheduledItem(engine, "", now.Unix()+3600)
		Expect(err).To(BeNil())

		report, err := sweep.RunSweep(context.Background(), engine, item.ResolveTarget,
			now, now.Add(2*time.Hour))
		Expect(err).To(BeNil())
		Expect(report.Executed).To(Equal(1))
		Expect(invalidations).To(Equal(1))

		// a sweep over field-bound schedules never triggers it
		reloaded, err := item.DetailItem(context.Background(), itemDetail.ID)
		Expect(err).To(BeNil())
		_, bound := reloaded.CurrentStateID("")
		Expect(bound).To(BeTrue())
	})
}
