package graph_test

import (
	"context"
	"stateflow/authority"
	"stateflow/bizerror"
	"stateflow/domain"
	"stateflow/domain/graph"
	"stateflow/testinfra"
	"testing"

	. "github.com/onsi/gomega"
)

func TestStatesOf(t *testing.T) {
	RegisterTestingT(t)

	detail := &domain.WorkflowDetail{States: []domain.WorkflowState{
		{ID: 1, Name: "(creation)", Weight: domain.CreationStateWeight, Active: true, Creation: true},
		{ID: 2, Name: "draft", Weight: 1, Active: true},
		{ID: 3, Name: "retired", Weight: 2, Active: false},
		{ID: 4, Name: "published", Weight: 3, Active: true},
	}}

	t.Run("filters select by active and creation flags", func(t *testing.T) {
		all := graph.StatesOf(detail, domain.StatesAll)
		Expect(len(all)).To(Equal(4))

		regular := graph.StatesOf(detail, domain.StatesActiveNonCreation)
		Expect(len(regular)).To(Equal(2))
		Expect(regular[0].Name).To(Equal("draft"))
		Expect(regular[1].Name).To(Equal("published"))

		reachable := graph.StatesOf(detail, domain.StatesActiveOrCreation)
		Expect(len(reachable)).To(Equal(3))
		Expect(reachable[0].Creation).To(BeTrue())
	})
}

func TestCreateState(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should append a state and reject duplicate names", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		sec := testinfra.BuildSecCtx(100, authority.RoleAdmin)
		detail, err := graph.CreateWorkflow(context.Background(), creationDemo, sec)
		Expect(err).To(BeNil())

		created, err := graph.CreateState(context.Background(), detail.ID,
			&graph.StateCreating{Name: "archived", Weight: 9}, sec)
		Expect(err).To(BeNil())
		Expect(created.ID).ToNot(BeZero())
		Expect(created.Active).To(BeTrue())
		Expect(created.Creation).To(BeFalse())

		fresh, err := graph.DetailWorkflow(context.Background(), detail.ID)
		Expect(err).To(BeNil())
		Expect(len(fresh.States)).To(Equal(5))
		Expect(fresh.States[4].Name).To(Equal("archived"))

		_, err = graph.CreateState(context.Background(), detail.ID,
			&graph.StateCreating{Name: "archived"}, sec)
		Expect(err).To(Equal(bizerror.ErrStateExisted))
	})

	t.Run("should be forbidden without the admin role", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		_, err := graph.CreateState(context.Background(), 1,
			&graph.StateCreating{Name: "archived"}, testinfra.BuildSecCtx(100, "editor"))
		Expect(err).To(Equal(bizerror.ErrForbidden))
	})
}

func TestUpdateState(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should rename a state unless the name is taken", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		sec := testinfra.BuildSecCtx(100, authority.RoleAdmin)
		detail, err := graph.CreateWorkflow(context.Background(), creationDemo, sec)
		Expect(err).To(BeNil())
		draft, _ := detail.FindStateByName("draft")

		Expect(graph.UpdateState(context.Background(), detail.ID,
			&graph.StateUpdating{SID: draft.ID, Name: "drafting", Weight: 5}, sec)).To(BeNil())

		fresh, err := graph.DetailWorkflow(context.Background(), detail.ID)
		Expect(err).To(BeNil())
		renamed, found := fresh.FindState(draft.ID)
		Expect(found).To(BeTrue())
		Expect(renamed.Name).To(Equal("drafting"))
		Expect(renamed.Weight).To(Equal(5))

		err = graph.UpdateState(context.Background(), detail.ID,
			&graph.StateUpdating{SID: draft.ID, Name: "review"}, sec)
		Expect(err).To(Equal(bizerror.ErrStateExisted))
	})
}

func TestUpdateStateWeights(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should reorder states and roll back on an unknown state", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		sec := testinfra.BuildSecCtx(100, authority.RoleAdmin)
		detail, err := graph.CreateWorkflow(context.Background(), creationDemo, sec)
		Expect(err).To(BeNil())
		draft, _ := detail.FindStateByName("draft")
		published, _ := detail.FindStateByName("published")

		Expect(graph.UpdateStateWeights(context.Background(), detail.ID, &[]graph.StateWeightUpdating{
			{SID: draft.ID, Weight: 30}, {SID: published.ID, Weight: 10},
		}, sec)).To(BeNil())

		fresh, err := graph.DetailWorkflow(context.Background(), detail.ID)
		Expect(err).To(BeNil())
		// weight order changed: published now sorts before draft
		Expect(fresh.States[2].ID).To(Equal(published.ID))
		Expect(fresh.States[3].ID).To(Equal(draft.ID))

		err = graph.UpdateStateWeights(context.Background(), detail.ID, &[]graph.StateWeightUpdating{
			{SID: draft.ID, Weight: 1}, {SID: 404404, Weight: 2},
		}, sec)
		Expect(err).ToNot(BeNil())

		// the transaction left the first weight untouched
		graph.InvalidateCachedWorkflow(detail.ID)
		after, err := graph.DetailWorkflow(context.Background(), detail.ID)
		Expect(err).To(BeNil())
		unchanged, _ := after.FindState(draft.ID)
		Expect(unchanged.Weight).To(Equal(30))
	})

	t.Run("an empty updating list is a no-op for anyone", func(t *testing.T) {
		Expect(graph.UpdateStateWeights(context.Background(), 1, &[]graph.StateWeightUpdating{}, nil)).To(BeNil())
	})
}
