package item_test

import (
	"context"
	"stateflow/authority"
	"stateflow/bizerror"
	"stateflow/domain"
	"stateflow/domain/graph"
	"stateflow/domain/item"
	"stateflow/persistence"
	"stateflow/testinfra"
	"testing"

	"github.com/fundwit/go-commons/types"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/assert"
)

func setup(t *testing.T, testDatabase **testinfra.TestDatabase) {
	db := testinfra.StartMysqlTestDatabase("stateflow")
	assert.Nil(t, db.DS.GormDB(context.Background()).AutoMigrate(
		&domain.Workflow{}, &domain.WorkflowState{}, &domain.ConfigTransition{},
		&domain.TransitionRecord{}, &domain.Item{}, &domain.ItemStateField{}).Error)
	persistence.ActiveDataSourceManager = db.DS
	*testDatabase = db
}
func teardown(t *testing.T, testDatabase *testinfra.TestDatabase) {
	if testDatabase != nil {
		testinfra.StopMysqlTestDatabase(testDatabase)
	}
}

func buildWorkflow(t *testing.T) *domain.WorkflowDetail {
	detail, err := graph.CreateWorkflow(context.Background(), &graph.WorkflowCreation{
		Name:   "publishing",
		States: []graph.StateCreating{{Name: "draft", Weight: 1}},
	}, testinfra.BuildSecCtx(100, authority.RoleAdmin))
	assert.Nil(t, err)
	return detail
}

func TestCreateItem(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should place the new item in the creation state without history", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		workflow := buildWorkflow(t)
		creation, found := workflow.CreationState()
		Expect(found).To(BeTrue())

		detail, err := item.CreateItem(context.Background(), &item.ItemCreation{
			Name: "launch post", WorkflowID: workflow.ID, Field: "review",
		}, testinfra.BuildSecCtx(200, "editor"))
		Expect(err).To(BeNil())
		Expect(detail.ID).ToNot(BeZero())
		Expect(detail.OwnerID).To(Equal(types.ID(200)))
		Expect(detail.CreateTime).ToNot(BeZero())

		current, bound := detail.CurrentStateID("review")
		Expect(bound).To(BeTrue())
		Expect(current).To(Equal(creation.ID))
		_, hasPrevious := detail.PreviousStateID("review")
		Expect(hasPrevious).To(BeFalse())

		// the creation state predates any transition
		db := testDatabase.DS.GormDB(context.Background())
		var records int
		Expect(db.Model(&domain.TransitionRecord{}).Count(&records).Error).To(BeNil())
		Expect(records).To(BeZero())
	})

	t.Run("should require an authenticated caller", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		_, err := item.CreateItem(context.Background(), &item.ItemCreation{
			Name: "launch post", WorkflowID: 10, Field: "review",
		}, nil)
		Expect(err).To(Equal(bizerror.ErrForbidden))
	})

	t.Run("should fail for an unknown workflow", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		_, err := item.CreateItem(context.Background(), &item.ItemCreation{
			Name: "launch post", WorkflowID: types.ID(404404), Field: "review",
		}, testinfra.BuildSecCtx(200, "editor"))
		Expect(err).To(Equal(bizerror.ErrNotFound))
	})
}

func TestDetailItem(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should load the item with its state fields in field order", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		workflow := buildWorkflow(t)
		created, err := item.CreateItem(context.Background(), &item.ItemCreation{
			Name: "launch post", WorkflowID: workflow.ID, Field: "review",
		}, testinfra.BuildSecCtx(200, "editor"))
		Expect(err).To(BeNil())

		db := testDatabase.DS.GormDB(context.Background())
		Expect(db.Create(&domain.ItemStateField{ItemID: created.ID, Field: "publish",
			WorkflowID: workflow.ID, CurrentSID: types.ID(1)}).Error).To(BeNil())

		detail, err := item.DetailItem(context.Background(), created.ID)
		Expect(err).To(BeNil())
		Expect(detail.Name).To(Equal("launch post"))
		Expect(len(detail.StateFields)).To(Equal(2))
		Expect(detail.StateFields[0].Field).To(Equal("publish"))
		Expect(detail.StateFields[1].Field).To(Equal("review"))
	})

	t.Run("should answer not found for an unknown item", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		_, err := item.DetailItem(context.Background(), types.ID(404404))
		Expect(err).To(Equal(bizerror.ErrNotFound))
	})
}

func TestQueryItems(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should list items ascending and filter by name", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		workflow := buildWorkflow(t)
		sec := testinfra.BuildSecCtx(200, "editor")
		_, err := item.CreateItem(context.Background(), &item.ItemCreation{
			Name: "launch post", WorkflowID: workflow.ID, Field: "review"}, sec)
		Expect(err).To(BeNil())
		_, err = item.CreateItem(context.Background(), &item.ItemCreation{
			Name: "quarterly report", WorkflowID: workflow.ID, Field: "review"}, sec)
		Expect(err).To(BeNil())

		items, err := item.QueryItems(context.Background(), &item.ItemQuery{})
		Expect(err).To(BeNil())
		Expect(len(*items)).To(Equal(2))
		Expect((*items)[0].ID < (*items)[1].ID).To(BeTrue())

		items, err = item.QueryItems(context.Background(), &item.ItemQuery{Name: "launch"})
		Expect(err).To(BeNil())
		Expect(len(*items)).To(Equal(1))
		Expect((*items)[0].Name).To(Equal("launch post"))
	})
}

func TestResolveTarget(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should resolve items and report gone targets as nil", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		workflow := buildWorkflow(t)
		created, err := item.CreateItem(context.Background(), &item.ItemCreation{
			Name: "launch post", WorkflowID: workflow.ID, Field: "review",
		}, testinfra.BuildSecCtx(200, "editor"))
		Expect(err).To(BeNil())

		target, err := item.ResolveTarget(context.Background(), domain.ItemTargetType, created.ID)
		Expect(err).To(BeNil())
		Expect(target).ToNot(BeNil())
		Expect(target.TargetID()).To(Equal(created.ID))

		// a vanished item is nil without error
		target, err = item.ResolveTarget(context.Background(), domain.ItemTargetType, types.ID(404404))
		Expect(err).To(BeNil())
		Expect(target).To(BeNil())

		// a foreign target type is an error
		_, err = item.ResolveTarget(context.Background(), "document", created.ID)
		Expect(err).To(Equal(bizerror.ErrNotFound))
	})
}
