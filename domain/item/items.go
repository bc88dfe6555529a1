package item

import (
	"context"
	"time"

	"stateflow/bizerror"
	"stateflow/common"
	"stateflow/domain"
	"stateflow/domain/graph"
	"stateflow/domain/transit"
	"stateflow/persistence"
	"stateflow/session"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sony/sonyflake"
)

var (
	idWorker = sonyflake.NewSonyflake(sonyflake.Settings{})

	CreateItemFunc = CreateItem
	DetailItemFunc = DetailItem
	QueryItemsFunc = QueryItems
)

type ItemCreation struct {
	Name       string   `json:"name" binding:"required"`
	WorkflowID types.ID `json:"workflowId" binding:"required"`
	Field      string   `json:"field" binding:"required"`
}

// CreateItem persists a new item sitting in the workflow's creation state
// on the given field. The creation state predates any executed transition,
// so no history record is written here.
func CreateItem(ctx context.Context, c *ItemCreation, sec *session.Context) (*domain.ItemDetail, error) {
	if sec == nil || sec.Identity.ID == 0 {
		return nil, bizerror.ErrForbidden
	}

	creation, err := graph.CreationStateFunc(ctx, c.WorkflowID)
	if err != nil {
		return nil, err
	}

	now := time.Now().Round(time.Millisecond)
	detail := domain.ItemDetail{
		Item: domain.Item{
			ID: common.NextId(idWorker), Name: c.Name, OwnerID: sec.Identity.ID,
			CreateTime: now, UpdateTime: now,
		},
		StateFields: []domain.ItemStateField{{
			Field: c.Field, WorkflowID: c.WorkflowID,
			CurrentSID: creation.ID, UpdateTime: now,
		}},
	}

	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	err = db.Transaction(func(tx *gorm.DB) error {
		return detail.Save(tx)
	})
	if err != nil {
		return nil, err
	}
	return &detail, nil
}

func DetailItem(ctx context.Context, id types.ID) (*domain.ItemDetail, error) {
	detail := domain.ItemDetail{}
	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	if err := db.Where(&domain.Item{ID: id}).First(&detail.Item).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, bizerror.ErrNotFound
		}
		return nil, err
	}
	if err := db.Where(domain.ItemStateField{ItemID: id}).
		Order("field ASC").Find(&detail.StateFields).Error; err != nil {
		return nil, err
	}
	return &detail, nil
}

type ItemQuery struct {
	Name string `form:"name"`
}

func QueryItems(ctx context.Context, query *ItemQuery) (*[]domain.Item, error) {
	var items []domain.Item
	db := persistence.ActiveDataSourceManager.GormDB(ctx)

	q := db.Model(&domain.Item{})
	if query != nil && query.Name != "" {
		q = q.Where("name like ?", "%"+query.Name+"%")
	}
	if err := q.Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return &items, nil
}

// ResolveTarget is the TargetResolver of this deployment: targets are items.
// A vanished item resolves to nil without error.
func ResolveTarget(ctx context.Context, targetType string, id types.ID) (transit.Target, error) {
	if targetType != domain.ItemTargetType {
		return nil, bizerror.ErrNotFound
	}
	detail, err := DetailItem(ctx, id)
	if err != nil {
		if err == bizerror.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return detail, nil
}
