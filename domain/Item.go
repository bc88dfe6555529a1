package domain

import (
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

const ItemTargetType = "item"

// Item is the workflow-bearing target entity of this service. An item may
// carry more than one independent workflow field.
type Item struct {
	ID      types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	Name    string   `json:"name"`
	OwnerID types.ID `json:"ownerId" sql:"type:BIGINT UNSIGNED NOT NULL"`

	CreateTime time.Time `json:"createTime" sql:"type:DATETIME(3) NOT NULL"`
	UpdateTime time.Time `json:"updateTime" sql:"type:DATETIME(3) NOT NULL"`
}

func (i *Item) TableName() string {
	return "items"
}

// ItemStateField is the recorded workflow position of one item on one
// workflow field/channel.
type ItemStateField struct {
	ItemID types.ID `json:"itemId" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	Field  string   `json:"field" gorm:"primary_key"`

	WorkflowID  types.ID `json:"workflowId" sql:"type:BIGINT UNSIGNED NOT NULL"`
	CurrentSID  types.ID `json:"currentSid" gorm:"column:current_sid" sql:"type:BIGINT UNSIGNED NOT NULL"`
	PreviousSID types.ID `json:"previousSid" gorm:"column:previous_sid" sql:"type:BIGINT UNSIGNED NOT NULL"`

	UpdateTime time.Time `json:"updateTime" sql:"type:DATETIME(3) NOT NULL"`
}

func (f *ItemStateField) TableName() string {
	return "item_state_fields"
}

// ItemDetail is an item together with its loaded workflow fields. It is
// the concrete implementation of the engine's target contract.
type ItemDetail struct {
	Item

	StateFields []ItemStateField `json:"stateFields"`

	touched bool
}

func (d *ItemDetail) TargetType() string {
	return ItemTargetType
}

func (d *ItemDetail) TargetID() types.ID {
	return d.ID
}

func (d *ItemDetail) RevisionID() types.ID {
	return 0
}

func (d *ItemDetail) Owner() types.ID {
	return d.OwnerID
}

func (d *ItemDetail) findField(field string) (int, bool) {
	for idx := range d.StateFields {
		if d.StateFields[idx].Field == field {
			return idx, true
		}
	}
	return 0, false
}

func (d *ItemDetail) WorkflowOf(field string) (types.ID, bool) {
	idx, found := d.findField(field)
	if !found {
		return 0, false
	}
	return d.StateFields[idx].WorkflowID, true
}

func (d *ItemDetail) CurrentStateID(field string) (types.ID, bool) {
	idx, found := d.findField(field)
	if !found || d.StateFields[idx].CurrentSID == 0 {
		return 0, false
	}
	return d.StateFields[idx].CurrentSID, true
}

func (d *ItemDetail) PreviousStateID(field string) (types.ID, bool) {
	idx, found := d.findField(field)
	if !found || d.StateFields[idx].PreviousSID == 0 {
		return 0, false
	}
	return d.StateFields[idx].PreviousSID, true
}

// SetWorkflowField records the transition's destination state on the
// given field, remembering the origin as the previous state.
func (d *ItemDetail) SetWorkflowField(field string, t *Transition) {
	now := time.Now()
	idx, found := d.findField(field)
	if !found {
		d.StateFields = append(d.StateFields, ItemStateField{
			ItemID: d.ID, Field: field, WorkflowID: t.WorkflowID,
			CurrentSID: t.ToSID, PreviousSID: t.FromSID, UpdateTime: now,
		})
		return
	}
	d.StateFields[idx].PreviousSID = d.StateFields[idx].CurrentSID
	d.StateFields[idx].CurrentSID = t.ToSID
	d.StateFields[idx].UpdateTime = now
}

func (d *ItemDetail) Touch(now time.Time) {
	d.UpdateTime = now
	d.touched = true
}

// Save persists the item row and its state field rows in one pass.
func (d *ItemDetail) Save(tx *gorm.DB) error {
	if err := tx.Save(&d.Item).Error; err != nil {
		return err
	}
	for idx := range d.StateFields {
		d.StateFields[idx].ItemID = d.ID
		if err := tx.Save(&d.StateFields[idx]).Error; err != nil {
			return err
		}
	}
	return nil
}
