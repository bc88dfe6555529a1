package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fundwit/go-commons/types"
)

// RoleSet is the set of role names allowed to traverse one edge,
// stored as a JSON column.
type RoleSet []string

func (s RoleSet) Value() (driver.Value, error) {
	jsonBytes, err := json.Marshal(&s)
	if err != nil {
		return nil, err
	}
	return string(jsonBytes), nil
}

func (s *RoleSet) Scan(v interface{}) error {
	jsonString, ok := v.(string)
	if !ok {
		jsonByte, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("type is neither string nor []byte: %T %v", v, v)
		}
		jsonString = string(jsonByte)
	}
	return json.Unmarshal([]byte(jsonString), s)
}

// ConfigTransition is a statically configured, role-gated edge of a
// workflow's permission graph. From and to state must belong to the
// same workflow as the edge itself.
type ConfigTransition struct {
	ID         types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	WorkflowID types.ID `json:"workflowId" sql:"type:BIGINT UNSIGNED NOT NULL"`

	FromSID types.ID `json:"fromSid" gorm:"column:from_sid" sql:"type:BIGINT UNSIGNED NOT NULL"`
	ToSID   types.ID `json:"toSid" gorm:"column:to_sid" sql:"type:BIGINT UNSIGNED NOT NULL"`

	Roles RoleSet `json:"roles" sql:"type:TEXT"`

	CreateTime time.Time `json:"createTime" sql:"type:DATETIME(3) NOT NULL"`
}

func (t *ConfigTransition) TableName() string {
	return "config_transitions"
}
