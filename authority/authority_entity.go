package authority

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fundwit/go-commons/types"
)

// Permissions may also serve as a JSON column on stored accounts.
type Permissions []string

func (c Permissions) Value() (driver.Value, error) {
	jsonBytes, err := json.Marshal(&c)
	if err != nil {
		return nil, err
	}
	return string(jsonBytes), nil
}

func (c *Permissions) Scan(v interface{}) error {
	jsonString, ok := v.(string)
	if !ok {
		jsonByte, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("type is neither string nor []byte: %T %v", v, v)
		}
		jsonString = string(jsonByte)
	}
	return json.Unmarshal([]byte(jsonString), c)
}

func (c Permissions) HasRole(role string) bool {
	for _, v := range c {
		if strings.EqualFold(v, role) {
			return true
		}
	}
	return false
}

func (c Permissions) HasAdminRole() bool {
	return c.HasRole(RoleAdmin)
}

// HasWorkflowBypass reports whether the actor may bypass authorization for
// the given workflow, either globally or for that workflow alone.
func (c Permissions) HasWorkflowBypass(workflowID types.ID) bool {
	return c.HasRole(RoleWorkflowBypass) || c.HasRole(RoleWorkflowBypass+"_"+workflowID.String())
}
