package event

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fundwit/go-commons/types"
)

const (
	CategoryTransitionForced = "TRANSITION_FORCED"
	CategoryTransitionDenied = "TRANSITION_DENIED"
	CategoryStaleSchedule    = "STALE_SCHEDULE"
	CategoryDoubleExecution  = "DOUBLE_EXECUTION"
)

type Category string

type Event struct {
	SourceType string   `json:"sourceType"`
	SourceId   types.ID `json:"sourceId"`
	SourceDesc string   `json:"sourceDesc"`

	Category   Category   `json:"category"`
	Properties Properties `json:"properties" sql:"type:TEXT"`

	CreatorId   types.ID `json:"creatorId"`
	CreatorName string   `json:"creatorName"`
}

type EventRecord struct {
	Event

	Timestamp time.Time `json:"timestamp" sql:"type:DATETIME(6)"`
	Synced    bool      `json:"synced"`
}

func (r *EventRecord) TableName() string {
	return "events"
}

type Property struct {
	Name     string `json:"name"`
	OldValue string `json:"oldValue"`
	NewValue string `json:"newValue"`
}

type Properties []Property

func (t Properties) Value() (driver.Value, error) {
	jsonBytes, err := json.Marshal(&t)
	if err != nil {
		return nil, err
	}
	return string(jsonBytes), nil
}

func (c *Properties) Scan(v interface{}) error {
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
