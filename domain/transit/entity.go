package transit

import (
	"stateflow/domain"

	"github.com/fundwit/go-commons/types"
)

// ScheduleHorizon separates immediate from deferred transitions: a
// timestamp further in the future than this marks the instance scheduled.
const ScheduleHorizon int64 = 60

type TransitionCreation struct {
	WorkflowID types.ID `json:"workflowId" binding:"required"`
	FromSID    types.ID `json:"fromSid"`
	ToSID      types.ID `json:"toSid"`
	Field      string   `json:"field"`

	Comment    string              `json:"comment"`
	ScheduleAt int64               `json:"scheduleAt"`
	Attached   domain.AttachedData `json:"attached"`

	// ForDeletion marks an instance constructed purely to be deleted
	// later; such an instance needs no origin state.
	ForDeletion bool `json:"-"`
}

// Dedup is the request-scoped double-execution guard. It must be created
// fresh per logical request or sweep run; it is never persisted.
type Dedup struct {
	results map[string]types.ID
}

func NewDedup() *Dedup {
	return &Dedup{results: map[string]types.ID{}}
}

func (d *Dedup) prior(key string) (types.ID, bool) {
	if d == nil || d.results == nil {
		return 0, false
	}
	sid, found := d.results[key]
	return sid, found
}

func (d *Dedup) record(key string, sid types.ID) {
	if d == nil {
		return
	}
	if d.results == nil {
		d.results = map[string]types.ID{}
	}
	d.results[key] = sid
}

func (d *Dedup) Reset() {
	d.results = map[string]types.ID{}
}
