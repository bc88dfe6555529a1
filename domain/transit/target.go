package transit

import (
	"context"
	"time"

	"stateflow/domain"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

// Target is the small contract a workflow-bearing entity implements so the
// engine can read its recorded position and write the new one back.
type Target interface {
	TargetType() string
	TargetID() types.ID
	RevisionID() types.ID
	Owner() types.ID

	WorkflowOf(field string) (types.ID, bool)
	CurrentStateID(field string) (types.ID, bool)
	PreviousStateID(field string) (types.ID, bool)

	SetWorkflowField(field string, t *domain.Transition)
	Touch(now time.Time)
	Save(tx *gorm.DB) error
}

// TargetResolver loads a target entity by type and id. A nil target with a
// nil error means the entity is gone.
type TargetResolver func(ctx context.Context, targetType string, id types.ID) (Target, error)
