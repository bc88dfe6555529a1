package graph

import (
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/patrickmn/go-cache"
)

// detailCache holds loaded WorkflowDetail values per process. Every write
// to a workflow, state or edge invalidates the entry before returning, so
// a stale permission graph is never served.
var detailCache = cache.New(cache.NoExpiration, 10*time.Minute)

func InvalidateCachedWorkflow(id types.ID) {
	detailCache.Delete(id.String())
}
