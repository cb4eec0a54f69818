package jobstore

import (
	"go.uber.org/fx"
)

// Module provides the job store to the fx graph, bound to the bun.IDB
// binding that internal/database.Module exposes.
var Module = fx.Module("jobstore",
	fx.Provide(New),
)
