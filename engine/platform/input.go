// Package platform defines where per-frame input comes from.
package platform

import "github.com/spaghettifunk/lumen/engine/core"

// InputSource produces the input the orchestrator sees for one frame.
type InputSource interface {
	Snapshot() core.InputSnapshot
}
