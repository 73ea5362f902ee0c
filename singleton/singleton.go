// Package singleton provides the optional process-wide entry points named
// in spec §5/§9 for host applications that want one ambient Session Core
// instead of threading a *session.Core through their own call graph.
package singleton

import (
	"fmt"
	"sync"

	"github.com/savegress/license-runtime/session"
)

var (
	mu     sync.Mutex
	shared *session.Core
)

// Configure builds the process-wide Core from cfg and stores it as Shared.
// A second call without force returns an error rather than silently
// replacing a Core that background cycles and callers may already be
// using; force=true disposes the previous Core first.
func Configure(cfg session.Config, force bool) (*session.Core, error) {
	mu.Lock()
	defer mu.Unlock()

	if shared != nil {
		if !force {
			return nil, fmt.Errorf("singleton: already configured; pass force=true to replace")
		}
		_ = shared.Dispose()
		shared = nil
	}

	core, err := session.New(cfg)
	if err != nil {
		return nil, err
	}
	shared = core
	return shared, nil
}

// Shared returns the process-wide Core, or nil if Configure has not been
// called.
func Shared() *session.Core {
	mu.Lock()
	defer mu.Unlock()
	return shared
}

// Shutdown disposes the process-wide Core, if any, and clears it so a
// subsequent Configure call succeeds without force.
func Shutdown() error {
	mu.Lock()
	defer mu.Unlock()
	if shared == nil {
		return nil
	}
	err := shared.Dispose()
	shared = nil
	return err
}
