package common

import "errors"

var ErrModulePaused = errors.New("module paused")

// Module identifiers recognised by the pause switch.
const (
	ModuleStrategy = "strategy"
	ModuleSavings  = "savings"
	ModuleDCA      = "dca"
	ModuleDaily    = "daily"
)

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
