// Package common holds guards shared by the settlement engines.
package common

import "errors"

// ErrModulePaused is returned when a call reaches an engine whose module is
// administratively paused.
var ErrModulePaused = errors.New("module paused")

// PauseView reports the pause switch for a named engine module.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the module is paused. A nil view or an empty
// module name disables the check.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
