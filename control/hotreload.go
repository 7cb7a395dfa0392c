// control/hotreload.go
// Author: momentics <momentics@gmail.com>
//
// Hooks and interfaces for hot-reload-compatible components.
// adapters.ControlAdapter.OnReload registers into both this package-level
// list and its own ConfigStore's listeners, so cmd/lapcd's pool-threshold
// reload hook (cmd/lapcd/serve.go) fires however the reload was triggered.

package control

var reloadHooks []func()

// RegisterReloadHook adds a component reload listener.
func RegisterReloadHook(fn func()) {
	reloadHooks = append(reloadHooks, fn)
}

// TriggerHotReload dispatches all reload hooks.
func TriggerHotReload() {
	for _, fn := range reloadHooks {
		go fn()
	}
}
