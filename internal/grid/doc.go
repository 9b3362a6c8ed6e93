// Package grid provides the pluggable data-grid framework behind every
// table screen of the console.
//
// A table is composed of independently registered plugins that contribute
// columns, pagination, filtering, sorting, selection, column widths and
// inline editing. The package has no HTTP or HTML dependencies; the web
// layer drives it and renders the resulting [View].
//
// # Architecture
//
//   - Store: the single-writer table state. Every mutation is a typed
//     [Action]; subscribers are notified synchronously and in order.
//   - PluginContext: host props, the store, the [Helpers] mutators and a
//     table-scoped logger, shared by every plugin.
//   - Registry: owns the plugins and the context for a table's lifetime and
//     runs lifecycle hooks with per-plugin failure isolation.
//   - Render pipeline: [GetProcessedColumns], [BuildPaginationConfig] and
//     [BuildFilterPanel] merge plugin output with host defaults.
//   - Change dispatcher: [OnChange] routes sort, paginate and filter
//     interactions to the owning plugins.
//
// # Lifecycle
//
//	t := grid.NewTable(props, logger, plugins.Defaults(deps)...)
//	t.Mount(ctx)
//	defer t.Close()
//
//	_ = t.OnChange(grid.PaginationInfo{}, nil, filters, grid.ChangeExtra{Action: grid.ActionFilter})
//	if err := t.Load(ctx); err != nil {
//	    return err
//	}
//	view := t.View(baseColumns)
//
// Register installs a plugin immediately and queues its setup; Mount runs
// queued setups in priority order. Close uninstalls every plugin before the
// registry is cleared, so timers and subscriptions never outlive the table.
//
// # Error Handling
//
// Plugin hooks never bring down a render. Errors and panics are converted
// to [*PluginError], logged with the plugin name and stack, and the
// pipeline degrades to the safest fallback: base columns, default
// pagination, no filter panel. Data-source errors are returned from Load.
package grid
