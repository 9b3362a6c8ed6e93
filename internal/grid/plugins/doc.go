// Package plugins contains the built-in grid plugins and Defaults, which
// assembles the standard set for a table screen.
//
// Every plugin stores its sub-state under its own name in the table state
// and reaches the rest of the table only through the plugin context.
package plugins
