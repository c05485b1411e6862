// Package integration runs the catalog cache server end to end against a
// fake Xtream panel: sync, browse, search and lazy series details.
package integration
