// Package monitor renders tracking output for humans: trajectory plots,
// per-frame track-count charts and the admin debug routes over the results
// store.
package monitor
