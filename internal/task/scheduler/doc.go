// Package scheduler keeps one live cron timer per enabled task and turns
// each firing into an agent session run.
//
// The Registry owns the timers and the per-task overlap gate, the Trigger
// drives a single execution to completion, and the Service combines them
// with the task store for the HTTP and MCP surfaces.
package scheduler
