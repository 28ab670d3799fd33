// Package api — HTTP API: задачи, orchestration instances,
// circuit breakers и schedules.
package api
