// Package cli — команды covenant-cli: задачи, instances,
// circuit breakers и schedules через HTTP API.
package cli
