// Package telemetry — структурное логирование (log/slog) и метрики
// (Prometheus) для всех компонентов Covenant.
package telemetry
