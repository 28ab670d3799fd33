package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики оркестрации. Регистрируются в default registry и
// экспортируются через promhttp в каждом бинарнике.
var (
	// ThrottleEvents — количество эпизодов rate limiting:
	// instance получил отказ TRY_ACQUIRE и ушёл в throttle-ожидание.
	// Считается один раз на эпизод, не на каждый повторный опрос.
	ThrottleEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "covenant_throttle_events_total",
		Help: "Number of times an orchestration instance entered the throttled state.",
	})

	// CircuitTrips — количество вызовов TRIP circuit breaker.
	CircuitTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "covenant_circuit_trips_total",
		Help: "Number of circuit breaker TRIP calls.",
	}, []string{"workflow_type"})

	// CircuitRejections — количество instance, остановленных открытым
	// circuit breaker до вызова activity.
	CircuitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "covenant_circuit_rejections_total",
		Help: "Number of instances blocked by an open circuit before any activity call.",
	}, []string{"workflow_type"})

	// InstancesCompleted — завершённые orchestration instances по статусу.
	InstancesCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "covenant_instances_completed_total",
		Help: "Orchestration instances finished, by terminal status.",
	}, []string{"status"})
)
