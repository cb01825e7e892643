package workflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var commandsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "training",
		Subsystem: "workflow",
		Name:      "commands_total",
		Help:      "Workflow commands processed, by command and outcome.",
	},
	[]string{"command", "outcome"},
)

// observeCommand records one command execution. The outcome is the stable
// workflow error code, "ok" on success, or "error" for unexpected failures.
func observeCommand(command string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = Code(err)
		if outcome == "" {
			outcome = "error"
		}
	}
	commandsTotal.WithLabelValues(command, outcome).Inc()
}
