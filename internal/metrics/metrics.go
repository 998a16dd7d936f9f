package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EvaluationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clientrules_evaluations_total",
		Help: "Total number of evaluation contexts processed.",
	})

	RulesMatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clientrules_rules_matched_total",
		Help: "Total number of rule matches, labelled by rule category.",
	}, []string{"category"})

	ConditionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clientrules_condition_errors_total",
		Help: "Conditions that evaluated to false because they could not be applied, labelled by kind.",
	}, []string{"kind"})

	LogicErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clientrules_logic_expression_errors_total",
		Help: "Rules skipped because their logic expression failed to compile.",
	})

	UnknownClientTypes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clientrules_unknown_client_types_total",
		Help: "Evaluations whose client type id did not resolve to a category.",
	})

	RuleMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clientrules_rule_mutations_total",
		Help: "Rule store mutations, labelled by audit action.",
	}, []string{"action"})

	ImportRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clientrules_import_records_total",
		Help: "Imported rule records, labelled by status.",
	}, []string{"status"})

	ActionsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clientrules_actions_resolved_total",
		Help: "Actions resolved against a context, labelled by type and status.",
	}, []string{"action_type", "status"})

	EvaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clientrules_evaluation_duration_ms",
		Help:    "Single-context evaluation latency in milliseconds.",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 25, 50, 100, 250, 500},
	})

	BatchQueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clientrules_batch_queue_utilization_ratio",
		Help: "Current batch evaluation queue utilization (0–1).",
	})

	ActiveRules = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clientrules_rules_stored",
		Help: "Number of rules currently held by the store.",
	})

	AuditSinkDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clientrules_audit_sink_dropped_total",
		Help: "Audit entries that could not be queued for the file sink.",
	})
)
