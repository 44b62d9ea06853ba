package knowledge

func monitoringPatterns() []*IncidentPattern {
	return []*IncidentPattern{
		{
			ID:          "mon-scrape-failures",
			Name:        "Metrics scrape failures",
			Category:    CategoryMonitoring,
			Subcategory: "collection",
			Severity:    "medium",
			Symptoms: []Symptom{
				{Type: SymptomMetric, Name: "scrape_failures", Condition: CondAbove, Value: "10", Weight: 5},
				{Type: SymptomLog, Name: "scrape timeout", Condition: CondContains, Weight: 3},
			},
			Signals:    []string{"context deadline exceeded", "target down"},
			RootCauses: []string{"Exporter endpoint overloaded", "Scrape timeout below response time", "Target behind broken network policy"},
			Actions: []RecommendedAction{
				{ActionType: "restart_service", ActionCategory: "kubernetes", BaseConfidence: 56, Params: map[string]string{"target": "exporter"}, EstimatedResolutionS: 90},
			},
			AutonomousSafe:       true,
			BlastRadius:          "low",
			AvgResolutionSeconds: 240,
			Tags:                 []string{"scrape", "metrics"},
		},
		{
			ID:          "mon-cardinality-explosion",
			Name:        "Metric cardinality explosion",
			Category:    CategoryMonitoring,
			Subcategory: "storage",
			Severity:    "high",
			Symptoms: []Symptom{
				{Type: SymptomMetric, Name: "active_series", Condition: CondAbove, Value: "1000000", Weight: 5},
				{Type: SymptomMetric, Name: "memory_usage", Condition: CondAbove, Value: "85", Weight: 3},
			},
			Signals:    []string{"series limit", "out of memory", "cardinality"},
			RootCauses: []string{"Label with unbounded values added to a hot metric", "Per-request ID leaked into labels"},
			Actions: []RecommendedAction{
				{ActionType: "drop_metric_labels", ActionCategory: "generic", BaseConfidence: 66, RequiresApproval: true, EstimatedResolutionS: 180},
				{ActionType: "rollback_deploy", ActionCategory: "cicd", BaseConfidence: 60, RequiresApproval: true, EstimatedResolutionS: 180},
			},
			AutonomousSafe:       false,
			BlastRadius:          "medium",
			AvgResolutionSeconds: 600,
			Tags:                 []string{"cardinality"},
		},
		{
			ID:          "mon-alert-storm",
			Name:        "Alert storm from single fault",
			Category:    CategoryMonitoring,
			Subcategory: "alerting",
			Severity:    "medium",
			Symptoms: []Symptom{
				{Type: SymptomMetric, Name: "alerts_firing", Condition: CondAbove, Value: "50", Weight: 5},
				{Type: SymptomLog, Name: "alertmanager", Condition: CondContains, Weight: 2},
			},
			Signals:    []string{"firing", "notification rate"},
			RootCauses: []string{"Shared dependency failure fanning out without inhibition rules"},
			Actions: []RecommendedAction{
				{ActionType: "silence_downstream_alerts", ActionCategory: "generic", BaseConfidence: 58, RequiresApproval: true, EstimatedResolutionS: 60, RollbackAction: "remove_silence"},
			},
			AutonomousSafe:       false,
			BlastRadius:          "low",
			AvgResolutionSeconds: 300,
			Tags:                 []string{"alerting"},
		},
		{
			ID:          "mon-log-pipeline-lag",
			Name:        "Log pipeline falling behind",
			Category:    CategoryMonitoring,
			Subcategory: "logging",
			Severity:    "medium",
			Symptoms: []Symptom{
				{Type: SymptomMetric, Name: "log_ingest_lag_s", Condition: CondAbove, Value: "120", Weight: 5},
				{Type: SymptomMetric, Name: "queue_depth", Condition: CondAbove, Value: "5000", Weight: 3},
			},
			Signals:    []string{"buffer full", "dropped events", "backpressure"},
			RootCauses: []string{"Log volume spike from debug logging left on", "Indexer under-provisioned"},
			Actions: []RecommendedAction{
				{ActionType: "reduce_log_level", ActionCategory: "generic", BaseConfidence: 64, Params: map[string]string{"level": "info"}, EstimatedResolutionS: 60, RollbackAction: "restore_log_level"},
				{ActionType: "scale_up", ActionCategory: "kubernetes", BaseConfidence: 58, Params: map[string]string{"target": "indexer"}, EstimatedResolutionS: 120},
			},
			AutonomousSafe:       true,
			BlastRadius:          "low",
			AvgResolutionSeconds: 300,
			Tags:                 []string{"logging", "pipeline"},
		},
		{
			ID:          "mon-blind-spot",
			Name:        "Telemetry gap for a service",
			Category:    CategoryMonitoring,
			Subcategory: "collection",
			Severity:    "high",
			Symptoms: []Symptom{
				{Type: SymptomLog, Name: "no data", Condition: CondContains, Weight: 4},
				{Type: SymptomMetric, Name: "samples_received", Condition: CondBelow, Value: "1", Weight: 5},
			},
			Signals:    []string{"absent metrics", "stale data"},
			RootCauses: []string{"Agent crashed on the host", "Metric renamed in a release without dashboard update"},
			Actions: []RecommendedAction{
				{ActionType: "restart_service", ActionCategory: "kubernetes", BaseConfidence: 60, Params: map[string]string{"target": "agent"}, EstimatedResolutionS: 90},
			},
			AutonomousSafe:       true,
			BlastRadius:          "low",
			AvgResolutionSeconds: 240,
			Tags:                 []string{"telemetry", "gap"},
		},
	}
}
