package knowledge

func applicationPatterns() []*IncidentPattern {
	return []*IncidentPattern{
		{
			ID:          "app-memory-leak",
			Name:        "Gradual memory leak",
			Category:    CategoryApplication,
			Subcategory: "memory",
			Severity:    "high",
			Symptoms: []Symptom{
				{Type: SymptomMetric, Name: "memory_usage", Condition: CondAbove, Value: "85", Weight: 4},
				{Type: SymptomMetric, Name: "gc_pause_ms", Condition: CondAbove, Value: "100", Weight: 2},
				{Type: SymptomLog, Name: "out of memory", Condition: CondContains, Weight: 3},
			},
			Signals:    []string{"heap", "OOMKilled", "allocation failed"},
			RootCauses: []string{"Unbounded in-process cache", "Goroutine or thread leak holding references", "Listener registered per request and never removed"},
			Actions: []RecommendedAction{
				{ActionType: "restart_service", ActionCategory: "kubernetes", BaseConfidence: 78, EstimatedResolutionS: 90, RollbackAction: ""},
				{ActionType: "update_resources", ActionCategory: "kubernetes", BaseConfidence: 55, RequiresApproval: true, EstimatedResolutionS: 180},
			},
			AutonomousSafe:       true,
			BlastRadius:          "low",
			AvgResolutionSeconds: 240,
			Tags:                 []string{"memory", "leak"},
		},
		{
			ID:          "app-latency-spike",
			Name:        "Request latency spike under load",
			Category:    CategoryApplication,
			Subcategory: "performance",
			Severity:    "high",
			Symptoms: []Symptom{
				{Type: SymptomMetric, Name: "request_latency_ms", Condition: CondAbove, Value: "1000", Weight: 4},
				{Type: SymptomMetric, Name: "cpu_usage", Condition: CondAbove, Value: "80", Weight: 3},
				{Type: SymptomMetric, Name: "queue_depth", Condition: CondAbove, Value: "100", Weight: 2},
			},
			Signals:    []string{"timeout", "context deadline exceeded", "saturated"},
			RootCauses: []string{"Traffic above provisioned capacity", "Downstream dependency slowdown amplified by retries"},
			Actions: []RecommendedAction{
				{ActionType: "scale_up", ActionCategory: "kubernetes", BaseConfidence: 76, Params: map[string]string{"factor": "2"}, EstimatedResolutionS: 90, RollbackAction: "scale_down"},
				{ActionType: "enable_circuit_breaker", ActionCategory: "generic", BaseConfidence: 58, EstimatedResolutionS: 60},
			},
			AutonomousSafe:       true,
			BlastRadius:          "low",
			AvgResolutionSeconds: 180,
			Tags:                 []string{"latency", "scaling"},
		},
		{
			ID:          "app-error-burst",
			Name:        "Error rate burst after change",
			Category:    CategoryApplication,
			Subcategory: "errors",
			Severity:    "critical",
			Symptoms: []Symptom{
				{Type: SymptomMetric, Name: "error_rate", Condition: CondAbove, Value: "5", Weight: 5},
				{Type: SymptomLog, Name: "panic", Condition: CondContains, Weight: 3},
				{Type: SymptomLog, Name: "500", Condition: CondContains, Weight: 2},
			},
			Signals:    []string{"panic", "nil pointer", "unhandled exception", "internal server error"},
			RootCauses: []string{"Regression in latest deployment", "Feature flag enabled broken path", "Schema migration out of step with code"},
			Actions: []RecommendedAction{
				{ActionType: "rollback_deploy", ActionCategory: "cicd", BaseConfidence: 82, EstimatedResolutionS: 180, RollbackAction: "pipeline_retry"},
				{ActionType: "disable_feature_flag", ActionCategory: "generic", BaseConfidence: 60, EstimatedResolutionS: 30},
			},
			AutonomousSafe:       true,
			BlastRadius:          "medium",
			AvgResolutionSeconds: 300,
			Tags:                 []string{"errors", "deploy"},
			RelatedPatterns:      []string{"cicd-bad-deploy"},
		},
		{
			ID:          "app-thread-exhaustion",
			Name:        "Worker pool exhaustion",
			Category:    CategoryApplication,
			Subcategory: "concurrency",
			Severity:    "high",
			Symptoms: []Symptom{
				{Type: SymptomMetric, Name: "goroutines", Condition: CondAbove, Value: "10000", Weight: 4},
				{Type: SymptomMetric, Name: "queue_depth", Condition: CondAbove, Value: "500", Weight: 3},
				{Type: SymptomLog, Name: "worker pool", Condition: CondContains, Weight: 2},
			},
			Signals:    []string{"goroutine leak", "all workers busy", "queue full"},
			RootCauses: []string{"Blocked workers waiting on slow dependency", "Missing timeout on outbound calls"},
			Actions: []RecommendedAction{
				{ActionType: "restart_service", ActionCategory: "kubernetes", BaseConfidence: 70, EstimatedResolutionS: 90},
			},
			AutonomousSafe:       true,
			BlastRadius:          "low",
			AvgResolutionSeconds: 240,
			Tags:                 []string{"concurrency", "workers"},
		},
		{
			ID:          "app-retry-storm",
			Name:        "Retry storm amplifying failure",
			Category:    CategoryApplication,
			Subcategory: "resilience",
			Severity:    "critical",
			Symptoms: []Symptom{
				{Type: SymptomMetric, Name: "request_rate", Condition: CondAbove, Value: "5000", Weight: 3},
				{Type: SymptomMetric, Name: "error_rate", Condition: CondAbove, Value: "10", Weight: 4},
				{Type: SymptomLog, Name: "retry", Condition: CondContains, Weight: 2},
			},
			Signals:    []string{"retrying", "max retries", "backoff"},
			RootCauses: []string{"Clients retrying without jitter against a degraded dependency"},
			Actions: []RecommendedAction{
				{ActionType: "enable_circuit_breaker", ActionCategory: "generic", BaseConfidence: 72, EstimatedResolutionS: 60},
				{ActionType: "rate_limit", ActionCategory: "generic", BaseConfidence: 64, Params: map[string]string{"rps": "1000"}, EstimatedResolutionS: 60, RollbackAction: "remove_rate_limit"},
			},
			AutonomousSafe:       true,
			BlastRadius:          "medium",
			AvgResolutionSeconds: 300,
			Tags:                 []string{"retries", "resilience"},
		},
		{
			ID:          "app-cache-stampede",
			Name:        "Cache stampede on expiry",
			Category:    CategoryApplication,
			Subcategory: "cache",
			Severity:    "high",
			Symptoms: []Symptom{
				{Type: SymptomMetric, Name: "cache_hit_ratio", Condition: CondBelow, Value: "50", Weight: 4},
				{Type: SymptomMetric, Name: "db_connections", Condition: CondAbove, Value: "80", Weight: 3},
			},
			Signals:    []string{"cache miss", "thundering herd"},
			RootCauses: []string{"Hot key expired and every request recomputes", "Cache flushed during deploy"},
			Actions: []RecommendedAction{
				{ActionType: "warm_cache", ActionCategory: "generic", BaseConfidence: 60, EstimatedResolutionS: 120},
				{ActionType: "scale_up", ActionCategory: "kubernetes", BaseConfidence: 55, EstimatedResolutionS: 90},
			},
			AutonomousSafe:       true,
			BlastRadius:          "medium",
			AvgResolutionSeconds: 300,
			Tags:                 []string{"cache"},
		},
		{
			ID:          "app-queue-backlog",
			Name:        "Message queue backlog growing",
			Category:    CategoryApplication,
			Subcategory: "messaging",
			Severity:    "high",
			Symptoms: []Symptom{
				{Type: SymptomMetric, Name: "queue_depth", Condition: CondAbove, Value: "10000", Weight: 5},
				{Type: SymptomMetric, Name: "consumer_lag", Condition: CondAbove, Value: "60", Weight: 3},
			},
			Signals:    []string{"consumer lag", "backlog", "unacked"},
			RootCauses: []string{"Consumers crashed or slowed", "Producer burst beyond consumer capacity", "Poison message blocking partition"},
			Actions: []RecommendedAction{
				{ActionType: "scale_up", ActionCategory: "kubernetes", BaseConfidence: 70, Params: map[string]string{"target": "consumers", "factor": "2"}, EstimatedResolutionS: 120, RollbackAction: "scale_down"},
				{ActionType: "move_to_dlq", ActionCategory: "generic", BaseConfidence: 56, RequiresApproval: true, EstimatedResolutionS: 60},
			},
			AutonomousSafe:       true,
			BlastRadius:          "medium",
			AvgResolutionSeconds: 420,
			Tags:                 []string{"queue", "messaging"},
		},
		{
			ID:          "app-fd-exhaustion",
			Name:        "File descriptor exhaustion",
			Category:    CategoryApplication,
			Subcategory: "resources",
			Severity:    "high",
			Symptoms: []Symptom{
				{Type: SymptomLog, Name: "too many open files", Condition: CondContains, Weight: 5},
				{Type: SymptomMetric, Name: "open_fds", Condition: CondAbove, Value: "900", Weight: 3},
			},
			Signals:    []string{"EMFILE", "too many open files"},
			RootCauses: []string{"Response bodies not closed", "Socket leak under connection churn"},
			Actions: []RecommendedAction{
				{ActionType: "restart_service", ActionCategory: "kubernetes", BaseConfidence: 74, EstimatedResolutionS: 90},
			},
			AutonomousSafe:       true,
			BlastRadius:          "low",
			AvgResolutionSeconds: 180,
			Tags:                 []string{"fds", "resources"},
		},
	}
}
