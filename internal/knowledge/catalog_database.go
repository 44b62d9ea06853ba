package knowledge

func databasePatterns() []*IncidentPattern {
	return []*IncidentPattern{
		{
			ID:          "db-conn-pool-exhausted",
			Name:        "Connection pool exhausted",
			Category:    CategoryDatabase,
			Subcategory: "connections",
			Severity:    "critical",
			Symptoms: []Symptom{
				{Type: SymptomMetric, Name: "db_connections", Condition: CondAbove, Value: "95", Weight: 4},
				{Type: SymptomLog, Name: "too many connections", Condition: CondContains, Weight: 4},
				{Type: SymptomMetric, Name: "request_latency_ms", Condition: CondAbove, Value: "500", Weight: 2},
			},
			Signals:    []string{"connection refused", "pool timeout", "too many clients"},
			RootCauses: []string{"Connection leak in application", "Pool sized below peak concurrency", "Long-running transactions holding connections"},
			Actions: []RecommendedAction{
				{ActionType: "kill_connections", ActionCategory: "database", BaseConfidence: 75, Params: map[string]string{"idle_seconds": "300"}, EstimatedResolutionS: 60},
				{ActionType: "restart_service", ActionCategory: "kubernetes", BaseConfidence: 60, RequiresApproval: true, EstimatedResolutionS: 120},
			},
			AutonomousSafe:       true,
			BlastRadius:          "high",
			AvgResolutionSeconds: 300,
			Tags:                 []string{"connections", "pool"},
		},
		{
			ID:          "db-slow-queries",
			Name:        "Slow query pileup",
			Category:    CategoryDatabase,
			Subcategory: "performance",
			Severity:    "high",
			Symptoms: []Symptom{
				{Type: SymptomMetric, Name: "query_latency_ms", Condition: CondAbove, Value: "1000", Weight: 4},
				{Type: SymptomLog, Name: "slow query", Condition: CondContains, Weight: 3},
			},
			Signals:    []string{"seq scan", "lock wait", "statement timeout"},
			RootCauses: []string{"Missing index after schema change", "Query plan regression", "Table bloat"},
			Actions: []RecommendedAction{
				{ActionType: "kill_queries", ActionCategory: "database", BaseConfidence: 65, Params: map[string]string{"running_seconds": "60"}, EstimatedResolutionS: 30},
				{ActionType: "analyze_tables", ActionCategory: "database", BaseConfidence: 55, EstimatedResolutionS: 300},
			},
			AutonomousSafe:       true,
			BlastRadius:          "medium",
			AvgResolutionSeconds: 420,
			Tags:                 []string{"queries", "latency"},
		},
		{
			ID:          "db-replication-lag",
			Name:        "Replica falling behind",
			Category:    CategoryDatabase,
			Subcategory: "replication",
			Severity:    "high",
			Symptoms: []Symptom{
				{Type: SymptomMetric, Name: "replication_lag_s", Condition: CondAbove, Value: "30", Weight: 5},
				{Type: SymptomLog, Name: "replication", Condition: CondContains, Weight: 2},
			},
			Signals:    []string{"replica lag", "wal sender", "behind master"},
			RootCauses: []string{"Write burst on primary", "Replica undersized", "Network throughput between nodes"},
			Actions: []RecommendedAction{
				{ActionType: "route_reads_primary", ActionCategory: "database", BaseConfidence: 68, RequiresApproval: true, EstimatedResolutionS: 60, RollbackAction: "route_reads_replica"},
			},
			AutonomousSafe:       false,
			BlastRadius:          "medium",
			AvgResolutionSeconds: 900,
			Tags:                 []string{"replication"},
		},
		{
			ID:          "db-deadlocks",
			Name:        "Deadlock storm",
			Category:    CategoryDatabase,
			Subcategory: "locking",
			Severity:    "high",
			Symptoms: []Symptom{
				{Type: SymptomLog, Name: "deadlock detected", Condition: CondContains, Weight: 5},
				{Type: SymptomMetric, Name: "error_rate", Condition: CondAbove, Value: "1", Weight: 2},
			},
			Signals:    []string{"deadlock", "lock timeout", "transaction aborted"},
			RootCauses: []string{"Two code paths acquiring locks in opposite order", "Batch job overlapping with online traffic"},
			Actions: []RecommendedAction{
				{ActionType: "pause_batch_jobs", ActionCategory: "generic", BaseConfidence: 62, EstimatedResolutionS: 60, RollbackAction: "resume_batch_jobs"},
				{ActionType: "rollback_deploy", ActionCategory: "cicd", BaseConfidence: 58, RequiresApproval: true, EstimatedResolutionS: 180},
			},
			AutonomousSafe:       false,
			BlastRadius:          "medium",
			AvgResolutionSeconds: 600,
			Tags:                 []string{"locks", "deadlock"},
		},
		{
			ID:          "db-disk-full",
			Name:        "Database volume filling",
			Category:    CategoryDatabase,
			Subcategory: "storage",
			Severity:    "critical",
			Symptoms: []Symptom{
				{Type: SymptomMetric, Name: "disk_usage", Condition: CondAbove, Value: "85", Weight: 4},
				{Type: SymptomLog, Name: "could not extend file", Condition: CondContains, Weight: 4},
			},
			Signals:    []string{"no space left", "wal full", "disk quota"},
			RootCauses: []string{"WAL retention misconfigured", "Unvacuumed bloat", "Audit tables growing unbounded"},
			Actions: []RecommendedAction{
				{ActionType: "purge_wal", ActionCategory: "database", BaseConfidence: 70, RequiresApproval: true, EstimatedResolutionS: 120},
				{ActionType: "storage_expand", ActionCategory: "cloud", BaseConfidence: 66, RequiresApproval: true, EstimatedResolutionS: 300},
			},
			AutonomousSafe:       false,
			BlastRadius:          "critical",
			AvgResolutionSeconds: 600,
			Tags:                 []string{"storage", "disk"},
		},
		{
			ID:          "db-cache-hit-drop",
			Name:        "Buffer cache hit ratio collapse",
			Category:    CategoryDatabase,
			Subcategory: "performance",
			Severity:    "medium",
			Symptoms: []Symptom{
				{Type: SymptomMetric, Name: "cache_hit_ratio", Condition: CondBelow, Value: "80", Weight: 4},
				{Type: SymptomMetric, Name: "query_latency_ms", Condition: CondAbove, Value: "200", Weight: 2},
			},
			Signals:    []string{"cache miss", "read iops"},
			RootCauses: []string{"Working set outgrew memory", "Analytics query evicting hot pages"},
			Actions: []RecommendedAction{
				{ActionType: "update_resources", ActionCategory: "kubernetes", BaseConfidence: 60, Params: map[string]string{"resource": "memory", "direction": "increase"}, RequiresApproval: true, EstimatedResolutionS: 300},
			},
			AutonomousSafe:       false,
			BlastRadius:          "low",
			AvgResolutionSeconds: 600,
			Tags:                 []string{"cache"},
		},
		{
			ID:          "db-failover",
			Name:        "Primary failover in progress",
			Category:    CategoryDatabase,
			Subcategory: "availability",
			Severity:    "critical",
			Symptoms: []Symptom{
				{Type: SymptomLog, Name: "failover", Condition: CondContains, Weight: 5},
				{Type: SymptomLog, Name: "read-only", Condition: CondContains, Weight: 3},
				{Type: SymptomMetric, Name: "error_rate", Condition: CondAbove, Value: "5", Weight: 3},
			},
			Signals:    []string{"promoting replica", "read-only transaction", "primary unreachable"},
			RootCauses: []string{"Primary instance crash", "Planned maintenance window", "Split brain in HA tooling"},
			Actions: []RecommendedAction{
				{ActionType: "restart_service", ActionCategory: "kubernetes", BaseConfidence: 55, RequiresApproval: true, EstimatedResolutionS: 120},
			},
			AutonomousSafe:       false,
			BlastRadius:          "critical",
			AvgResolutionSeconds: 600,
			Tags:                 []string{"failover", "ha"},
		},
		{
			ID:          "db-redis-evictions",
			Name:        "Cache evicting under memory pressure",
			Category:    CategoryDatabase,
			Subcategory: "cache",
			Severity:    "medium",
			Symptoms: []Symptom{
				{Type: SymptomMetric, Name: "evicted_keys", Condition: CondAbove, Value: "100", Weight: 4},
				{Type: SymptomMetric, Name: "memory_usage", Condition: CondAbove, Value: "90", Weight: 3},
			},
			Signals:    []string{"maxmemory", "evicted"},
			RootCauses: []string{"Key TTLs missing on new code path", "Dataset growth past maxmemory"},
			Actions: []RecommendedAction{
				{ActionType: "flush_stale_keys", ActionCategory: "database", BaseConfidence: 58, Params: map[string]string{"pattern": "tmp:*"}, EstimatedResolutionS: 60},
				{ActionType: "update_resources", ActionCategory: "kubernetes", BaseConfidence: 62, RequiresApproval: true, EstimatedResolutionS: 180},
			},
			AutonomousSafe:       true,
			BlastRadius:          "low",
			AvgResolutionSeconds: 300,
			Tags:                 []string{"redis", "cache", "memory"},
		},
	}
}
