package knowledge

func cloudPatterns() []*IncidentPattern {
	return []*IncidentPattern{
		{
			ID:          "cloud-api-throttling",
			Name:        "Provider API throttling",
			Category:    CategoryCloud,
			Subcategory: "quotas",
			Severity:    "high",
			Symptoms: []Symptom{
				{Type: SymptomLog, Name: "429", Condition: CondContains, Weight: 4},
				{Type: SymptomLog, Name: "rate exceeded", Condition: CondContains, Weight: 4},
				{Type: SymptomMetric, Name: "error_rate", Condition: CondAbove, Value: "2", Weight: 2},
			},
			Signals:    []string{"ThrottlingException", "RequestLimitExceeded", "too many requests"},
			RootCauses: []string{"Retry loop without backoff", "Quota shared across teams exhausted"},
			Actions: []RecommendedAction{
				{ActionType: "enable_backoff", ActionCategory: "generic", BaseConfidence: 64, EstimatedResolutionS: 120},
				{ActionType: "scale_down", ActionCategory: "kubernetes", BaseConfidence: 52, Params: map[string]string{"factor": "0.5"}, RequiresApproval: true, EstimatedResolutionS: 90},
			},
			AutonomousSafe:       true,
			BlastRadius:          "medium",
			AvgResolutionSeconds: 420,
			Tags:                 []string{"throttling", "quota"},
		},
		{
			ID:          "cloud-instance-degraded",
			Name:        "Instance hardware degradation",
			Category:    CategoryCloud,
			Subcategory: "compute",
			Severity:    "high",
			Symptoms: []Symptom{
				{Type: SymptomLog, Name: "degraded", Condition: CondContains, Weight: 4},
				{Type: SymptomMetric, Name: "cpu_steal", Condition: CondAbove, Value: "20", Weight: 3},
			},
			Signals:    []string{"scheduled for retirement", "host maintenance", "instance status check failed"},
			RootCauses: []string{"Underlying host failure", "Noisy neighbor on shared tenancy"},
			Actions: []RecommendedAction{
				{ActionType: "instance_replace", ActionCategory: "cloud", BaseConfidence: 72, RequiresApproval: true, EstimatedResolutionS: 600},
			},
			AutonomousSafe:       false,
			BlastRadius:          "medium",
			AvgResolutionSeconds: 900,
			Tags:                 []string{"compute", "hardware"},
		},
		{
			ID:          "cloud-lb-unhealthy-targets",
			Name:        "Load balancer draining targets",
			Category:    CategoryCloud,
			Subcategory: "loadbalancing",
			Severity:    "critical",
			Symptoms: []Symptom{
				{Type: SymptomMetric, Name: "healthy_targets", Condition: CondBelow, Value: "2", Weight: 5},
				{Type: SymptomLog, Name: "health check failed", Condition: CondContains, Weight: 3},
				{Type: SymptomMetric, Name: "error_rate", Condition: CondAbove, Value: "5", Weight: 2},
			},
			Signals:    []string{"target unhealthy", "502", "503"},
			RootCauses: []string{"Health endpoint regression in latest deploy", "Targets overloaded and timing out checks"},
			Actions: []RecommendedAction{
				{ActionType: "rollback_deploy", ActionCategory: "cicd", BaseConfidence: 70, RequiresApproval: true, EstimatedResolutionS: 180},
				{ActionType: "scale_up", ActionCategory: "kubernetes", BaseConfidence: 60, Params: map[string]string{"factor": "2"}, EstimatedResolutionS: 120},
			},
			AutonomousSafe:       false,
			BlastRadius:          "critical",
			AvgResolutionSeconds: 480,
			Tags:                 []string{"loadbalancer", "health"},
		},
		{
			ID:          "cloud-storage-latency",
			Name:        "Object storage latency spike",
			Category:    CategoryCloud,
			Subcategory: "storage",
			Severity:    "medium",
			Symptoms: []Symptom{
				{Type: SymptomMetric, Name: "storage_latency_ms", Condition: CondAbove, Value: "500", Weight: 4},
				{Type: SymptomLog, Name: "slowdown", Condition: CondContains, Weight: 3},
			},
			Signals:    []string{"SlowDown", "503 slow down", "internal error"},
			RootCauses: []string{"Hot key prefix concentrating requests", "Provider-side incident"},
			Actions: []RecommendedAction{
				{ActionType: "enable_cache", ActionCategory: "generic", BaseConfidence: 55, EstimatedResolutionS: 180},
			},
			AutonomousSafe:       true,
			BlastRadius:          "low",
			AvgResolutionSeconds: 600,
			Tags:                 []string{"storage", "latency"},
		},
		{
			ID:          "cloud-spot-reclaim",
			Name:        "Spot capacity reclaimed",
			Category:    CategoryCloud,
			Subcategory: "compute",
			Severity:    "medium",
			Symptoms: []Symptom{
				{Type: SymptomLog, Name: "spot instance interruption", Condition: CondContains, Weight: 5},
				{Type: SymptomMetric, Name: "node_count", Condition: CondBelow, Value: "3", Weight: 3},
			},
			Signals:    []string{"interruption notice", "rebalance recommendation"},
			RootCauses: []string{"Spot pool capacity reclaimed by provider"},
			Actions: []RecommendedAction{
				{ActionType: "provision_ondemand", ActionCategory: "cloud", BaseConfidence: 68, EstimatedResolutionS: 300, RollbackAction: "restore_spot"},
			},
			AutonomousSafe:       true,
			BlastRadius:          "medium",
			AvgResolutionSeconds: 420,
			Tags:                 []string{"spot", "capacity"},
		},
		{
			ID:          "cloud-dns-resolution",
			Name:        "Managed DNS resolution failures",
			Category:    CategoryCloud,
			Subcategory: "dns",
			Severity:    "critical",
			Symptoms: []Symptom{
				{Type: SymptomLog, Name: "no such host", Condition: CondContains, Weight: 5},
				{Type: SymptomLog, Name: "servfail", Condition: CondContains, Weight: 4},
			},
			Signals:    []string{"NXDOMAIN", "dns timeout", "lookup failed"},
			RootCauses: []string{"Zone record deleted by automation", "Resolver cache poisoned by stale entry", "Provider DNS outage"},
			Actions: []RecommendedAction{
				{ActionType: "flush_dns_cache", ActionCategory: "generic", BaseConfidence: 60, EstimatedResolutionS: 60},
				{ActionType: "restore_dns_record", ActionCategory: "cloud", BaseConfidence: 70, RequiresApproval: true, EstimatedResolutionS: 180},
			},
			AutonomousSafe:       false,
			BlastRadius:          "critical",
			AvgResolutionSeconds: 480,
			Tags:                 []string{"dns"},
		},
		{
			ID:          "cloud-cert-expiry",
			Name:        "TLS certificate expired",
			Category:    CategoryCloud,
			Subcategory: "tls",
			Severity:    "critical",
			Symptoms: []Symptom{
				{Type: SymptomLog, Name: "certificate has expired", Condition: CondContains, Weight: 5},
				{Type: SymptomLog, Name: "x509", Condition: CondContains, Weight: 3},
				{Type: SymptomMetric, Name: "error_rate", Condition: CondAbove, Value: "10", Weight: 2},
			},
			Signals:    []string{"certificate expired", "tls handshake", "x509"},
			RootCauses: []string{"Auto-renewal job failed silently", "Manual cert not rotated"},
			Actions: []RecommendedAction{
				{ActionType: "renew_certificate", ActionCategory: "cloud", BaseConfidence: 78, EstimatedResolutionS: 300},
			},
			AutonomousSafe:       false,
			BlastRadius:          "critical",
			AvgResolutionSeconds: 600,
			Tags:                 []string{"tls", "certificates"},
		},
		{
			ID:          "cloud-cost-runaway",
			Name:        "Runaway resource spend",
			Category:    CategoryCloud,
			Subcategory: "cost",
			Severity:    "medium",
			Symptoms: []Symptom{
				{Type: SymptomMetric, Name: "hourly_cost", Condition: CondAbove, Value: "2", Weight: 4},
				{Type: SymptomMetric, Name: "node_count", Condition: CondAbove, Value: "20", Weight: 3},
			},
			Signals:    []string{"budget alert", "cost anomaly"},
			RootCauses: []string{"Autoscaler runaway from feedback loop", "Forgotten load-test environment"},
			Actions: []RecommendedAction{
				{ActionType: "scale_down", ActionCategory: "kubernetes", BaseConfidence: 55, RequiresApproval: true, EstimatedResolutionS: 120},
			},
			AutonomousSafe:       false,
			BlastRadius:          "low",
			AvgResolutionSeconds: 900,
			Tags:                 []string{"cost", "scaling"},
		},
	}
}
