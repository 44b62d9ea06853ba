package knowledge

func networkPatterns() []*IncidentPattern {
	return []*IncidentPattern{
		{
			ID:          "net-packet-loss",
			Name:        "Packet loss between zones",
			Category:    CategoryNetwork,
			Subcategory: "connectivity",
			Severity:    "high",
			Symptoms: []Symptom{
				{Type: SymptomMetric, Name: "packet_loss_pct", Condition: CondAbove, Value: "1", Weight: 5},
				{Type: SymptomMetric, Name: "request_latency_ms", Condition: CondAbove, Value: "300", Weight: 2},
				{Type: SymptomLog, Name: "connection reset", Condition: CondContains, Weight: 2},
			},
			Signals:    []string{"packet loss", "retransmit", "connection reset by peer"},
			RootCauses: []string{"Degraded link between availability zones", "Overloaded network appliance"},
			Actions: []RecommendedAction{
				{ActionType: "shift_traffic", ActionCategory: "cloud", BaseConfidence: 64, RequiresApproval: true, EstimatedResolutionS: 180, RollbackAction: "restore_traffic"},
			},
			AutonomousSafe:       false,
			BlastRadius:          "high",
			AvgResolutionSeconds: 900,
			Tags:                 []string{"network", "zones"},
		},
		{
			ID:          "net-conn-timeouts",
			Name:        "Upstream connection timeouts",
			Category:    CategoryNetwork,
			Subcategory: "connectivity",
			Severity:    "high",
			Symptoms: []Symptom{
				{Type: SymptomLog, Name: "connection timeout", Condition: CondContains, Weight: 4},
				{Type: SymptomLog, Name: "dial tcp", Condition: CondContains, Weight: 3},
				{Type: SymptomMetric, Name: "error_rate", Condition: CondAbove, Value: "2", Weight: 2},
			},
			Signals:    []string{"i/o timeout", "connection refused", "dial tcp"},
			RootCauses: []string{"Upstream service down or overloaded", "Security group or firewall change", "Conntrack table full"},
			Actions: []RecommendedAction{
				{ActionType: "restart_service", ActionCategory: "kubernetes", BaseConfidence: 58, EstimatedResolutionS: 90},
				{ActionType: "enable_circuit_breaker", ActionCategory: "generic", BaseConfidence: 62, EstimatedResolutionS: 60},
			},
			AutonomousSafe:       true,
			BlastRadius:          "medium",
			AvgResolutionSeconds: 420,
			Tags:                 []string{"timeouts"},
		},
		{
			ID:          "net-bandwidth-saturation",
			Name:        "Egress bandwidth saturated",
			Category:    CategoryNetwork,
			Subcategory: "throughput",
			Severity:    "medium",
			Symptoms: []Symptom{
				{Type: SymptomMetric, Name: "network_out_mbps", Condition: CondAbove, Value: "900", Weight: 5},
				{Type: SymptomMetric, Name: "request_latency_ms", Condition: CondAbove, Value: "200", Weight: 2},
			},
			Signals:    []string{"bandwidth", "throughput limit"},
			RootCauses: []string{"Bulk transfer sharing link with production traffic", "Instance bandwidth tier too small"},
			Actions: []RecommendedAction{
				{ActionType: "pause_batch_jobs", ActionCategory: "generic", BaseConfidence: 60, EstimatedResolutionS: 60, RollbackAction: "resume_batch_jobs"},
				{ActionType: "instance_resize", ActionCategory: "cloud", BaseConfidence: 52, RequiresApproval: true, EstimatedResolutionS: 600},
			},
			AutonomousSafe:       true,
			BlastRadius:          "low",
			AvgResolutionSeconds: 300,
			Tags:                 []string{"bandwidth"},
		},
		{
			ID:          "net-mesh-misroute",
			Name:        "Service mesh routing broken",
			Category:    CategoryNetwork,
			Subcategory: "mesh",
			Severity:    "critical",
			Symptoms: []Symptom{
				{Type: SymptomLog, Name: "no healthy upstream", Condition: CondContains, Weight: 5},
				{Type: SymptomLog, Name: "503", Condition: CondContains, Weight: 3},
			},
			Signals:    []string{"no healthy upstream", "upstream connect error", "envoy"},
			RootCauses: []string{"VirtualService or route rule change pointing nowhere", "Sidecar config out of sync"},
			Actions: []RecommendedAction{
				{ActionType: "revert_route_config", ActionCategory: "kubernetes", BaseConfidence: 74, RequiresApproval: true, EstimatedResolutionS: 120},
				{ActionType: "rollout_restart", ActionCategory: "kubernetes", BaseConfidence: 55, EstimatedResolutionS: 180},
			},
			AutonomousSafe:       false,
			BlastRadius:          "critical",
			AvgResolutionSeconds: 480,
			Tags:                 []string{"mesh", "routing"},
		},
		{
			ID:          "net-conntrack-full",
			Name:        "Connection tracking table full",
			Category:    CategoryNetwork,
			Subcategory: "kernel",
			Severity:    "high",
			Symptoms: []Symptom{
				{Type: SymptomLog, Name: "conntrack", Condition: CondContains, Weight: 5},
				{Type: SymptomLog, Name: "table full", Condition: CondContains, Weight: 4},
			},
			Signals:    []string{"nf_conntrack: table full", "dropping packet"},
			RootCauses: []string{"Connection churn from short-lived connections", "Conntrack max too low for node size"},
			Actions: []RecommendedAction{
				{ActionType: "node_tune_sysctl", ActionCategory: "kubernetes", BaseConfidence: 62, RequiresApproval: true, Params: map[string]string{"key": "net.netfilter.nf_conntrack_max"}, EstimatedResolutionS: 120},
			},
			AutonomousSafe:       false,
			BlastRadius:          "high",
			AvgResolutionSeconds: 600,
			Tags:                 []string{"conntrack", "kernel"},
		},
		{
			ID:          "net-ddos-surge",
			Name:        "Abnormal inbound traffic surge",
			Category:    CategoryNetwork,
			Subcategory: "ingress",
			Severity:    "critical",
			Symptoms: []Symptom{
				{Type: SymptomMetric, Name: "request_rate", Condition: CondAbove, Value: "10000", Weight: 4},
				{Type: SymptomMetric, Name: "cpu_usage", Condition: CondAbove, Value: "90", Weight: 2},
				{Type: SymptomLog, Name: "rate limit", Condition: CondContains, Weight: 2},
			},
			Signals:    []string{"flood", "suspicious traffic", "rate limiting"},
			RootCauses: []string{"Volumetric attack on public endpoint", "Misbehaving client in tight loop"},
			Actions: []RecommendedAction{
				{ActionType: "rate_limit", ActionCategory: "generic", BaseConfidence: 70, Params: map[string]string{"scope": "ingress"}, EstimatedResolutionS: 60, RollbackAction: "remove_rate_limit"},
				{ActionType: "enable_waf_rule", ActionCategory: "cloud", BaseConfidence: 64, RequiresApproval: true, EstimatedResolutionS: 120},
			},
			AutonomousSafe:       false,
			BlastRadius:          "high",
			AvgResolutionSeconds: 600,
			Tags:                 []string{"ddos", "ingress"},
		},
	}
}
