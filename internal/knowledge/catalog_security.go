package knowledge

func securityPatterns() []*IncidentPattern {
	return []*IncidentPattern{
		{
			ID:          "sec-auth-bruteforce",
			Name:        "Credential brute force attempt",
			Category:    CategorySecurity,
			Subcategory: "authentication",
			Severity:    "high",
			Symptoms: []Symptom{
				{Type: SymptomMetric, Name: "failed_logins", Condition: CondAbove, Value: "100", Weight: 5},
				{Type: SymptomLog, Name: "authentication failed", Condition: CondContains, Weight: 3},
			},
			Signals:    []string{"invalid password", "account locked", "too many attempts"},
			RootCauses: []string{"Credential stuffing from leaked password list", "Misconfigured client hammering login"},
			Actions: []RecommendedAction{
				{ActionType: "block_source_ips", ActionCategory: "cloud", BaseConfidence: 68, RequiresApproval: true, EstimatedResolutionS: 60, RollbackAction: "unblock_source_ips"},
				{ActionType: "rate_limit", ActionCategory: "generic", BaseConfidence: 62, Params: map[string]string{"scope": "login"}, EstimatedResolutionS: 60},
			},
			AutonomousSafe:       false,
			BlastRadius:          "medium",
			AvgResolutionSeconds: 300,
			Tags:                 []string{"auth", "bruteforce"},
		},
		{
			ID:          "sec-token-expiry-wave",
			Name:        "Mass token validation failures",
			Category:    CategorySecurity,
			Subcategory: "authentication",
			Severity:    "critical",
			Symptoms: []Symptom{
				{Type: SymptomLog, Name: "token expired", Condition: CondContains, Weight: 4},
				{Type: SymptomLog, Name: "invalid signature", Condition: CondContains, Weight: 4},
				{Type: SymptomMetric, Name: "error_rate", Condition: CondAbove, Value: "5", Weight: 2},
			},
			Signals:    []string{"jwt", "401", "signature verification"},
			RootCauses: []string{"Signing key rotated without grace period", "Clock skew between issuer and validators"},
			Actions: []RecommendedAction{
				{ActionType: "restore_signing_key", ActionCategory: "generic", BaseConfidence: 70, RequiresApproval: true, EstimatedResolutionS: 180},
				{ActionType: "rollout_restart", ActionCategory: "kubernetes", BaseConfidence: 55, EstimatedResolutionS: 120},
			},
			AutonomousSafe:       false,
			BlastRadius:          "critical",
			AvgResolutionSeconds: 480,
			Tags:                 []string{"tokens", "jwt"},
		},
		{
			ID:          "sec-privilege-anomaly",
			Name:        "Unusual privileged API activity",
			Category:    CategorySecurity,
			Subcategory: "audit",
			Severity:    "critical",
			Symptoms: []Symptom{
				{Type: SymptomMetric, Name: "admin_api_calls", Condition: CondAbove, Value: "50", Weight: 4},
				{Type: SymptomLog, Name: "permission granted", Condition: CondContains, Weight: 3},
			},
			Signals:    []string{"role binding", "escalation", "service account"},
			RootCauses: []string{"Compromised credential exercising admin APIs", "Runaway automation with broad permissions"},
			Actions: []RecommendedAction{
				{ActionType: "revoke_credentials", ActionCategory: "generic", BaseConfidence: 66, RequiresApproval: true, EstimatedResolutionS: 120},
			},
			AutonomousSafe:       false,
			BlastRadius:          "critical",
			AvgResolutionSeconds: 900,
			Tags:                 []string{"audit", "privileges"},
		},
		{
			ID:          "sec-scanner-noise",
			Name:        "Vulnerability scanner traffic",
			Category:    CategorySecurity,
			Subcategory: "ingress",
			Severity:    "low",
			Symptoms: []Symptom{
				{Type: SymptomMetric, Name: "http_404_rate", Condition: CondAbove, Value: "50", Weight: 4},
				{Type: SymptomLog, Name: "sqlmap", Condition: CondContains, Weight: 3},
				{Type: SymptomLog, Name: "wp-admin", Condition: CondContains, Weight: 2},
			},
			Signals:    []string{"nikto", "sqlmap", "path traversal"},
			RootCauses: []string{"Automated scanning of public surface"},
			Actions: []RecommendedAction{
				{ActionType: "block_source_ips", ActionCategory: "cloud", BaseConfidence: 60, EstimatedResolutionS: 60, RollbackAction: "unblock_source_ips"},
			},
			AutonomousSafe:       true,
			BlastRadius:          "low",
			AvgResolutionSeconds: 120,
			Tags:                 []string{"scanning"},
		},
		{
			ID:          "sec-egress-anomaly",
			Name:        "Unexpected egress destination",
			Category:    CategorySecurity,
			Subcategory: "egress",
			Severity:    "critical",
			Symptoms: []Symptom{
				{Type: SymptomMetric, Name: "network_out_mbps", Condition: CondAbove, Value: "100", Weight: 3},
				{Type: SymptomLog, Name: "egress denied", Condition: CondContains, Weight: 4},
			},
			Signals:    []string{"unknown destination", "data transfer spike"},
			RootCauses: []string{"Exfiltration from compromised workload", "New integration missing from egress allowlist"},
			Actions: []RecommendedAction{
				{ActionType: "isolate_workload", ActionCategory: "kubernetes", BaseConfidence: 64, RequiresApproval: true, EstimatedResolutionS: 120, RollbackAction: "restore_network_policy"},
			},
			AutonomousSafe:       false,
			BlastRadius:          "high",
			AvgResolutionSeconds: 600,
			Tags:                 []string{"egress", "exfiltration"},
		},
		{
			ID:          "sec-cert-pinning-break",
			Name:        "Clients rejecting rotated certificate",
			Category:    CategorySecurity,
			Subcategory: "tls",
			Severity:    "high",
			Symptoms: []Symptom{
				{Type: SymptomLog, Name: "certificate pinning", Condition: CondContains, Weight: 5},
				{Type: SymptomLog, Name: "tls handshake failure", Condition: CondContains, Weight: 3},
			},
			Signals:    []string{"pin validation failed", "handshake failure"},
			RootCauses: []string{"Certificate rotated while clients pin the old key"},
			Actions: []RecommendedAction{
				{ActionType: "restore_certificate", ActionCategory: "cloud", BaseConfidence: 62, RequiresApproval: true, EstimatedResolutionS: 300},
			},
			AutonomousSafe:       false,
			BlastRadius:          "medium",
			AvgResolutionSeconds: 600,
			Tags:                 []string{"tls", "pinning"},
		},
	}
}
