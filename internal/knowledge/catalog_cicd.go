package knowledge

func cicdPatterns() []*IncidentPattern {
	return []*IncidentPattern{
		{
			ID:          "cicd-bad-deploy",
			Name:        "Bad deployment in production",
			Category:    CategoryCICD,
			Subcategory: "deploy",
			Severity:    "critical",
			Symptoms: []Symptom{
				{Type: SymptomMetric, Name: "error_rate", Condition: CondAbove, Value: "3", Weight: 4},
				{Type: SymptomMetric, Name: "request_latency_ms", Condition: CondAbove, Value: "500", Weight: 3},
				{Type: SymptomEvent, Name: "critical", Condition: CondContains, Weight: 1},
			},
			Signals:    []string{"deployment", "rollout", "new version"},
			RootCauses: []string{"Regression shipped in the correlated release", "Config change bundled with the deploy"},
			Actions: []RecommendedAction{
				{ActionType: "rollback_deploy", ActionCategory: "cicd", BaseConfidence: 85, EstimatedResolutionS: 180, RollbackAction: "pipeline_retry"},
			},
			AutonomousSafe:       true,
			BlastRadius:          "medium",
			AvgResolutionSeconds: 300,
			Tags:                 []string{"deploy", "rollback"},
		},
		{
			ID:          "cicd-partial-rollout",
			Name:        "Rollout stuck mid-way",
			Category:    CategoryCICD,
			Subcategory: "deploy",
			Severity:    "high",
			Symptoms: []Symptom{
				{Type: SymptomLog, Name: "progressdeadlineexceeded", Condition: CondContains, Weight: 5},
				{Type: SymptomLog, Name: "rollout", Condition: CondContains, Weight: 2},
			},
			Signals:    []string{"ProgressDeadlineExceeded", "old replicas", "paused"},
			RootCauses: []string{"New pods failing readiness", "Insufficient capacity for surge replicas"},
			Actions: []RecommendedAction{
				{ActionType: "rollback_deploy", ActionCategory: "cicd", BaseConfidence: 72, EstimatedResolutionS: 180},
				{ActionType: "rollout_resume", ActionCategory: "cicd", BaseConfidence: 50, RequiresApproval: true, EstimatedResolutionS: 120},
			},
			AutonomousSafe:       false,
			BlastRadius:          "medium",
			AvgResolutionSeconds: 420,
			Tags:                 []string{"rollout"},
		},
		{
			ID:          "cicd-migration-failure",
			Name:        "Schema migration failed mid-deploy",
			Category:    CategoryCICD,
			Subcategory: "migrations",
			Severity:    "critical",
			Symptoms: []Symptom{
				{Type: SymptomLog, Name: "migration failed", Condition: CondContains, Weight: 5},
				{Type: SymptomLog, Name: "column does not exist", Condition: CondContains, Weight: 4},
				{Type: SymptomMetric, Name: "error_rate", Condition: CondAbove, Value: "5", Weight: 2},
			},
			Signals:    []string{"migration", "relation does not exist", "duplicate column"},
			RootCauses: []string{"Migration not backward compatible with running code", "Migration lock held by stuck job"},
			Actions: []RecommendedAction{
				{ActionType: "rollback_deploy", ActionCategory: "cicd", BaseConfidence: 68, RequiresApproval: true, EstimatedResolutionS: 300},
			},
			AutonomousSafe:       false,
			BlastRadius:          "critical",
			AvgResolutionSeconds: 900,
			Tags:                 []string{"migrations", "schema"},
		},
		{
			ID:          "cicd-canary-regression",
			Name:        "Canary showing regression",
			Category:    CategoryCICD,
			Subcategory: "canary",
			Severity:    "medium",
			Symptoms: []Symptom{
				{Type: SymptomMetric, Name: "canary_error_rate", Condition: CondAbove, Value: "1", Weight: 4},
				{Type: SymptomLog, Name: "canary", Condition: CondContains, Weight: 2},
			},
			Signals:    []string{"canary analysis failed", "baseline comparison"},
			RootCauses: []string{"Candidate build regresses against baseline"},
			Actions: []RecommendedAction{
				{ActionType: "abort_canary", ActionCategory: "cicd", BaseConfidence: 80, EstimatedResolutionS: 60},
			},
			AutonomousSafe:       true,
			BlastRadius:          "low",
			AvgResolutionSeconds: 120,
			Tags:                 []string{"canary"},
		},
		{
			ID:          "cicd-pipeline-stuck",
			Name:        "Pipeline queue stalled",
			Category:    CategoryCICD,
			Subcategory: "pipelines",
			Severity:    "medium",
			Symptoms: []Symptom{
				{Type: SymptomMetric, Name: "pipeline_queue_depth", Condition: CondAbove, Value: "20", Weight: 4},
				{Type: SymptomLog, Name: "no available runners", Condition: CondContains, Weight: 4},
			},
			Signals:    []string{"waiting for runner", "agent offline"},
			RootCauses: []string{"Runner pool exhausted or offline", "Stuck job holding a deploy lock"},
			Actions: []RecommendedAction{
				{ActionType: "pipeline_retry", ActionCategory: "cicd", BaseConfidence: 58, EstimatedResolutionS: 120},
				{ActionType: "scale_up", ActionCategory: "kubernetes", BaseConfidence: 62, Params: map[string]string{"target": "runners"}, EstimatedResolutionS: 180},
			},
			AutonomousSafe:       true,
			BlastRadius:          "low",
			AvgResolutionSeconds: 300,
			Tags:                 []string{"pipelines", "runners"},
		},
		{
			ID:          "cicd-secret-drift",
			Name:        "Deploy picked up stale secrets",
			Category:    CategoryCICD,
			Subcategory: "secrets",
			Severity:    "high",
			Symptoms: []Symptom{
				{Type: SymptomLog, Name: "authentication failed", Condition: CondContains, Weight: 4},
				{Type: SymptomLog, Name: "invalid credentials", Condition: CondContains, Weight: 4},
				{Type: SymptomMetric, Name: "error_rate", Condition: CondAbove, Value: "2", Weight: 2},
			},
			Signals:    []string{"401", "403", "permission denied"},
			RootCauses: []string{"Secret rotated but deploy cached old value", "Environment missing new secret key"},
			Actions: []RecommendedAction{
				{ActionType: "secret_rotate", ActionCategory: "kubernetes", BaseConfidence: 66, RequiresApproval: true, EstimatedResolutionS: 180},
				{ActionType: "rollout_restart", ActionCategory: "kubernetes", BaseConfidence: 60, EstimatedResolutionS: 120},
			},
			AutonomousSafe:       false,
			BlastRadius:          "medium",
			AvgResolutionSeconds: 360,
			Tags:                 []string{"secrets"},
		},
	}
}
