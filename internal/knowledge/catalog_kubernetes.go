package knowledge

func kubernetesPatterns() []*IncidentPattern {
	return []*IncidentPattern{
		{
			ID:          "k8s-pod-oom",
			Name:        "Pod killed by OOM",
			Category:    CategoryKubernetes,
			Subcategory: "pods",
			Severity:    "critical",
			Symptoms: []Symptom{
				{Type: SymptomMetric, Name: "memory_usage", Condition: CondAbove, Value: "90", Weight: 3},
				{Type: SymptomLog, Name: "oomkilled", Condition: CondContains, Weight: 4},
				{Type: SymptomEvent, Name: "pod", Condition: CondContains, Weight: 1},
			},
			Signals:    []string{"OOMKilled", "out of memory", "memory limit"},
			RootCauses: []string{"Memory limit too low for workload", "Memory leak in application", "Traffic surge beyond capacity"},
			Actions: []RecommendedAction{
				{ActionType: "update_resources", ActionCategory: "kubernetes", BaseConfidence: 80, Params: map[string]string{"resource": "memory", "direction": "increase"}, EstimatedResolutionS: 120},
				{ActionType: "pod_restart", ActionCategory: "kubernetes", BaseConfidence: 65, EstimatedResolutionS: 60},
			},
			AutonomousSafe:       false,
			BlastRadius:          "medium",
			AvgResolutionSeconds: 300,
			Tags:                 []string{"oom", "memory", "pods"},
		},
		{
			ID:          "k8s-crashloop",
			Name:        "Pod in CrashLoopBackOff",
			Category:    CategoryKubernetes,
			Subcategory: "pods",
			Severity:    "high",
			Symptoms: []Symptom{
				{Type: SymptomLog, Name: "crashloopbackoff", Condition: CondContains, Weight: 5},
				{Type: SymptomMetric, Name: "restart_count", Condition: CondAbove, Value: "3", Weight: 2},
			},
			Signals:    []string{"CrashLoopBackOff", "back-off restarting"},
			RootCauses: []string{"Bad configuration pushed", "Missing dependency at startup", "Failing liveness probe"},
			Actions: []RecommendedAction{
				{ActionType: "rollback_deploy", ActionCategory: "cicd", BaseConfidence: 75, RequiresApproval: true, EstimatedResolutionS: 180, RollbackAction: "pipeline_retry"},
				{ActionType: "config_reload", ActionCategory: "kubernetes", BaseConfidence: 55, EstimatedResolutionS: 90},
			},
			AutonomousSafe:       false,
			BlastRadius:          "medium",
			AvgResolutionSeconds: 420,
			Tags:                 []string{"crashloop", "pods"},
			RelatedPatterns:      []string{"cicd-bad-deploy"},
		},
		{
			ID:          "k8s-node-pressure",
			Name:        "Node under resource pressure",
			Category:    CategoryKubernetes,
			Subcategory: "nodes",
			Severity:    "high",
			Symptoms: []Symptom{
				{Type: SymptomMetric, Name: "cpu_usage", Condition: CondAbove, Value: "90", Weight: 3},
				{Type: SymptomLog, Name: "evicted", Condition: CondContains, Weight: 3},
				{Type: SymptomLog, Name: "diskpressure", Condition: CondContains, Weight: 2},
			},
			Signals:    []string{"MemoryPressure", "DiskPressure", "eviction"},
			RootCauses: []string{"Node overcommitted", "Noisy neighbor workload", "Disk filling with logs"},
			Actions: []RecommendedAction{
				{ActionType: "node_cordon", ActionCategory: "kubernetes", BaseConfidence: 70, RequiresApproval: true, EstimatedResolutionS: 60, RollbackAction: "node_uncordon"},
				{ActionType: "pod_eviction", ActionCategory: "kubernetes", BaseConfidence: 60, RequiresApproval: true, EstimatedResolutionS: 120},
			},
			AutonomousSafe:       false,
			BlastRadius:          "high",
			AvgResolutionSeconds: 600,
			Tags:                 []string{"node", "pressure"},
		},
		{
			ID:          "k8s-hpa-maxed",
			Name:        "Autoscaler at ceiling",
			Category:    CategoryKubernetes,
			Subcategory: "autoscaling",
			Severity:    "high",
			Symptoms: []Symptom{
				{Type: SymptomMetric, Name: "cpu_usage", Condition: CondAbove, Value: "85", Weight: 2},
				{Type: SymptomMetric, Name: "request_latency_ms", Condition: CondAbove, Value: "1000", Weight: 3},
				{Type: SymptomLog, Name: "unable to scale", Condition: CondContains, Weight: 2},
			},
			Signals:    []string{"desired replicas", "max replicas"},
			RootCauses: []string{"HPA max replicas too low for load", "Cluster out of schedulable capacity"},
			Actions: []RecommendedAction{
				{ActionType: "hpa_configure", ActionCategory: "kubernetes", BaseConfidence: 72, Params: map[string]string{"field": "maxReplicas", "direction": "increase"}, EstimatedResolutionS: 120},
				{ActionType: "deployment_scale", ActionCategory: "kubernetes", BaseConfidence: 60, EstimatedResolutionS: 90},
			},
			AutonomousSafe:       true,
			BlastRadius:          "low",
			AvgResolutionSeconds: 240,
			Tags:                 []string{"hpa", "scaling", "latency"},
		},
		{
			ID:          "k8s-image-pull",
			Name:        "Image pull failures",
			Category:    CategoryKubernetes,
			Subcategory: "pods",
			Severity:    "medium",
			Symptoms: []Symptom{
				{Type: SymptomLog, Name: "imagepullbackoff", Condition: CondContains, Weight: 5},
				{Type: SymptomLog, Name: "errimagepull", Condition: CondContains, Weight: 4},
			},
			Signals:    []string{"ImagePullBackOff", "manifest unknown", "unauthorized"},
			RootCauses: []string{"Registry credentials expired", "Tag deleted or never pushed", "Registry outage"},
			Actions: []RecommendedAction{
				{ActionType: "secret_rotate", ActionCategory: "kubernetes", BaseConfidence: 60, RequiresApproval: true, EstimatedResolutionS: 300},
				{ActionType: "rollback_deploy", ActionCategory: "cicd", BaseConfidence: 65, RequiresApproval: true, EstimatedResolutionS: 180},
			},
			AutonomousSafe:       false,
			BlastRadius:          "medium",
			AvgResolutionSeconds: 480,
			Tags:                 []string{"registry", "images"},
		},
		{
			ID:          "k8s-pvc-full",
			Name:        "Persistent volume near capacity",
			Category:    CategoryKubernetes,
			Subcategory: "storage",
			Severity:    "high",
			Symptoms: []Symptom{
				{Type: SymptomMetric, Name: "disk_usage", Condition: CondAbove, Value: "90", Weight: 4},
				{Type: SymptomLog, Name: "no space left", Condition: CondContains, Weight: 4},
			},
			Signals:    []string{"disk full", "no space left on device"},
			RootCauses: []string{"Log or temp files accumulating", "Volume sized for old workload"},
			Actions: []RecommendedAction{
				{ActionType: "namespace_cleanup", ActionCategory: "kubernetes", BaseConfidence: 68, EstimatedResolutionS: 180},
				{ActionType: "storage_cleanup", ActionCategory: "cloud", BaseConfidence: 62, EstimatedResolutionS: 240},
			},
			AutonomousSafe:       true,
			BlastRadius:          "low",
			AvgResolutionSeconds: 360,
			Tags:                 []string{"storage", "disk"},
		},
		{
			ID:          "k8s-kubelet-unhealthy",
			Name:        "Kubelet not reporting",
			Category:    CategoryKubernetes,
			Subcategory: "nodes",
			Severity:    "critical",
			Symptoms: []Symptom{
				{Type: SymptomLog, Name: "kubelet stopped posting", Condition: CondContains, Weight: 5},
				{Type: SymptomLog, Name: "node not ready", Condition: CondContains, Weight: 4},
			},
			Signals:    []string{"NodeNotReady", "kubelet"},
			RootCauses: []string{"Kubelet crash", "Network partition to control plane", "Host resource exhaustion"},
			Actions: []RecommendedAction{
				{ActionType: "node_drain", ActionCategory: "kubernetes", BaseConfidence: 70, RequiresApproval: true, EstimatedResolutionS: 600, RollbackAction: "node_uncordon"},
			},
			AutonomousSafe:       false,
			BlastRadius:          "critical",
			AvgResolutionSeconds: 900,
			Tags:                 []string{"node", "kubelet"},
		},
		{
			ID:          "k8s-config-drift",
			Name:        "ConfigMap change broke workload",
			Category:    CategoryKubernetes,
			Subcategory: "config",
			Severity:    "medium",
			Symptoms: []Symptom{
				{Type: SymptomMetric, Name: "error_rate", Condition: CondAbove, Value: "2", Weight: 3},
				{Type: SymptomLog, Name: "configuration", Condition: CondContains, Weight: 2},
				{Type: SymptomLog, Name: "invalid value", Condition: CondContains, Weight: 2},
			},
			Signals:    []string{"failed to parse", "unknown field"},
			RootCauses: []string{"Config change without validation", "Schema drift between app and config"},
			Actions: []RecommendedAction{
				{ActionType: "config_reload", ActionCategory: "kubernetes", BaseConfidence: 66, EstimatedResolutionS: 90},
				{ActionType: "rollout_restart", ActionCategory: "kubernetes", BaseConfidence: 58, EstimatedResolutionS: 120},
			},
			AutonomousSafe:       true,
			BlastRadius:          "low",
			AvgResolutionSeconds: 240,
			Tags:                 []string{"config"},
		},
	}
}
