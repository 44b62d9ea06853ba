package actions

import (
	"context"
	"fmt"
	"time"
)

// Provider executes one family of action types. Implementations must
// honor the context deadline and report dry runs in the result.
type Provider interface {
	Category() string
	Supports(actionType string) bool
	Execute(ctx context.Context, actionType string, params map[string]string, dryRun bool) (ProviderResult, error)
}

// simulatedProvider implements the uniform contract without touching real
// infrastructure. Real deployments swap these for API-backed providers;
// the executor only sees the interface.
type simulatedProvider struct {
	category string
	vocab    map[string]struct{}
}

func newSimulatedProvider(category string, actionTypes ...string) *simulatedProvider {
	vocab := make(map[string]struct{}, len(actionTypes))
	for _, at := range actionTypes {
		vocab[at] = struct{}{}
	}
	return &simulatedProvider{category: category, vocab: vocab}
}

func (p *simulatedProvider) Category() string { return p.category }

func (p *simulatedProvider) Supports(actionType string) bool {
	_, ok := p.vocab[actionType]
	return ok
}

func (p *simulatedProvider) Execute(ctx context.Context, actionType string, params map[string]string, dryRun bool) (ProviderResult, error) {
	if err := ctx.Err(); err != nil {
		return ProviderResult{}, err
	}
	if !p.Supports(actionType) {
		return ProviderResult{
			Success: false,
			Message: fmt.Sprintf("%s provider does not support %q", p.category, actionType),
		}, nil
	}
	start := time.Now()
	if dryRun {
		return ProviderResult{
			Success:         true,
			Message:         fmt.Sprintf("[dry-run] %s: %s", p.category, actionType),
			Details:         map[string]interface{}{"params": params},
			DurationSeconds: time.Since(start).Seconds(),
			DryRun:          true,
		}, nil
	}
	return ProviderResult{
		Success:         true,
		Message:         fmt.Sprintf("%s: %s executed", p.category, actionType),
		Details:         map[string]interface{}{"params": params},
		DurationSeconds: time.Since(start).Seconds(),
	}, nil
}

// DefaultProviders returns the built-in provider set. The generic provider
// accepts anything and is the dispatch fallback.
func DefaultProviders() []Provider {
	return []Provider{
		newSimulatedProvider("kubernetes",
			"pod_restart", "restart_service", "deployment_scale", "scale_up", "scale_down",
			"rollout_restart", "pod_eviction", "resource_quota_adjust", "hpa_configure",
			"node_drain", "node_cordon", "node_uncordon", "namespace_cleanup",
			"config_reload", "secret_rotate", "update_resources", "isolate_workload",
		),
		newSimulatedProvider("cloud",
			"instance_restart", "instance_start", "instance_stop", "instance_replace",
			"instance_resize", "lb_adjust", "sg_update", "dns_failover", "dns_update",
			"storage_cleanup", "storage_expand", "snapshot_create", "snapshot_restore",
			"autoscaling_adjust", "lambda_invoke", "alarm_manage", "block_source_ips",
			"renew_certificate", "provision_ondemand",
		),
		newSimulatedProvider("database",
			"connection_pool_reset", "kill_connections", "slow_query_kill", "kill_queries",
			"query_analyze", "index_analyze", "index_create", "vacuum_run", "analyze_tables",
			"replica_promote", "replica_sync", "backup_trigger", "backup_restore",
			"connection_limit_adjust", "cache_flush", "flush_stale_keys", "stats_refresh",
			"purge_wal",
		),
		newSimulatedProvider("cicd",
			"pipeline_trigger", "pipeline_cancel", "pipeline_retry", "rollback_deploy",
			"rollback", "canary_adjust", "canary_promote", "canary_rollback", "abort_canary",
			"feature_flag_toggle", "hotfix_deploy", "environment_sync", "artifact_promote",
			"deployment_pause", "deployment_resume", "rollout_resume",
		),
		genericProvider{},
	}
}

// genericProvider is the catch-all for action types no dedicated provider
// claims.
type genericProvider struct{}

func (genericProvider) Category() string          { return "generic" }
func (genericProvider) Supports(string) bool      { return true }

func (genericProvider) Execute(ctx context.Context, actionType string, params map[string]string, dryRun bool) (ProviderResult, error) {
	if err := ctx.Err(); err != nil {
		return ProviderResult{}, err
	}
	return ProviderResult{
		Success: true,
		Message: fmt.Sprintf("generic: %s executed", actionType),
		Details: map[string]interface{}{"params": params},
		DryRun:  dryRun,
	}, nil
}
