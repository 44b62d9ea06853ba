package knowledge

// builtinPatterns assembles the compiled-in catalogue. Each category
// contributes its own file; IDs are stable and namespaced by category.
// The set is a curated core, not an exhaustive dump: every category,
// symptom type, and condition operator is covered, and operators extend
// it at runtime with user patterns (see Base.HydrateUserPatterns).
func builtinPatterns() []*IncidentPattern {
	var all []*IncidentPattern
	all = append(all, kubernetesPatterns()...)
	all = append(all, databasePatterns()...)
	all = append(all, cloudPatterns()...)
	all = append(all, applicationPatterns()...)
	all = append(all, cicdPatterns()...)
	all = append(all, networkPatterns()...)
	all = append(all, securityPatterns()...)
	all = append(all, monitoringPatterns()...)
	return all
}
