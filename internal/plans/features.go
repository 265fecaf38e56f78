package plans

// Feature flag names stored in plan.features.
const (
	FeatureBudgets        = "budgets"
	FeatureSavingsGoals   = "savings_goals"
	FeatureExport         = "export"
	FeatureTeamManagement = "team_management"
	FeatureAPIAccess      = "api_access"
)
