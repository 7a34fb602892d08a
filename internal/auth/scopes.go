package auth

// Scopes understood by the insights API.
const (
	ScopeInsightsRead    = "insights:read"
	ScopeInsightsAnalyze = "insights:analyze"
	ScopeAdmin           = "admin"
)
