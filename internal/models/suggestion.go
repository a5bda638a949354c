package models

// PromptCategory groups prompt suggestions.
type PromptCategory string

const (
	CategoryLeaseAnalysis      PromptCategory = "lease_analysis"
	CategoryPropertyComparison PromptCategory = "property_comparison"
	CategoryFinancialReport    PromptCategory = "financial_report"
	CategoryTenantManagement   PromptCategory = "tenant_management"
	CategoryGeneral            PromptCategory = "general"
)

// PromptSuggestion is a ready-made question offered on an empty conversation.
type PromptSuggestion struct {
	ID          string         `json:"id"`
	Category    PromptCategory `json:"category"`
	Title       string         `json:"title"`
	Prompt      string         `json:"prompt"`
	Icon        string         `json:"icon"`
	Description string         `json:"description,omitempty"`
}

// DefaultSuggestions is shown when the backend cannot provide suggestions.
func DefaultSuggestions() []PromptSuggestion {
	return []PromptSuggestion{
		{ID: "lease_summary_1", Category: CategoryLeaseAnalysis, Title: "Résumé des baux", Icon: "📄",
			Prompt: "Peux-tu me donner un résumé de tous mes baux actifs avec leurs dates d'échéance ?"},
		{ID: "lease_expiring_1", Category: CategoryLeaseAnalysis, Title: "Baux arrivant à échéance", Icon: "⏰",
			Prompt: "Quels sont les baux qui arrivent à échéance dans les 3 prochains mois ?"},
		{ID: "property_roi_1", Category: CategoryPropertyComparison, Title: "Rentabilité des biens", Icon: "🏠",
			Prompt: "Compare la rentabilité de toutes mes propriétés"},
		{ID: "financial_report_1", Category: CategoryFinancialReport, Title: "Rapport financier", Icon: "📊",
			Prompt: "Génère un rapport financier pour le mois en cours"},
		{ID: "tenant_late_1", Category: CategoryTenantManagement, Title: "Retards de paiement", Icon: "⚠️",
			Prompt: "Y a-t-il des retards de paiement en cours ?"},
		{ID: "general_overview_1", Category: CategoryGeneral, Title: "Vue d'ensemble", Icon: "🔎",
			Prompt: "Donne-moi une vue d'ensemble complète de mon portefeuille immobilier"},
	}
}
