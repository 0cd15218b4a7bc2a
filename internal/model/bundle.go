package model

// MetricsBundle is the aggregate output of one engine run. Every field is
// always present and zero-filled when data is absent, so downstream loaders
// never need nil checks. All numeric leaves are native float64, safe for
// direct JSON serialization.
type MetricsBundle struct {
	Sales       SalesMetrics       `json:"sales"`
	Financial   FinancialMetrics   `json:"financial"`
	Operational OperationalMetrics `json:"operational"`
	Valuation   ValuationMetrics   `json:"valuation"`
	Equipment   EquipmentMetrics   `json:"equipment"`
	LandingPage LandingPageMetrics `json:"landing_page"`
}

// SalesMetrics holds the revenue-side results.
type SalesMetrics struct {
	TotalRevenue            float64 `json:"total_revenue"`
	MonthlyRevenueAverage   float64 `json:"monthly_revenue_average"`
	AnnualRevenueProjection float64 `json:"annual_revenue_projection"`
	PeriodCount             int     `json:"period_count"`
	ObservedPeriods         int     `json:"observed_periods"`
	ImputedPeriods          int     `json:"imputed_periods"`
	UsedTotalFallback       bool    `json:"used_total_fallback"`
}

// FinancialMetrics holds the EBITDA-side results.
type FinancialMetrics struct {
	MonthlyEBITDAAverage   float64 `json:"monthly_ebitda_average"`
	AnnualEBITDA           float64 `json:"annual_ebitda"`
	EBITDAMarginPct        float64 `json:"ebitda_margin_pct"`
	TotalOperatingExpenses float64 `json:"total_operating_expenses"`
	UsedMarginFallback     bool    `json:"used_margin_fallback"`
}

// OperationalMetrics summarizes what the engine actually processed.
type OperationalMetrics struct {
	LocationsInScope    []string `json:"locations_in_scope"`
	StatementsProcessed int      `json:"statements_processed"`
	StatementsSkipped   int      `json:"statements_skipped"`
	LedgerTransactions  int      `json:"ledger_transactions"`
}

// ValuationMetrics holds the deal-level figures.
type ValuationMetrics struct {
	AskingPrice  float64 `json:"asking_price"`
	ROIPct       float64 `json:"roi_pct"`
	PaybackYears float64 `json:"payback_years"`
}

// EquipmentMetrics holds the equipment valuation results.
type EquipmentMetrics struct {
	TotalValue   float64 `json:"total_value"`
	ItemCount    int     `json:"item_count"`
	UsedFallback bool    `json:"used_fallback"`
}

// LandingPageMetrics holds pre-formatted display strings for the listing page.
type LandingPageMetrics struct {
	AnnualRevenue string `json:"annual_revenue"`
	AnnualEBITDA  string `json:"annual_ebitda"`
	ROI           string `json:"roi"`
	Payback       string `json:"payback"`
	AskingPrice   string `json:"asking_price"`
}
