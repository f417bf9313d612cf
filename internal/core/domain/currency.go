package domain

// Currency describes a currency the platform posts in.
type Currency struct {
	CurrencyCode string `json:"currencyCode"` // ISO 4217, primary key
	Symbol       string `json:"symbol"`
	Name         string `json:"name"`
	Precision    int    `json:"precision"` // Fraction digits, 2 for all launch currencies
	AuditFields
}
