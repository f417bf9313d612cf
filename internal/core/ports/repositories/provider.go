package repositories

// RepositoryProvider bundles every repository implementation for injection
// into the service layer.
type RepositoryProvider struct {
	AccountRepo     AccountRepository
	BalanceRepo     BalanceRepository
	JournalRepo     JournalRepository
	IdempotencyRepo IdempotencyRepository
	CurrencyRepo    CurrencyRepository
	EventRepo       EventRepository
	PolicyRepo      PolicyRepository
	ApprovalRepo    ApprovalRepository
	DelegationRepo  DelegationRepository
}
