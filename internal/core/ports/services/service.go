package services

// ServiceContainer holds instances of all the application services.
// It is passed to the route registration so handlers depend on interfaces only.
type ServiceContainer struct {
	Posting  PostingSvcFacade
	Account  AccountSvcFacade
	Currency CurrencySvcFacade
	Approval ApprovalSvcFacade
	Policy   PolicySvcFacade
}
