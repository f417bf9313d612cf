package dto

import "github.com/sandpesa/coreledger/internal/core/domain"

// GetOrCreateAccountRequest identifies an account by its natural key. The
// account is created on first use.
type GetOrCreateAccountRequest struct {
	OwnerType    domain.OwnerType   `json:"ownerType" binding:"required,oneof=CUSTOMER AGENT MERCHANT PLATFORM"`
	OwnerID      string             `json:"ownerID" binding:"required"`
	AccountType  domain.AccountType `json:"accountType" binding:"required"`
	CurrencyCode string             `json:"currencyCode" binding:"required,len=3"`
}
