package models

import "github.com/shopspring/decimal"

// CreateAccountRequest is the body of POST /api/account
type CreateAccountRequest struct {
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
}

// TransactionRequest is the body of deposit and withdraw calls
type TransactionRequest struct {
	Amount *decimal.Decimal `json:"amount" validate:"required,dgte=0.01"`
}

// TransferRequest is what the user sends to move funds to another account
type TransferRequest struct {
	DestinationAccountLastName string           `json:"destinationAccountLastName" validate:"required"`
	Amount                     *decimal.Decimal `json:"amount" validate:"required,dgte=0.01"`
}
