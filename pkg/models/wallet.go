package models

import (
	"github.com/shopspring/decimal"
)

type BalancesInput struct {
	WalletAddress string  `json:"walletAddress" validate:"required,address"`
	Networks      []int   `json:"networks,omitempty" validate:"omitempty,dive,networkid"`
	IncludeNative *bool   `json:"includeNative,omitempty"`
	Limit         *int    `json:"limit,omitempty" validate:"omitempty,min=1,max=200"`
	Cursor        *string `json:"cursor,omitempty"`
}

type WalletBalance struct {
	WalletID           string           `json:"walletId"`
	TokenID            string           `json:"tokenId"`
	Address            string           `json:"address"`
	NetworkID          int              `json:"networkId"`
	Balance            decimal.Decimal  `json:"balance"`
	ShiftedBalance     float64          `json:"shiftedBalance"`
	BalanceUsd         *decimal.Decimal `json:"balanceUsd,omitempty"`
	TokenPriceUsd      *decimal.Decimal `json:"tokenPriceUsd,omitempty"`
	FirstHeldTimestamp *int64           `json:"firstHeldTimestamp,omitempty"`
	Token              *EnhancedToken   `json:"token,omitempty"`
}

type BalancesResponse struct {
	Items  []WalletBalance `json:"items"`
	Cursor *string         `json:"cursor,omitempty"`
}

// TotalUsd sums the USD balances that are known.
func (r BalancesResponse) TotalUsd() decimal.Decimal {
	total := decimal.Zero
	for _, b := range r.Items {
		if b.BalanceUsd != nil {
			total = total.Add(*b.BalanceUsd)
		}
	}
	return total
}
