package entities

import "time"

type LedgerDirection string

const (
	Debit  LedgerDirection = "debit"
	Credit LedgerDirection = "credit"
)

// Well-known ledger accounts referenced throughout the orchestrator.
const (
	AccountFanReceivable         = "fan_receivable"
	AccountCreatorPayable        = "creator_payable"
	AccountPlatformFeeRevenue    = "platform_fee_revenue"
	AccountProcessorFeeExpense   = "processor_fee_expense"
	AccountProcessorPayable      = "processor_payable"
	AccountCreatorPayoutClearing = "creator_payout_clearing"
)

// LedgerEntry is one leg of a balanced double-entry set.
type LedgerEntry struct {
	EntryID        string          `json:"entryId"`
	PairID         string          `json:"pairId"`
	Account        string          `json:"account"`
	Direction      LedgerDirection `json:"direction"`
	Amount         Money           `json:"amount"`
	TransactionRef string          `json:"transactionRef,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}
