package pipeline

import "github.com/paperledger/paperledger/internal/extract"

// Validate gates a record before any ledger write. The accounting service
// needs a party, an amount and a date to create either entity kind; a
// record missing any of the three cannot produce a meaningful entity, so
// these checks are necessary and sufficient. No other field is required.
// The returned reason is empty on acceptance.
func Validate(rec extract.Record) (ok bool, reason string) {
	if rec.CounterpartyName == nil || *rec.CounterpartyName == "" {
		return false, "counterparty name missing"
	}
	if rec.TotalAmount == nil || *rec.TotalAmount <= 0 {
		return false, "total amount missing or not positive"
	}
	if rec.IssueDate == nil || *rec.IssueDate == "" {
		return false, "issue date missing"
	}
	return true, ""
}
