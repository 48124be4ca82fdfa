package extract

import "regexp"

// Rules are declared as ordered tables so each entry is independently
// testable and new vocabularies can be added without touching control
// flow. Within a table the first pattern that matches wins and later
// entries are never consulted.

var (
	invoiceNumberRules = []*regexp.Regexp{
		regexp.MustCompile(`(?i)invoice\s*#?\s*:?\s*([A-Z0-9\-]+)`),
		regexp.MustCompile(`(?i)inv\s*#?\s*:?\s*([A-Z0-9\-]+)`),
		regexp.MustCompile(`(?i)#\s*([A-Z0-9\-]+)`),
	}
	receiptNumberRules = []*regexp.Regexp{
		regexp.MustCompile(`(?i)receipt\s*#?\s*:?\s*([A-Z0-9\-]+)`),
		regexp.MustCompile(`(?i)rec\s*#?\s*:?\s*([A-Z0-9\-]+)`),
	}

	dateRules = []*regexp.Regexp{
		regexp.MustCompile(`(?i)date\s*:?\s*(\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4})`),
		regexp.MustCompile(`(\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4})`),
	}

	invoiceCounterpartyRules = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:bill\s+to|to)\s*:?\s*([A-Za-z][A-Za-z0-9 .,&'\-]*)`),
		regexp.MustCompile(`(?i)customer\s*:?\s*([A-Za-z][A-Za-z0-9 .,&'\-]*)`),
	}
	receiptCounterpartyRules = []*regexp.Regexp{
		regexp.MustCompile(`(?i)received\s+from\s*:?\s*([A-Za-z][A-Za-z0-9 .,&'\-]*)`),
		regexp.MustCompile(`(?i)from\s*:?\s*([A-Za-z][A-Za-z0-9 .,&'\-]*)`),
		regexp.MustCompile(`(?i)payer\s*:?\s*([A-Za-z][A-Za-z0-9 .,&'\-]*)`),
	}

	// Keyword-anchored amounts outrank a bare currency figure by rule
	// order. Invoices read "total" first, receipts read "amount" first.
	// The boundary keeps "Subtotal:" from satisfying the total rule.
	invoiceAmountRules = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\btotal\s*:?\s*\$?(\d+(?:,\d{3})*(?:\.\d{2})?)`),
		regexp.MustCompile(`(?i)\bamount\s*:?\s*\$?(\d+(?:,\d{3})*(?:\.\d{2})?)`),
		regexp.MustCompile(`\$(\d+(?:,\d{3})*(?:\.\d{2})?)`),
	}
	receiptAmountRules = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bamount\s*:?\s*\$?(\d+(?:,\d{3})*(?:\.\d{2})?)`),
		regexp.MustCompile(`(?i)\btotal\s*:?\s*\$?(\d+(?:,\d{3})*(?:\.\d{2})?)`),
		regexp.MustCompile(`\$(\d+(?:,\d{3})*(?:\.\d{2})?)`),
	}

	taxRules = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:sales\s+)?tax\s*:?\s*\$?(\d+(?:,\d{3})*(?:\.\d{2})?)`),
	}
	subtotalRules = []*regexp.Regexp{
		regexp.MustCompile(`(?i)sub\s*-?\s*total\s*:?\s*\$?(\d+(?:,\d{3})*(?:\.\d{2})?)`),
	}

	paymentMethodRules = []*regexp.Regexp{
		regexp.MustCompile(`(?i)payment\s+method\s*:?\s*([A-Za-z][A-Za-z ]*)`),
		regexp.MustCompile(`(?i)paid\s+by\s*:?\s*([A-Za-z][A-Za-z ]*)`),
	}

	// Billed lines of the form "2 x $150.00 Consulting hours".
	lineItemRule = regexp.MustCompile(`(?m)^\s*(\d+(?:\.\d+)?)\s*x\s*\$?(\d+(?:,\d{3})*(?:\.\d{2})?)\s+(\S.*)$`)
)

// kindRules groups the per-kind rule tables consulted by Extract.
type kindRules struct {
	number       []*regexp.Regexp
	counterparty []*regexp.Regexp
	amount       []*regexp.Regexp
	// multiDate records both detected dates positionally: the first
	// token becomes the issue date and the second the due date. The
	// mapping is positional, not semantic, so a due date printed before
	// the issue date inverts it; callers treat DueDate as advisory.
	multiDate bool
}

var rulesByKind = map[Kind]kindRules{
	KindInvoice: {
		number:       invoiceNumberRules,
		counterparty: invoiceCounterpartyRules,
		amount:       invoiceAmountRules,
		multiDate:    true,
	},
	KindReceipt: {
		number:       receiptNumberRules,
		counterparty: receiptCounterpartyRules,
		amount:       receiptAmountRules,
	},
}
