package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// Extract builds a Record from raw document text. Fields whose rules find
// no match stay nil; Extract itself never fails. Dates are normalized to
// YYYY-MM-DD before the record is returned, so validation downstream can
// rely on canonical form.
func Extract(text string, kind Kind, documentID int64) Record {
	rec := Record{DocumentID: documentID, Kind: kind}
	rules, ok := rulesByKind[kind]
	if !ok {
		return rec
	}

	if v := firstMatch(rules.number, text); v != "" {
		rec.ReferenceNumber = &v
	}
	if v := firstMatch(rules.counterparty, text); v != "" {
		rec.CounterpartyName = &v
	}
	if v, ok := firstAmount(rules.amount, text); ok {
		rec.TotalAmount = &v
	}
	if v, ok := firstAmount(taxRules, text); ok {
		rec.TaxAmount = &v
	}
	if v, ok := firstAmount(subtotalRules, text); ok {
		rec.SubtotalAmount = &v
	}
	if kind == KindReceipt {
		if v := firstMatch(paymentMethodRules, text); v != "" {
			rec.PaymentMethod = &v
		}
	}

	if rules.multiDate {
		dates := allDates(text)
		if len(dates) > 0 {
			issue := NormalizeDate(dates[0])
			rec.IssueDate = &issue
		}
		if len(dates) > 1 {
			due := NormalizeDate(dates[1])
			rec.DueDate = &due
		}
	} else if v := firstMatch(dateRules, text); v != "" {
		issue := NormalizeDate(v)
		rec.IssueDate = &issue
	}

	rec.LineItems = extractLineItems(text)
	return rec
}

// firstMatch returns the trimmed first capture group of the first rule
// that matches, or "" when none do.
func firstMatch(rules []*regexp.Regexp, text string) string {
	for _, re := range rules {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// firstAmount parses the first matching amount rule after stripping
// thousands separators.
func firstAmount(rules []*regexp.Regexp, text string) (float64, bool) {
	raw := firstMatch(rules, text)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// allDates collects every date-like token across the date rules in rule
// order, deduplicating tokens matched by more than one rule.
func allDates(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, re := range dateRules {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				out = append(out, m[1])
			}
		}
	}
	return out
}

func extractLineItems(text string) []LineItem {
	var items []LineItem
	for _, m := range lineItemRule.FindAllStringSubmatch(text, -1) {
		qty, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		rate, err := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", ""), 64)
		if err != nil {
			continue
		}
		items = append(items, LineItem{
			Description: strings.TrimSpace(m[3]),
			Quantity:    qty,
			UnitRate:    rate,
		})
	}
	return items
}
