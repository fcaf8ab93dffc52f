// Package classify assigns categories and sequence numbers to transactions.
package classify

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/dvloznov/statement-auditor/internal/domain"
)

// TagInfo is what a known ID tag implies about a transaction.
type TagInfo struct {
	Classification domain.Classification
	Direction      domain.Direction
}

// tagTable maps the documented ID-tag vocabulary to classification and
// direction. Unknown tags stay Unclassified rather than being guessed.
var tagTable = map[string]TagInfo{
	"inv-deposit":    {domain.Invoice, domain.Inflow},
	"inv-loan":       {domain.Invoice, domain.Inflow},
	"inv-fd":         {domain.Invoice, domain.Inflow},
	"exp-withdrawal": {domain.Expense, domain.Outflow},
	"exp-fd":         {domain.Expense, domain.Outflow},
	"exp-other":      {domain.Expense, domain.Outflow},
}

// LookupTag resolves a known ID tag. The second return is false for tags
// outside the documented vocabulary.
func LookupTag(tag string) (TagInfo, bool) {
	info, ok := tagTable[strings.ToLower(strings.TrimSpace(tag))]
	return info, ok
}

// FromTag derives classification and direction from a free-text ID tag.
// Known vocabulary tags resolve through the mapping table; anything else
// falls back to the legacy substring rule: an "inv" substring implies
// Invoice/inflow and an "exp" substring implies Expense/outflow. The
// substring rule is brittle but kept as documented behavior. Tags matching
// neither are explicitly Unclassified.
func FromTag(tag string) TagInfo {
	if info, ok := LookupTag(tag); ok {
		return info
	}
	lower := strings.ToLower(tag)
	switch {
	case strings.Contains(lower, "inv"):
		return TagInfo{domain.Invoice, domain.Inflow}
	case strings.Contains(lower, "exp"):
		return TagInfo{domain.Expense, domain.Outflow}
	default:
		return TagInfo{domain.Unclassified, ""}
	}
}

var sequencePattern = regexp.MustCompile(`^([A-Z]{3})-\d{4,}$`)

// FromID interprets an imported ID cell. IDs shaped like assigned sequence
// numbers ("INV-1001") yield the classification for their prefix along with
// the number itself; everything else is treated as a raw tag.
func FromID(id string) (domain.Classification, string) {
	if m := sequencePattern.FindStringSubmatch(id); m != nil {
		switch m[1] {
		case domain.Invoice.NumberPrefix():
			return domain.Invoice, id
		case domain.Expense.NumberPrefix():
			return domain.Expense, id
		}
	}
	return FromTag(id).Classification, ""
}

// Apply classifies a transaction from its ID tag, recording the raw tag on
// the transaction.
func Apply(tx *domain.Transaction, tag string) {
	tx.Tag = strings.TrimSpace(tag)
	tx.Classification = FromTag(tag).Classification
}

// AssignNumbers assigns sequence numbers start, start+1, ... to every
// transaction currently tagged with the given classification, in ascending
// date order with ties broken by ledger order (stable sort). Numbers are
// formatted "<PREFIX>-<%04d>". Re-running fully recomputes the run for that
// classification: it is idempotent for identical inputs and start, and
// destructive of numbers edited outside this flow. An empty classification
// subset is a no-op.
func AssignNumbers(ledger *domain.Ledger, c domain.Classification, start int) {
	subset := ledger.ByClassification(c)
	if len(subset) == 0 {
		return
	}
	sort.SliceStable(subset, func(i, j int) bool {
		return subset[i].Date.Before(subset[j].Date)
	})
	prefix := c.NumberPrefix()
	for i, tx := range subset {
		tx.SequenceNumber = fmt.Sprintf("%s-%04d", prefix, start+i)
	}
}

// NextID generates the next prefixed invoice ID for manual entries by
// counting the ledger entries already carrying the prefix, the same way the
// interactive form did.
func NextID(ledger *domain.Ledger, prefix string, start int) string {
	count := 0
	for _, tx := range ledger.Transactions {
		if strings.HasPrefix(tx.SequenceNumber, prefix) || strings.HasPrefix(tx.Tag, prefix) {
			count++
		}
	}
	return fmt.Sprintf("%s%d", prefix, start+count)
}
