package enums

import "fmt"

// InvoiceStatus mirrors the payment processor's invoice lifecycle.
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "draft"
	InvoiceStatusOpen          InvoiceStatus = "open"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusUncollectible InvoiceStatus = "uncollectible"
	InvoiceStatusVoid          InvoiceStatus = "void"
)

var validInvoiceStatuses = []InvoiceStatus{
	InvoiceStatusDraft,
	InvoiceStatusOpen,
	InvoiceStatusPaid,
	InvoiceStatusUncollectible,
	InvoiceStatusVoid,
}

// invoiceStatusRank orders statuses by lifecycle progression. Events may be
// delivered out of order; a status with a lower rank never overwrites one
// with a higher rank, and paid/void are final.
var invoiceStatusRank = map[InvoiceStatus]int{
	InvoiceStatusDraft:         0,
	InvoiceStatusOpen:          1,
	InvoiceStatusUncollectible: 2,
	InvoiceStatusPaid:          3,
	InvoiceStatusVoid:          3,
}

func (s InvoiceStatus) String() string {
	return string(s)
}

// IsValid reports whether the status is one the platform persists.
func (s InvoiceStatus) IsValid() bool {
	for _, candidate := range validInvoiceStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// IsFinal reports whether no further transition is allowed from the status.
func (s InvoiceStatus) IsFinal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusVoid
}

// CanTransitionTo reports whether moving from s to next preserves lifecycle order.
func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	if s == next {
		return false
	}
	if s.IsFinal() {
		return false
	}
	return invoiceStatusRank[next] >= invoiceStatusRank[s]
}

// ParseInvoiceStatus converts raw input into an InvoiceStatus.
func ParseInvoiceStatus(value string) (InvoiceStatus, error) {
	for _, candidate := range validInvoiceStatuses {
		if InvoiceStatus(value) == candidate {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid invoice status %q", value)
}
