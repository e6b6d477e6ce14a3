package enums

import "testing"

func TestInvoiceStatusCanTransitionTo(t *testing.T) {
	cases := []struct {
		name string
		from InvoiceStatus
		to   InvoiceStatus
		want bool
	}{
		{"draft to open", InvoiceStatusDraft, InvoiceStatusOpen, true},
		{"open to paid", InvoiceStatusOpen, InvoiceStatusPaid, true},
		{"open to uncollectible", InvoiceStatusOpen, InvoiceStatusUncollectible, true},
		{"uncollectible to paid", InvoiceStatusUncollectible, InvoiceStatusPaid, true},
		{"paid to open", InvoiceStatusPaid, InvoiceStatusOpen, false},
		{"paid to uncollectible", InvoiceStatusPaid, InvoiceStatusUncollectible, false},
		{"void to open", InvoiceStatusVoid, InvoiceStatusOpen, false},
		{"open to draft", InvoiceStatusOpen, InvoiceStatusDraft, false},
		{"same status", InvoiceStatusOpen, InvoiceStatusOpen, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
				t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.want, got)
			}
		})
	}
}

func TestParseInvoiceStatus(t *testing.T) {
	status, err := ParseInvoiceStatus("open")
	if err != nil {
		t.Fatalf("parse open: %v", err)
	}
	if status != InvoiceStatusOpen {
		t.Fatalf("expected open, got %s", status)
	}

	if _, err := ParseInvoiceStatus("unknown"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}
