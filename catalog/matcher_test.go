package catalog_test

import (
	"testing"

	"github.com/lunarispay/hookline/catalog"
)

func TestMatch(t *testing.T) {
	cases := []struct {
		pattern   string
		eventType string
		want      bool
	}{
		{"invoice.paid", "invoice.paid", true},
		{"invoice.paid", "invoice.created", false},
		{"invoice.*", "invoice.paid", true},
		{"invoice.*", "invoice.created", true},
		{"invoice.*", "subscription.canceled", false},
		{"*", "invoice.paid", true},
		{"*", "anything", true},
		{"invoice.*", "invoice.payment.failed", false}, // segment count mismatch
		{"invoice.*.failed", "invoice.payment.failed", true},
		{"*.paid", "invoice.paid", true},
		{"*.paid", "invoice.created", false},
		{"", "invoice.paid", false},
	}

	for _, tc := range cases {
		if got := catalog.Match(tc.pattern, tc.eventType); got != tc.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tc.pattern, tc.eventType, got, tc.want)
		}
	}
}
