package suggest

import (
	"reflect"
	"testing"
)

var entities = []string{
	"drugs", "drugBatches", "suppliers", "purchaseInvoices", "saleInvoices",
	"payments", "roles", "users", "settings", "activityLog",
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"drugs", "drugs", 0},
		{"drug", "drugs", 1},
		{"durgs", "drugs", 2},
		{"kitten", "sitting", 3},
	}
	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestClosest(t *testing.T) {
	tests := []struct {
		in    string
		first string
	}{
		{"drug", "drugs"},
		{"durgs", "drugs"},
		{"drug_batches", "drugBatches"},
		{"Sale-Invoices", "saleInvoices"},
		{"supplier", "suppliers"},
		{"batch", "drugBatches"},
	}
	for _, tt := range tests {
		got := Closest(tt.in, entities)
		if len(got) == 0 || got[0] != tt.first {
			t.Errorf("Closest(%q) = %v, want %q first", tt.in, got, tt.first)
		}
		if len(got) > maxSuggestions {
			t.Errorf("Closest(%q) returned %d suggestions", tt.in, len(got))
		}
	}
}

func TestClosest_NoMatch(t *testing.T) {
	if got := Closest("zzzzqqq", entities); len(got) != 0 {
		t.Errorf("Closest(zzzzqqq) = %v, want none", got)
	}
	if got := Closest("", entities); got != nil {
		t.Errorf("Closest(\"\") = %v, want nil", got)
	}
}

func TestClosest_NoDuplicates(t *testing.T) {
	got := Closest("invoices", entities)
	seen := map[string]bool{}
	for _, s := range got {
		if seen[s] {
			t.Fatalf("duplicate suggestion %q in %v", s, got)
		}
		seen[s] = true
	}
	want := []string{"purchaseInvoices", "saleInvoices"}
	for _, w := range want {
		if !seen[w] {
			t.Errorf("Closest(invoices) = %v, missing %q", got, w)
		}
	}
}

func TestHint(t *testing.T) {
	if got := Hint("usres", entities); got != "Did you mean: users?" {
		t.Errorf("Hint(usres) = %q", got)
	}
	if got := Hint("zzzzqqq", entities); got != "" {
		t.Errorf("Hint(zzzzqqq) = %q, want empty", got)
	}
	if !reflect.DeepEqual(Closest("roles", entities)[:1], []string{"roles"}) {
		t.Error("exact match should come first")
	}
}
