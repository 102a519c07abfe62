package rules

import (
	"testing"

	"github.com/google/uuid"
)

func TestMatchTypes(t *testing.T) {
	groceries := uuid.New()
	coffee := uuid.New()
	subs := uuid.New()

	ruleset := []Rule{
		{CategoryID: groceries, MatchType: MerchantExact, MatchValue: "Esselunga", Priority: 10},
		{CategoryID: coffee, MatchType: MerchantContains, MatchValue: "caff", Priority: 20},
		{CategoryID: subs, MatchType: DescriptionContains, MatchValue: "subscription", Priority: 30},
	}

	cases := []struct {
		name        string
		merchant    string
		description string
		want        uuid.UUID
		found       bool
	}{
		{"exact merchant", "esselunga", "weekly shop", groceries, true},
		{"exact requires full match", "esselunga superstore", "weekly shop", uuid.Nil, false},
		{"merchant contains", "Caffè Roma", "espresso", coffee, true},
		{"description contains", "Netflix", "monthly subscription", subs, true},
		{"no match", "Ikea", "bookshelf", uuid.Nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, found := Match(ruleset, tc.merchant, tc.description)
			if found != tc.found {
				t.Fatalf("found = %v, want %v", found, tc.found)
			}
			if found && got != tc.want {
				t.Fatalf("matched %s, want %s", got, tc.want)
			}
		})
	}
}

func TestMatchPriorityOrder(t *testing.T) {
	first := uuid.New()
	second := uuid.New()

	// Both rules match; the lower priority value must win regardless
	// of slice order.
	ruleset := []Rule{
		{CategoryID: second, MatchType: MerchantContains, MatchValue: "shop", Priority: 50},
		{CategoryID: first, MatchType: MerchantContains, MatchValue: "shop", Priority: 5},
	}

	got, found := Match(ruleset, "Corner Shop", "")
	if !found || got != first {
		t.Fatalf("got %s (found=%v), want lower-priority rule %s", got, found, first)
	}
}

func TestMatchDoesNotMutateInput(t *testing.T) {
	a := uuid.New()
	ruleset := []Rule{
		{CategoryID: a, MatchType: MerchantExact, MatchValue: "x", Priority: 2},
		{CategoryID: a, MatchType: MerchantExact, MatchValue: "y", Priority: 1},
	}
	Match(ruleset, "x", "")
	if ruleset[0].Priority != 2 {
		t.Fatal("Match reordered the caller's slice")
	}
}

func TestMatchEmptyValueNeverMatches(t *testing.T) {
	ruleset := []Rule{{CategoryID: uuid.New(), MatchType: MerchantContains, MatchValue: "  "}}
	if _, found := Match(ruleset, "anything", "anything"); found {
		t.Fatal("blank match value must not match")
	}
}
