// Package rules implements merchant and description based
// auto-categorization of incoming transactions.
package rules

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

type MatchType string

const (
	MerchantExact       MatchType = "merchant_exact"
	MerchantContains    MatchType = "merchant_contains"
	DescriptionContains MatchType = "description_contains"
)

func (m MatchType) Valid() bool {
	switch m {
	case MerchantExact, MerchantContains, DescriptionContains:
		return true
	}
	return false
}

// Rule maps a merchant or description pattern to a category. Lower
// priority values win.
type Rule struct {
	ID          uuid.UUID
	HouseholdID uuid.UUID
	CategoryID  uuid.UUID
	MatchType   MatchType
	MatchValue  string
	Priority    int
}

func (r Rule) matches(merchant, description string) bool {
	value := strings.ToLower(strings.TrimSpace(r.MatchValue))
	if value == "" {
		return false
	}
	merchant = strings.ToLower(strings.TrimSpace(merchant))
	description = strings.ToLower(strings.TrimSpace(description))

	switch r.MatchType {
	case MerchantExact:
		return merchant == value
	case MerchantContains:
		return merchant != "" && strings.Contains(merchant, value)
	case DescriptionContains:
		return description != "" && strings.Contains(description, value)
	}
	return false
}

// Match returns the category of the first rule that matches the
// transaction, scanning in ascending priority order. The second return
// value reports whether any rule matched.
func Match(ruleset []Rule, merchant, description string) (uuid.UUID, bool) {
	ordered := make([]Rule, len(ruleset))
	copy(ordered, ruleset)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	for _, r := range ordered {
		if r.matches(merchant, description) {
			return r.CategoryID, true
		}
	}
	return uuid.Nil, false
}
