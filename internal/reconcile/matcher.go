package reconcile

import (
	"strings"

	"github.com/tildaslashalef/reposync/internal/remote"
)

// Tier is the matching rule that produced a match; lower is stronger
type Tier int

const (
	TierNone Tier = iota
	TierExact
	TierContains
	TierNormalized
	TierNormalizedContains
)

func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierContains:
		return "contains"
	case TierNormalized:
		return "normalized"
	case TierNormalizedContains:
		return "normalized-contains"
	default:
		return "none"
	}
}

// Match is a remote counterpart found for a local name
type Match struct {
	Entity    remote.Entity
	Tier      Tier
	Ambiguous bool // another remote matched at the same tier
}

// Matcher finds an existing remote counterpart for a local display name.
// It is the only place that decides identity, so a stable key based
// matcher can replace it without touching the reconcilers.
type Matcher interface {
	FindMatch(candidate string, remotes []remote.Entity) (Match, bool)
}

// TieredMatcher tries exact, containment, normalized and normalized
// containment rules in that order. The first remote in list order wins
// within a tier.
type TieredMatcher struct {
	normalize func(string) string
}

// NewTieredMatcher creates a matcher using Normalize
func NewTieredMatcher() *TieredMatcher {
	return &TieredMatcher{normalize: Normalize}
}

func (m *TieredMatcher) FindMatch(candidate string, remotes []remote.Entity) (Match, bool) {
	if strings.TrimSpace(candidate) == "" || len(remotes) == 0 {
		return Match{}, false
	}

	if match, ok := firstAt(TierExact, remotes, func(name string) bool {
		return name == candidate
	}); ok {
		return match, true
	}

	if match, ok := firstAt(TierContains, remotes, func(name string) bool {
		return containsEither(candidate, name)
	}); ok {
		return match, true
	}

	key := m.normalize(candidate)
	if key == "" {
		return Match{}, false
	}

	keys := make([]string, len(remotes))
	for i := range remotes {
		keys[i] = m.normalize(remotes[i].Name)
	}
	byIndex := func(pred func(string) bool) func(int) bool {
		return func(i int) bool { return pred(keys[i]) }
	}

	if match, ok := firstAtIndex(TierNormalized, remotes, byIndex(func(k string) bool {
		return k != "" && k == key
	})); ok {
		return match, true
	}

	return firstAtIndex(TierNormalizedContains, remotes, byIndex(func(k string) bool {
		return containsEither(key, k)
	}))
}

func containsEither(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func firstAt(tier Tier, remotes []remote.Entity, pred func(name string) bool) (Match, bool) {
	return firstAtIndex(tier, remotes, func(i int) bool { return pred(remotes[i].Name) })
}

func firstAtIndex(tier Tier, remotes []remote.Entity, pred func(i int) bool) (Match, bool) {
	found := -1
	for i := range remotes {
		if !pred(i) {
			continue
		}
		if found >= 0 {
			return Match{Entity: remotes[found], Tier: tier, Ambiguous: true}, true
		}
		found = i
	}
	if found < 0 {
		return Match{}, false
	}
	return Match{Entity: remotes[found], Tier: tier}, true
}
