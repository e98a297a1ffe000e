package matching

// Compatible reports whether a searching candidate may be paired with a user
// already waiting in the pool. Both sides are expected to be normalized.
//
// Rules, in order:
//  1. a shared interest always matches, whatever the genders or strategy;
//  2. under StrategyStrict, two non-empty interest sets with no overlap
//     never match;
//  3. otherwise each side must accept the other's gender. Under StrategyAny
//     the candidate's own filter is already "everyone", so only the
//     waiter's filter is effective.
func Compatible(candidate, waiter Preferences) bool {
	if hasSharedInterest(candidate.Interests, waiter.Interests) {
		return true
	}

	if candidate.Strategy != StrategyAny &&
		len(candidate.Interests) > 0 && len(waiter.Interests) > 0 {
		return false
	}

	return candidate.Accepts(waiter.Self) && waiter.Accepts(candidate.Self)
}

// SharedInterests returns the sorted intersection of two interest sets.
// Both inputs must already be sorted (see ParseInterests).
func SharedInterests(a, b []string) []string {
	shared := make([]string, 0)
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			shared = append(shared, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return shared
}

func hasSharedInterest(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, tag := range a {
		set[tag] = struct{}{}
	}
	for _, tag := range b {
		if _, ok := set[tag]; ok {
			return true
		}
	}
	return false
}
