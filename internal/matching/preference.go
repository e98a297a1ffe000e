package matching

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Gender is the self-declared gender of a searching user.
type Gender string

// Target is the gender a searching user wants to be paired with.
type Target string

// Strategy controls how strictly preferences are enforced while matching.
type Strategy string

const (
	GenderMale      Gender = "male"
	GenderFemale    Gender = "female"
	GenderNonBinary Gender = "nonbinary"

	TargetMale     Target = "male"
	TargetFemale   Target = "female"
	TargetEveryone Target = "everyone"

	// StrategyStrict honours both gender directions and refuses pairs whose
	// declared interests do not overlap.
	StrategyStrict Strategy = "strict"
	// StrategyAny drops the searcher's own gender filter and the interest
	// exclusivity rule.
	StrategyAny Strategy = "any"
)

var (
	ErrMissingGender   = errors.New("matching: gender is required")
	ErrMissingTarget   = errors.New("matching: looking-for is required")
	ErrUnknownGender   = errors.New("matching: unknown gender")
	ErrUnknownTarget   = errors.New("matching: unknown looking-for value")
	ErrUnknownStrategy = errors.New("matching: unknown strategy")
)

// Preferences is the comparable form of a user's search input.
type Preferences struct {
	Self      Gender
	Desired   Target
	Interests []string // sorted, lowercase, unique
	Strategy  Strategy
}

// NewPreferences validates raw search input and builds normalized
// Preferences. An empty strategy means strict.
func NewPreferences(self, desired, interests, strategy string) (Preferences, error) {
	p := Preferences{
		Self:      Gender(strings.ToLower(strings.TrimSpace(self))),
		Desired:   Target(strings.ToLower(strings.TrimSpace(desired))),
		Interests: ParseInterests(interests),
		Strategy:  Strategy(strings.ToLower(strings.TrimSpace(strategy))),
	}
	if p.Strategy == "" {
		p.Strategy = StrategyStrict
	}
	if err := p.Validate(); err != nil {
		return Preferences{}, err
	}
	return p.Normalize(), nil
}

// Validate reports the first problem with p, if any.
func (p Preferences) Validate() error {
	switch p.Self {
	case "":
		return ErrMissingGender
	case GenderMale, GenderFemale, GenderNonBinary:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownGender, p.Self)
	}

	switch p.Desired {
	case "":
		return ErrMissingTarget
	case TargetMale, TargetFemale, TargetEveryone:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTarget, p.Desired)
	}

	switch p.Strategy {
	case StrategyStrict, StrategyAny:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, p.Strategy)
	}
	return nil
}

// Normalize returns a copy of p in the form the matcher compares. Under
// StrategyAny the searcher's own filter is widened to everyone.
func (p Preferences) Normalize() Preferences {
	out := p
	out.Interests = normalizeInterests(p.Interests)
	if out.Strategy == StrategyAny {
		out.Desired = TargetEveryone
	}
	return out
}

// Accepts reports whether a user with these preferences is willing to be
// paired with someone of gender g.
func (p Preferences) Accepts(g Gender) bool {
	return p.Desired == TargetEveryone || string(p.Desired) == string(g)
}

// ParseInterests splits free-text interest input on commas. The result is
// lowercase, trimmed, de-duplicated and sorted; empty items are dropped.
func ParseInterests(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return normalizeInterests(strings.Split(raw, ","))
}

func normalizeInterests(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, tag := range in {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}
