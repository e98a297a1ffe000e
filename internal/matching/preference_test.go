package matching

import (
	"errors"
	"testing"
)

func TestParseInterests(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"empty", "", nil},
		{"blank", "   ", nil},
		{"only commas", " , ,, ", nil},
		{"single", "Gaming", []string{"gaming"}},
		{"trim and lowercase", " Music ,GAMING,  anime ", []string{"anime", "gaming", "music"}},
		{"duplicates", "music,Music, music ", []string{"music"}},
		{"inner spaces kept", "board games, Board Games", []string{"board games"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseInterests(tt.raw)
			if len(got) != len(tt.want) {
				t.Fatalf("ParseInterests(%q) = %v, want %v", tt.raw, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ParseInterests(%q)[%d] = %q, want %q", tt.raw, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestNewPreferences(t *testing.T) {
	tests := []struct {
		name                               string
		self, desired, interests, strategy string
		wantErr                            error
	}{
		{"valid strict", "male", "female", "music", "strict", nil},
		{"empty strategy defaults", "female", "everyone", "", "", nil},
		{"case insensitive", " Female ", "MALE", "", "Any", nil},
		{"missing gender", "", "female", "", "", ErrMissingGender},
		{"missing target", "male", "", "", "", ErrMissingTarget},
		{"unknown gender", "robot", "female", "", "", ErrUnknownGender},
		{"unknown target", "male", "robots", "", "", ErrUnknownTarget},
		{"unknown strategy", "male", "female", "", "fuzzy", ErrUnknownStrategy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPreferences(tt.self, tt.desired, tt.interests, tt.strategy)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNewPreferences_DefaultsToStrict(t *testing.T) {
	p, err := NewPreferences("male", "female", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Strategy != StrategyStrict {
		t.Errorf("expected strict, got %q", p.Strategy)
	}
	if p.Desired != TargetFemale {
		t.Errorf("strict search must keep the desired gender, got %q", p.Desired)
	}
}

func TestNormalize_AnyWidensDesired(t *testing.T) {
	p, err := NewPreferences("male", "female", "Music", "any")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Desired != TargetEveryone {
		t.Errorf("expected desired to become everyone under any, got %q", p.Desired)
	}
	if len(p.Interests) != 1 || p.Interests[0] != "music" {
		t.Errorf("unexpected interests: %v", p.Interests)
	}
}

func TestAccepts(t *testing.T) {
	everyone := Preferences{Desired: TargetEveryone}
	for _, g := range []Gender{GenderMale, GenderFemale, GenderNonBinary} {
		if !everyone.Accepts(g) {
			t.Errorf("everyone should accept %q", g)
		}
	}

	wantsFemale := Preferences{Desired: TargetFemale}
	if !wantsFemale.Accepts(GenderFemale) {
		t.Error("female target should accept female")
	}
	if wantsFemale.Accepts(GenderMale) || wantsFemale.Accepts(GenderNonBinary) {
		t.Error("female target should reject other genders")
	}
}
