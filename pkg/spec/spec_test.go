package spec

import (
	"testing"

	"github.com/depforge/depforge/pkg/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		raw     string
		name    string
		op      Op
		version string
	}{
		{"requests", "requests", OpAny, ""},
		{"requests==2.1.0", "requests", OpEq, "2.1.0"},
		{"flask>=1.0.0", "flask", OpGTE, "1.0.0"},
		{"django<=4.2.0", "django", OpLTE, "4.2.0"},
		{"numpy>1.20.0", "numpy", OpGT, "1.20.0"},
		{"scipy<2.0.0", "scipy", OpLT, "2.0.0"},
		{"pandas~=1.4.2", "pandas", OpCompat, "1.4.2"},
		{"  spaced >= 1.0.0 ", "spaced", OpGTE, "1.0.0"},
		{"my-pkg_2.ext==0.1.0-rc.1", "my-pkg_2.ext", OpEq, "0.1.0-rc.1"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			s, err := Parse(tt.raw)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.raw, err)
			}
			if s.Name != tt.name || s.Op != tt.op || s.Version != tt.version {
				t.Errorf("Parse(%q) = {%s %s %s}, want {%s %s %s}",
					tt.raw, s.Name, s.Op, s.Version, tt.name, tt.op, tt.version)
			}
			if s.Raw != tt.raw {
				t.Errorf("Raw = %q, want %q", s.Raw, tt.raw)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	invalid := []string{
		"",
		">=1.0.0",       // no name
		"pkg>=",         // operator without version
		"pkg 1.0.0",     // version without operator
		"pkg=>1.0.0",    // unknown operator
		"../evil==1.0",  // path traversal in name
		"pkg==1.0 junk", // trailing garbage
	}

	for _, raw := range invalid {
		if _, err := Parse(raw); err == nil {
			t.Errorf("Parse(%q) = nil error, want INVALID_SPEC", raw)
		} else if !errors.Is(err, errors.ErrCodeInvalidSpec) {
			t.Errorf("Parse(%q) code = %v, want INVALID_SPEC", raw, errors.GetCode(err))
		}
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		spec      string
		version   string
		satisfied bool
	}{
		{"pkg", "0.0.1", true},
		{"pkg==1.0.0", "1.0.0", true},
		{"pkg==1.0.0", "1.0.1", false},
		{"pkg>=1.0.0", "1.0.0", true},
		{"pkg>=1.0.0", "2.3.4", true},
		{"pkg>=1.0.0", "0.9.9", false},
		{"pkg<=1.5.0", "1.5.0", true},
		{"pkg<=1.5.0", "1.5.1", false},
		{"pkg>1.0.0", "1.0.0", false},
		{"pkg>1.0.0", "1.0.1", true},
		{"pkg<2.0.0", "1.9.9", true},
		{"pkg<2.0.0", "2.0.0", false},

		// Pre-releases sort before their release.
		{"pkg>=1.0.0", "1.0.0-rc.1", false},
		{"pkg<1.0.0", "1.0.0-rc.1", true},

		// Compatible release: ~=1.4.2 pins major.minor.
		{"pkg~=1.4.2", "1.4.2", true},
		{"pkg~=1.4.2", "1.4.9", true},
		{"pkg~=1.4.2", "1.5.0", false},
		{"pkg~=1.4.2", "1.4.1", false},
		// ~=1.4 pins only the major.
		{"pkg~=1.4", "1.9.0", true},
		{"pkg~=1.4", "2.0.0", false},
		{"pkg~=1.4", "1.3.0", false},
	}

	for _, tt := range tests {
		t.Run(tt.spec+"/"+tt.version, func(t *testing.T) {
			s := MustParse(tt.spec)
			res := s.Matches(tt.version)
			if res.Satisfied != tt.satisfied {
				t.Errorf("Matches(%q) = %v, want %v", tt.version, res.Satisfied, tt.satisfied)
			}
			if res.Lexicographic {
				t.Errorf("Matches(%q) flagged lexicographic for semantic versions", tt.version)
			}
		})
	}
}

func TestMatchesLexicographicFallback(t *testing.T) {
	s := MustParse("pkg>=2021.04")
	res := s.Matches("2021.05.beta")
	if !res.Lexicographic {
		t.Error("expected lexicographic fallback for non-semver versions")
	}
	if !res.Satisfied {
		t.Error("lexicographic comparison should satisfy 2021.05.beta >= 2021.04")
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		cmp  int
		lex  bool
	}{
		{"1.0.0", "1.0.0", 0, false},
		{"1.2.0", "1.10.0", -1, false}, // numeric, not byte-wise
		{"2.0.0", "1.9.9", 1, false},
		{"1.0.0-alpha", "1.0.0", -1, false},
		{"1.0.0.0", "1.0.0.1", -1, true}, // four segments: lexicographic
	}

	for _, tt := range tests {
		cmp, lex := Compare(tt.a, tt.b)
		if cmp != tt.cmp || lex != tt.lex {
			t.Errorf("Compare(%q, %q) = (%d, %v), want (%d, %v)", tt.a, tt.b, cmp, lex, tt.cmp, tt.lex)
		}
	}
}

func TestMaxSatisfying(t *testing.T) {
	versions := []string{"0.9.0", "1.2.0", "1.10.0", "2.0.0-rc.1", "1.4.5"}

	got, ok := MaxSatisfying(versions, MustParse("pkg>=1.0.0"))
	if !ok || got != "2.0.0-rc.1" {
		t.Errorf("MaxSatisfying(>=1.0.0) = (%q, %v), want (2.0.0-rc.1, true)", got, ok)
	}

	got, ok = MaxSatisfying(versions, MustParse("pkg<2.0.0"))
	if !ok || got != "1.10.0" {
		t.Errorf("MaxSatisfying(<2.0.0) = (%q, %v), want (1.10.0, true)", got, ok)
	}

	if _, ok := MaxSatisfying(versions, MustParse("pkg>=3.0.0")); ok {
		t.Error("MaxSatisfying(>=3.0.0) = true, want false")
	}

	// Deterministic for any input ordering.
	reversed := []string{"1.4.5", "2.0.0-rc.1", "1.10.0", "1.2.0", "0.9.0"}
	a, _ := MaxSatisfying(versions, MustParse("pkg"))
	b, _ := MaxSatisfying(reversed, MustParse("pkg"))
	if a != b {
		t.Errorf("MaxSatisfying not deterministic: %q vs %q", a, b)
	}
}

func TestString(t *testing.T) {
	if s := MustParse("pkg>=1.0.0").String(); s != "pkg>=1.0.0" {
		t.Errorf("String() = %q", s)
	}
	if s := MustParse("pkg").String(); s != "pkg" {
		t.Errorf("String() = %q", s)
	}
}
