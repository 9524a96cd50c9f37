// Package spec parses package specifications and tests version compatibility.
//
// A specification is either a bare package name ("requests") or a name with
// a constraint ("requests>=2.1.0"). Supported operators are ==, >=, <=, >,
// < and ~= (compatible release).
//
// Version comparison is semantic (major.minor.patch, pre-release aware)
// whenever both versions parse as semver. When semantic parsing fails the
// comparison falls back to lexicographic ordering, and the fallback is
// flagged in results so callers can surface it.
package spec

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/depforge/depforge/pkg/errors"
)

// Op is a version constraint operator.
type Op string

// Constraint operators. OpAny matches every version and is used for bare
// package names.
const (
	OpAny    Op = ""
	OpEq     Op = "=="
	OpGTE    Op = ">="
	OpLTE    Op = "<="
	OpGT     Op = ">"
	OpLT     Op = "<"
	OpCompat Op = "~="
)

// Spec is an immutable parsed package specification.
type Spec struct {
	Name    string // Package name
	Op      Op     // Constraint operator (OpAny if unconstrained)
	Version string // Constraint version (empty if unconstrained)
	Raw     string // Original input string
}

// MatchResult reports whether a concrete version satisfies a constraint.
type MatchResult struct {
	Satisfied bool // Whether the version satisfies the constraint
	// Lexicographic is true when semantic parsing failed for either side
	// and byte-wise string comparison decided the result. Flagged so that
	// resolution output can explain surprising orderings.
	Lexicographic bool
}

// specRE matches "name" optionally followed by an operator and version.
// Two-character operators must come before their one-character prefixes.
var specRE = regexp.MustCompile(`^\s*([A-Za-z0-9][A-Za-z0-9._-]*)\s*(==|>=|<=|~=|>|<)?\s*(\S*)\s*$`)

// Parse parses a raw specification string into a Spec.
// Returns an INVALID_SPEC error for malformed input: empty strings,
// operators without versions, versions without operators, or invalid
// package names.
func Parse(raw string) (Spec, error) {
	m := specRE.FindStringSubmatch(raw)
	if m == nil {
		return Spec{}, errors.New(errors.ErrCodeInvalidSpec, "invalid package spec: %q", raw)
	}

	name, op, version := m[1], Op(m[2]), m[3]
	if err := errors.ValidatePackageName(name); err != nil {
		return Spec{}, errors.Wrap(errors.ErrCodeInvalidSpec, err, "invalid package spec: %q", raw)
	}
	if op == OpAny && version != "" {
		return Spec{}, errors.New(errors.ErrCodeInvalidSpec, "invalid package spec: %q: version without operator", raw)
	}
	if op != OpAny && version == "" {
		return Spec{}, errors.New(errors.ErrCodeInvalidSpec, "invalid package spec: %q: operator without version", raw)
	}

	return Spec{Name: name, Op: op, Version: version, Raw: raw}, nil
}

// MustParse parses raw and panics on error. Intended for tests and
// compile-time-constant specs.
func MustParse(raw string) Spec {
	s, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return s
}

// String returns the canonical spec string.
func (s Spec) String() string {
	if s.Op == OpAny {
		return s.Name
	}
	return fmt.Sprintf("%s%s%s", s.Name, s.Op, s.Version)
}

// Constrained reports whether the spec carries a version constraint.
func (s Spec) Constrained() bool { return s.Op != OpAny }

// Matches tests whether a concrete version satisfies the constraint.
// Unconstrained specs match every version.
func (s Spec) Matches(version string) MatchResult {
	if s.Op == OpAny {
		return MatchResult{Satisfied: true}
	}

	if s.Op == OpCompat {
		return s.matchesCompat(version)
	}

	cmp, lex := Compare(version, s.Version)
	var ok bool
	switch s.Op {
	case OpEq:
		ok = cmp == 0
	case OpGTE:
		ok = cmp >= 0
	case OpLTE:
		ok = cmp <= 0
	case OpGT:
		ok = cmp > 0
	case OpLT:
		ok = cmp < 0
	}
	return MatchResult{Satisfied: ok, Lexicographic: lex}
}

// matchesCompat implements the ~= compatible-release operator: the version
// must be >= the constraint and share its leading release segments. With a
// patch segment present ("~=1.4.2") major.minor must match; otherwise
// ("~=1.4") only the major must match.
func (s Spec) matchesCompat(version string) MatchResult {
	cv, err1 := semver.NewVersion(s.Version)
	vv, err2 := semver.NewVersion(version)
	if err1 != nil || err2 != nil {
		// No meaningful compatible-release semantics without semantic
		// versions; fall back to >= lexicographically.
		ok := strings.Compare(version, s.Version) >= 0
		return MatchResult{Satisfied: ok, Lexicographic: true}
	}

	if vv.Compare(cv) < 0 {
		return MatchResult{Satisfied: false}
	}
	if vv.Major() != cv.Major() {
		return MatchResult{Satisfied: false}
	}
	if strings.Count(s.Version, ".") >= 2 && vv.Minor() != cv.Minor() {
		return MatchResult{Satisfied: false}
	}
	return MatchResult{Satisfied: true}
}

// Compare is a three-way version comparison. It returns -1, 0 or 1 as a is
// less than, equal to or greater than b. The second return value is true
// when either side failed semantic parsing and lexicographic comparison
// was used instead.
func Compare(a, b string) (int, bool) {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA != nil || errB != nil {
		return strings.Compare(a, b), true
	}
	return va.Compare(vb), false
}

// MaxSatisfying returns the greatest version from versions that satisfies
// the spec's constraint, implementing the greatest-version-wins policy.
// The second return value is false when no version satisfies. The result
// is deterministic for any input ordering.
func MaxSatisfying(versions []string, s Spec) (string, bool) {
	var best string
	found := false
	for _, v := range versions {
		if !s.Matches(v).Satisfied {
			continue
		}
		if !found {
			best, found = v, true
			continue
		}
		if cmp, _ := Compare(v, best); cmp > 0 {
			best = v
		}
	}
	return best, found
}
