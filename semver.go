package vercraft

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/blang/semver"
)

// Absent marks a major or minor segment that is not rendered. Versions
// calculated on feature branches carry only a patch number.
const Absent = -1

const releasePrefix = "release/"

var semVerFormat = regexp.MustCompile(`^(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*|x)$`)

// BumpKind selects which segment NextVersion increments.
type BumpKind int

const (
	Major BumpKind = iota
	Minor
	Patch
)

func (k BumpKind) String() string {
	switch k {
	case Major:
		return "MAJOR"
	case Minor:
		return "MINOR"
	case Patch:
		return "PATCH"
	default:
		return fmt.Sprintf("BumpKind(%d)", int(k))
	}
}

// ParseBumpKind parses "major", "minor" or "patch" in any case.
func ParseBumpKind(s string) (BumpKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "major":
		return Major, nil
	case "minor":
		return Minor, nil
	case "patch":
		return Patch, nil
	default:
		return 0, fmt.Errorf("%w: %q, must be one of MAJOR, MINOR or PATCH", ErrInvalidBumpKind, s)
	}
}

// SemVer is an immutable major.minor.patch triple with optional decoration.
// Prefix and Postfix never take part in ordering or equality.
type SemVer struct {
	Major   int
	Minor   int
	Patch   int
	Prefix  string
	Postfix string
}

// NewSemVer builds an undecorated version.
func NewSemVer(major, minor, patch int) SemVer {
	return SemVer{Major: major, Minor: minor, Patch: patch}
}

// IsValidSemVer reports whether s (without any release/ prefix) has the
// major.minor.patch shape used in release branch names. A literal "x" is
// accepted in place of the patch number.
func IsValidSemVer(s string) bool {
	return semVerFormat.MatchString(s)
}

// ParseSemVer parses "major.minor.patch", optionally preceded by a
// release branch prefix such as "release/". A patch of "x" parses as 0.
func ParseSemVer(text string) (SemVer, error) {
	s := stripReleasePrefix(strings.TrimSpace(text))
	if !IsValidSemVer(s) {
		return SemVer{}, fmt.Errorf("%w: %q must be in the format 'major.minor.patch'", ErrInvalidVersion, text)
	}
	if strings.HasSuffix(s, ".x") {
		s = strings.TrimSuffix(s, "x") + "0"
	}

	v, err := semver.Parse(s)
	if err != nil {
		return SemVer{}, fmt.Errorf("%w: %q: %v", ErrInvalidVersion, text, err)
	}

	return NewSemVer(int(v.Major), int(v.Minor), int(v.Patch)), nil
}

func stripReleasePrefix(s string) string {
	if i := strings.LastIndex(s, releasePrefix); i >= 0 {
		return s[i+len(releasePrefix):]
	}
	return s
}

func (v SemVer) numeric() semver.Version {
	segment := func(n int) uint64 {
		if n < 0 {
			return 0
		}
		return uint64(n)
	}
	return semver.Version{Major: segment(v.Major), Minor: segment(v.Minor), Patch: segment(v.Patch)}
}

// Compare orders by major, then minor, then patch and returns -1, 0 or 1.
func (v SemVer) Compare(other SemVer) int {
	return v.numeric().Compare(other.numeric())
}

// Equal reports numeric equality, consistent with Compare.
func (v SemVer) Equal(other SemVer) bool {
	return v.Compare(other) == 0
}

// NextVersion returns the undecorated version following v for the given bump.
func (v SemVer) NextVersion(kind BumpKind) SemVer {
	switch kind {
	case Major:
		return NewSemVer(v.Major+1, 0, 0)
	case Minor:
		return NewSemVer(v.Major, v.Minor+1, 0)
	default:
		return NewSemVer(v.Major, v.Minor, v.Patch+1)
	}
}

// IncrementPatch returns a copy of v with n added to the patch number.
func (v SemVer) IncrementPatch(n int) SemVer {
	v.Patch += n
	return v
}

func (v SemVer) WithPrefix(prefix string) SemVer {
	v.Prefix = prefix
	return v
}

func (v SemVer) WithPostfix(postfix string) SemVer {
	v.Postfix = postfix
	return v
}

// Core renders major.minor.patch without decoration. It is the form used
// for release tags.
func (v SemVer) Core() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// BranchName renders major.minor.x so that every patch of a release lands
// on the same branch.
func (v SemVer) BranchName() string {
	return fmt.Sprintf("%d.%d.x", v.Major, v.Minor)
}

func (v SemVer) String() string {
	var b strings.Builder
	if v.Prefix != "" {
		b.WriteString(v.Prefix)
		b.WriteByte('-')
	}
	if v.Major != Absent {
		b.WriteString(strconv.Itoa(v.Major))
		b.WriteByte('.')
	}
	if v.Minor != Absent {
		b.WriteString(strconv.Itoa(v.Minor))
		b.WriteByte('.')
	}
	b.WriteString(strconv.Itoa(v.Patch))
	if v.Postfix != "" {
		b.WriteByte('-')
		b.WriteString(v.Postfix)
	}
	return b.String()
}
