package migrationfile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/go-version"
)

// Version is a three component migration version (major.minor.micro).
type Version struct {
	*version.Version
}

// NewVersion parses v. Missing trailing components are zero; more than
// three components or a pre-release tag are rejected.
func NewVersion(v string) (*Version, error) {
	parsed, err := version.NewVersion(v)
	if err != nil {
		return nil, fmt.Errorf("invalid migration version %q: %w", v, err)
	}
	if parsed.Prerelease() != "" || parsed.Metadata() != "" {
		return nil, fmt.Errorf("invalid migration version %q: expected major.minor.micro", v)
	}
	if len(strings.Split(parsed.Original(), ".")) > 3 {
		return nil, fmt.Errorf("invalid migration version %q: more than three components", v)
	}
	return &Version{parsed}, nil
}

// MustVersion is NewVersion for constants.
func MustVersion(v string) *Version {
	out, err := NewVersion(v)
	if err != nil {
		panic(err)
	}
	return out
}

func fromSegments(major, minor, micro int) *Version {
	return MustVersion(fmt.Sprintf("%d.%d.%d", major, minor, micro))
}

func (v *Version) parts() (int, int, int) {
	s := v.Segments()
	return s[0], s[1], s[2]
}

// AddMicro returns v with n added to the micro component.
func (v *Version) AddMicro(n int) *Version {
	major, minor, micro := v.parts()
	return fromSegments(major, minor, micro+n)
}

// NextMinor returns the next minor version with micro reset to zero.
func (v *Version) NextMinor() *Version {
	major, minor, _ := v.parts()
	return fromSegments(major, minor+1, 0)
}

// String renders all three components, so 1.2 prints as 1.2.0.
func (v *Version) String() string {
	major, minor, micro := v.parts()
	return strings.Join([]string{strconv.Itoa(major), strconv.Itoa(minor), strconv.Itoa(micro)}, ".")
}

// Max returns the greatest of vs, or nil when vs is empty.
func Max(vs ...*Version) *Version {
	var out *Version
	for _, v := range vs {
		if v == nil {
			continue
		}
		if out == nil || v.GreaterThan(out.Version) {
			out = v
		}
	}
	return out
}
