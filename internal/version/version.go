// Package version parses dotted version strings such as "v2.10.3" into a
// (major, minor, patch) triple.
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrInvalidSegment is matched by errors.Is for non-numeric segments.
	ErrInvalidSegment = errors.New("invalid version segment")
	// ErrNegativeSegment is matched by errors.Is for segments below zero.
	ErrNegativeSegment = errors.New("negative version segment")
	// ErrSegmentOutOfRange is matched by errors.Is for numeric segments
	// that overflow int.
	ErrSegmentOutOfRange = errors.New("version segment out of range")
)

// Version is a parsed major.minor.patch triple.
type Version struct {
	Major int
	Minor int
	Patch int
}

// Error reports the offending segment and the trimmed input it came from.
type Error struct {
	Kind    error
	Segment string
	Input   string
}

func (e *Error) Error() string {
	switch {
	case errors.Is(e.Kind, ErrNegativeSegment):
		return fmt.Sprintf("Negative version segment '%s' in '%s'", e.Segment, e.Input)
	case errors.Is(e.Kind, ErrSegmentOutOfRange):
		return fmt.Sprintf("Version segment '%s' out of range in '%s'", e.Segment, e.Input)
	}
	return fmt.Sprintf("Invalid version segment '%s' in '%s'", e.Segment, e.Input)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// Parse parses an optional version string. A nil pointer, an empty string or
// whitespace yields the zero version. A leading "v" or "V" is ignored, empty
// segments count as zero and missing trailing segments default to zero.
// Segments beyond the third are validated but not exposed.
func Parse(s *string) (Version, error) {
	if s == nil {
		return Version{}, nil
	}
	return ParseString(*s)
}

// ParseString is Parse for a non-optional string.
func ParseString(s string) (Version, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Version{}, nil
	}

	body := trimmed
	if body[0] == 'v' || body[0] == 'V' {
		body = body[1:]
	}

	parts := strings.Split(body, ".")
	nums := make([]int, 0, max(len(parts), 3))
	for _, p := range parts {
		if p == "" {
			nums = append(nums, 0)
			continue
		}
		n, err := strconv.Atoi(p)
		if errors.Is(err, strconv.ErrRange) {
			kind := ErrSegmentOutOfRange
			if strings.HasPrefix(p, "-") {
				kind = ErrNegativeSegment
			}
			return Version{}, &Error{Kind: kind, Segment: p, Input: trimmed}
		}
		if err != nil {
			return Version{}, &Error{Kind: ErrInvalidSegment, Segment: p, Input: trimmed}
		}
		if n < 0 {
			return Version{}, &Error{Kind: ErrNegativeSegment, Segment: p, Input: trimmed}
		}
		nums = append(nums, n)
	}
	for len(nums) < 3 {
		nums = append(nums, 0)
	}

	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// MustParse is ParseString that panics on error. Intended for constants.
func MustParse(s string) Version {
	v, err := ParseString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Tuple returns the version as its three components.
func (v Version) Tuple() (int, int, int) {
	return v.Major, v.Minor, v.Patch
}

// String formats the version as "major.minor.patch".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0 or 1 when v is lower, equal or higher than o.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		return cmpInt(v.Major, o.Major)
	case v.Minor != o.Minor:
		return cmpInt(v.Minor, o.Minor)
	default:
		return cmpInt(v.Patch, o.Patch)
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
