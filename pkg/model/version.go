package model

import "fmt"

// ToolVersion is a parsed rsync version. Ordering only considers
// Major, Minor and Patch; PreRelease is informational.
type ToolVersion struct {
	Major      int    `json:"major"`
	Minor      int    `json:"minor"`
	Patch      int    `json:"patch"`
	PreRelease bool   `json:"pre_release"`
	Raw        string `json:"raw"`
}

// Compare returns -1, 0 or 1.
func (v ToolVersion) Compare(o ToolVersion) int {
	switch {
	case v.Major != o.Major:
		return cmpInt(v.Major, o.Major)
	case v.Minor != o.Minor:
		return cmpInt(v.Minor, o.Minor)
	default:
		return cmpInt(v.Patch, o.Patch)
	}
}

// AtLeast reports whether v orders at or above major.minor.patch.
func (v ToolVersion) AtLeast(major, minor, patch int) bool {
	return v.Compare(ToolVersion{Major: major, Minor: minor, Patch: patch}) >= 0
}

func (v ToolVersion) String() string {
	if v.Raw != "" {
		return v.Raw
	}
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

func cmpInt(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
