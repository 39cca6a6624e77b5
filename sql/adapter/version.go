package adapter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Family is the database product behind a connection.
type Family string

const (
	FamilyMySQL      Family = "mysql"
	FamilyMariaDB    Family = "mariadb"
	FamilyPostgreSQL Family = "postgresql"
	FamilySQLite     Family = "sqlite"
)

// Version is a three part server version.
type Version struct {
	Major, Minor, Patch int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// AtLeast reports whether v >= min.
func (v Version) AtLeast(min Version) bool {
	if v.Major != min.Major {
		return v.Major > min.Major
	}
	if v.Minor != min.Minor {
		return v.Minor > min.Minor
	}
	return v.Patch >= min.Patch
}

var versionPattern = regexp.MustCompile(`^(\d+)\.(\d+)(?:\.(\d+))?`)

// ParseVersion extracts major.minor[.patch] from the start of s. Anything
// unparseable yields 0.0.0.
func ParseVersion(s string) Version {
	m := versionPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Version{}
	}
	var v Version
	v.Major, _ = strconv.Atoi(m[1])
	v.Minor, _ = strconv.Atoi(m[2])
	if m[3] != "" {
		v.Patch, _ = strconv.Atoi(m[3])
	}
	return v
}

// ServerInfo is the parsed answer of a version probe.
type ServerInfo struct {
	Family  Family
	Version Version
	Raw     string
}

// Minimum versions with usable native JSON columns.
var nativeJSONMinimum = map[Family]Version{
	FamilyMySQL:      {5, 7, 0},
	FamilyMariaDB:    {10, 2, 0},
	FamilyPostgreSQL: {12, 0, 0},
	FamilySQLite:     {3, 38, 0},
}

// MinimumJSONVersion returns the first version of family with native JSON
// support.
func MinimumJSONVersion(family Family) (Version, bool) {
	v, ok := nativeJSONMinimum[family]
	return v, ok
}

func supportsJSON(info ServerInfo) bool {
	min, ok := nativeJSONMinimum[info.Family]
	if !ok {
		return false
	}
	return info.Version.AtLeast(min)
}
