package clearance

import (
	"fmt"
	"strings"
)

// #region level
// Level is an ordered security clearance. Higher values see more.
type Level int

const (
	General Level = iota
	Restricted
	Confidential
	HighlyConfidential
)

// Unknown marks a clearance that did not parse to any known level.
// A query carrying it holds no usable clearance at all.
const Unknown Level = -1

// #endregion level

// #region string
var levelNames = map[Level]string{
	General:            "GENERAL",
	Restricted:         "RESTRICTED",
	Confidential:       "CONFIDENTIAL",
	HighlyConfidential: "HIGHLY_CONFIDENTIAL",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// #endregion string

// #region parse
// Parse maps a level name to its Level. Case-insensitive.
func Parse(s string) (Level, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for lv, name := range levelNames {
		if name == upper {
			return lv, nil
		}
	}
	return Unknown, fmt.Errorf("unknown clearance level %q", s)
}

// #endregion parse

// #region predicates
// Valid reports whether l is a known clearance level.
func (l Level) Valid() bool {
	_, ok := levelNames[l]
	return ok
}

// Allows reports whether a document at level doc is visible to a user at l.
func (l Level) Allows(doc Level) bool {
	return l.Valid() && doc.Valid() && doc <= l
}

// #endregion predicates
