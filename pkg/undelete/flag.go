package undelete

import (
	"strings"

	"github.com/trashgate/trashgate/pkg/utils"
)

// Flag is the tri-state undelete policy value. The string encoding lives only
// at the sysmeta translation boundary; everything else works with Flag.
type Flag int

const (
	// FlagInherit defers to the enclosing scope, or the process default.
	FlagInherit Flag = iota
	FlagEnabled
	FlagDisabled
)

func (f Flag) String() string {
	switch f {
	case FlagEnabled:
		return "enabled"
	case FlagDisabled:
		return "disabled"
	default:
		return "inherit"
	}
}

// Sysmeta returns the persisted encoding: "True", "False", or the empty
// string for inherit.
func (f Flag) Sysmeta() string {
	switch f {
	case FlagEnabled:
		return "True"
	case FlagDisabled:
		return "False"
	default:
		return ""
	}
}

// ParseHeaderFlag decodes a client control header value. Truthy literals
// enable, the literal "default" resets to inherit, anything else disables.
func ParseHeaderFlag(v string) Flag {
	if utils.TrueValue(v) {
		return FlagEnabled
	}
	if strings.EqualFold(strings.TrimSpace(v), "default") {
		return FlagInherit
	}
	return FlagDisabled
}

// ParseSysmetaFlag decodes a persisted metadata value. An absent or empty
// value reads as inherit.
func ParseSysmetaFlag(v string, present bool) Flag {
	if !present || v == "" {
		return FlagInherit
	}
	if utils.TrueValue(v) {
		return FlagEnabled
	}
	return FlagDisabled
}
