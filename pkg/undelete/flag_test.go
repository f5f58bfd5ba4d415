package undelete

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseHeaderFlag(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value string
		want  Flag
	}{
		{"true", FlagEnabled},
		{"True", FlagEnabled},
		{"yes", FlagEnabled},
		{"1", FlagEnabled},
		{"on", FlagEnabled},
		{"default", FlagInherit},
		{"DEFAULT", FlagInherit},
		{" Default ", FlagInherit},
		{"false", FlagDisabled},
		{"no", FlagDisabled},
		{"0", FlagDisabled},
		{"garbage", FlagDisabled},
		{"", FlagDisabled},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ParseHeaderFlag(tc.value), "value %q", tc.value)
	}
}

func TestFlagSysmetaRoundTrip(t *testing.T) {
	t.Parallel()

	for _, f := range []Flag{FlagEnabled, FlagDisabled, FlagInherit} {
		encoded := f.Sysmeta()
		assert.Equal(t, f, ParseSysmetaFlag(encoded, true), "flag %v", f)
	}
}

func TestParseSysmetaFlagAbsent(t *testing.T) {
	t.Parallel()

	assert.Equal(t, FlagInherit, ParseSysmetaFlag("", false))
	assert.Equal(t, FlagInherit, ParseSysmetaFlag("", true))
	assert.Equal(t, FlagEnabled, ParseSysmetaFlag("True", true))
	assert.Equal(t, FlagDisabled, ParseSysmetaFlag("False", true))
}
