package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrueValue(t *testing.T) {
	t.Parallel()

	truthy := []string{"true", "True", "TRUE", "1", "yes", "Yes", "on", "ON", "t", "y", " true "}
	for _, v := range truthy {
		assert.True(t, TrueValue(v), "expected %q to be truthy", v)
	}

	falsy := []string{"", "false", "False", "0", "no", "off", "default", "maybe", "2"}
	for _, v := range falsy {
		assert.False(t, TrueValue(v), "expected %q to be falsy", v)
	}
}
