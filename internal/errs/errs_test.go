package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKinds(t *testing.T) {
	cause := errors.New("dial tcp: refused")

	err := Connection("submit", cause)
	assert.ErrorIs(t, err, ErrConnection)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrWrite)

	err = Write("insert", cause)
	assert.ErrorIs(t, err, ErrWrite)
	assert.ErrorIs(t, err, cause)

	err = Malformed("field %q is empty", "type")
	assert.ErrorIs(t, err, ErrMalformedInput)
	assert.Contains(t, err.Error(), `field "type" is empty`)
}
