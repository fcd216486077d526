package cursor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	c := Cursor{TokenID: "hello_world", TokenPriority: 4}
	decoded, err := Decode(Encode(c))
	require.NoError(t, err)
	assert.Equal(t, c, decoded)
}

func TestDecode_Invalid(t *testing.T) {
	t.Parallel()

	_, err := Decode("not base64 at all!!")
	assert.Error(t, err)

	_, err = Decode("aGVsbG8=") // valid base64, not JSON
	assert.Error(t, err)
}
