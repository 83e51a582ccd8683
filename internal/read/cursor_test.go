package read_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/redgrouse/backend/internal/read"
)

func TestCursorRoundTrip(t *testing.T) {
	c := read.Cursor{SortValue: "2024-01-01", ID: 42}

	token, err := read.EncodeCursor(c)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	decoded, err := read.DecodeCursor(token)
	require.NoError(t, err)
	require.EqualValues(t, c.ID, decoded.ID)
	require.Equal(t, c.SortValue, decoded.SortValue)
}

func TestDecodeEmptyCursorIsNil(t *testing.T) {
	decoded, err := read.DecodeCursor("")
	require.NoError(t, err)
	require.Nil(t, decoded)
}

func TestDecodeMalformedCursorErrors(t *testing.T) {
	_, err := read.DecodeCursor("not-valid-base64!!")
	require.Error(t, err)
}
