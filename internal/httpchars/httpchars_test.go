package httpchars

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsToken(t *testing.T) {
	require.True(t, IsToken("Content-Length"))
	require.True(t, IsToken("x-custom_header.v2"))
	require.True(t, IsToken("!#$%&'*+-.^_`|~"))
	require.False(t, IsToken(""))
	require.False(t, IsToken("Content Length"))
	require.False(t, IsToken("Content:Length"))
	require.False(t, IsToken("Content\x00Length"))
	require.False(t, IsToken("héader"))
}
