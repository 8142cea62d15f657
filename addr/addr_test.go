package addr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	cases := []string{
		"tcp://example.com:8551",
		"tcp+tls://example.com:8551",
		"unix:///tmp/darkfi.sock",
		"tor://abc123.onion:8551",
		"socks5://10.0.0.1:9050",
	}

	for _, s := range cases {
		t.Run(s, func(t *testing.T) {
			a, err := Parse(s)
			require.NoError(t, err)
			require.Equal(t, s, a.String())
		})
	}
}

func TestParseRejectsUnknownScheme(t *testing.T) {
	_, err := Parse("ftp://example.com:21")
	require.Error(t, err)
}

func TestSchemeClassUniqueness(t *testing.T) {
	require.Equal(t, ClassTCP, SchemeTCP.Class())
	require.Equal(t, ClassTCP, SchemeTCPTLS.Class())
	require.True(t, SchemeTCPTLS.TLS())
	require.False(t, SchemeTCP.TLS())
	require.Equal(t, ClassUnixSocket, SchemeUnix.Class())
	require.Equal(t, ClassTor, SchemeTor.Class())
	require.Equal(t, ClassProxied, SchemeSocks5.Class())
}

func TestEqual(t *testing.T) {
	a, err := New(SchemeTCP, "10.0.0.1", 8551)
	require.NoError(t, err)
	b, err := New(SchemeTCP, "10.0.0.1", 8551)
	require.NoError(t, err)
	require.True(t, a.Equal(b))

	c, err := New(SchemeTCP, "10.0.0.2", 8551)
	require.NoError(t, err)
	require.False(t, a.Equal(c))
}

func TestNewRejectsMissingPort(t *testing.T) {
	_, err := New(SchemeTCP, "10.0.0.1", 0)
	require.Error(t, err)
}
