package transport_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgectl/gitcore/transport"
)

func TestParseV1SplitsRefFromCapabilityTail(t *testing.T) {
	hash := "1111111111111111111111111111111111111111"
	line := []byte(hash + " refs/heads/main\x00multi_ack thin-pack side-band-64k symref=HEAD:refs/heads/main")

	caps, ref, err := transport.ParseV1(line)
	require.NoError(t, err)
	assert.Equal(t, hash+" refs/heads/main", string(ref))
	assert.True(t, caps.Supports("multi_ack"))
	assert.True(t, caps.Supports("thin-pack"))
	assert.True(t, caps.Supports("side-band-64k"))
	assert.Equal(t, []string{"HEAD:refs/heads/main"}, caps.Values("symref"))
}

func TestParseV1NoNulIsError(t *testing.T) {
	_, _, err := transport.ParseV1([]byte("no nul byte here"))
	assert.ErrorIs(t, err, transport.ErrNoService)
}

func TestParseV2LineAccumulatesValues(t *testing.T) {
	caps := transport.NewCapabilities()
	transport.ParseV2Line(caps, []byte("agent=gitcore/1.0\n"))
	transport.ParseV2Line(caps, []byte("ls-refs\n"))
	transport.ParseV2Line(caps, []byte("fetch=shallow wait-for-done\n"))

	assert.True(t, caps.Supports("ls-refs"))
	assert.Nil(t, caps.Values("ls-refs"))
	assert.Equal(t, []string{"gitcore/1.0"}, caps.Values("agent"))
	assert.Equal(t, []string{"shallow", "wait-for-done"}, caps.Values("fetch"))
	assert.Equal(t, []string{"agent", "ls-refs", "fetch"}, caps.Names())
}

func TestCapabilitiesEncodeRoundTrips(t *testing.T) {
	caps := transport.NewCapabilities()
	transport.ParseV2Line(caps, []byte("ls-refs\n"))
	transport.ParseV2Line(caps, []byte("fetch=shallow\n"))

	encoded := caps.Encode()
	assert.Equal(t, "ls-refs fetch=shallow", encoded)
}
