package sdp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeCandidate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "attribute line loses a= prefix",
			in:   "a=candidate:1 1 udp 2122260223 10.0.0.1 54400 typ host",
			want: "candidate:1 1 udp 2122260223 10.0.0.1 54400 typ host",
		},
		{
			name: "bare candidate gains prefix",
			in:   "1 1 udp 2122260223 10.0.0.1 54400 typ host",
			want: "candidate:1 1 udp 2122260223 10.0.0.1 54400 typ host",
		},
		{
			name: "canonical form unchanged",
			in:   "candidate:1 1 udp 2122260223 10.0.0.1 54400 typ host",
			want: "candidate:1 1 udp 2122260223 10.0.0.1 54400 typ host",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, NormalizeCandidate(tt.in))
		})
	}
}

func TestEnhanceCandidate(t *testing.T) {
	params := ICEParameters{UsernameFragment: "EsAw", Password: "secret"}
	base := "candidate:1 1 udp 2122260223 10.0.0.1 54400 typ host"

	enhanced := EnhanceCandidate(base, params)
	require.Equal(t, base+" ufrag EsAw", enhanced)

	// Already stamped candidates are left alone.
	require.Equal(t, enhanced, EnhanceCandidate(enhanced, params))

	// Without a ufrag there is nothing to attach.
	require.Equal(t, base, EnhanceCandidate(base, ICEParameters{}))
}
