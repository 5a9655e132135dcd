package sdp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const offerWithPCMUAndOpus = "v=0\r\n" +
	"o=- 4611731400430051336 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 0 111\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=rtpmap:0 PCMU/8000\r\n" +
	"a=rtpmap:111 opus/48000/2\r\n"

// The answer drops payload 0 but still advertises PCMU under payload 96.
const answerMissingPCMUPayload = "v=0\r\n" +
	"o=- 99 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 111 96\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=rtpmap:111 opus/48000/2\r\n" +
	"a=rtpmap:96 PCMU/8000\r\n"

func TestReconcileAnswerCodecsRestoresSupportedPayload(t *testing.T) {
	reconciled := ReconcileAnswerCodecs(offerWithPCMUAndOpus, answerMissingPCMUPayload)

	mLine := ""
	for _, line := range strings.Split(reconciled, "\r\n") {
		if strings.HasPrefix(line, "m=audio") {
			mLine = line
		}
	}
	require.NotEmpty(t, mLine)
	require.Contains(t, strings.Fields(mLine), "0", "payload 0 should be restored on the m=audio line")
	require.Contains(t, reconciled, "a=rtpmap:0 PCMU/8000")
}

func TestReconcileAnswerCodecsRestoresInOfferOrder(t *testing.T) {
	// Both G.711 payloads are missing; they must come back in the
	// order the offer listed them, on every run.
	offer := "v=0\r\n" +
		"o=- 1 2 IN IP4 127.0.0.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"m=audio 9 UDP/TLS/RTP/SAVPF 0 8 111\r\n" +
		"a=rtpmap:0 PCMU/8000\r\n" +
		"a=rtpmap:8 PCMA/8000\r\n" +
		"a=rtpmap:111 opus/48000/2\r\n"
	answer := "v=0\r\n" +
		"o=- 99 2 IN IP4 127.0.0.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"m=audio 9 UDP/TLS/RTP/SAVPF 111 96 97\r\n" +
		"a=rtpmap:111 opus/48000/2\r\n" +
		"a=rtpmap:96 PCMU/8000\r\n" +
		"a=rtpmap:97 PCMA/8000\r\n"

	first := ReconcileAnswerCodecs(offer, answer)
	for i := 0; i < 100; i++ {
		require.Equal(t, first, ReconcileAnswerCodecs(offer, answer))
	}

	var mLine string
	for _, line := range strings.Split(first, "\r\n") {
		if strings.HasPrefix(line, "m=audio") {
			mLine = line
		}
	}
	require.Equal(t, "m=audio 9 UDP/TLS/RTP/SAVPF 111 96 97 0 8", mLine)
	require.Less(t,
		strings.Index(first, "a=rtpmap:0 PCMU/8000"),
		strings.Index(first, "a=rtpmap:8 PCMA/8000"))
	require.Contains(t, first, "a=rtpmap:0 PCMU/8000")
	require.Contains(t, first, "a=rtpmap:8 PCMA/8000")
}

func TestReconcileAnswerCodecsIdempotent(t *testing.T) {
	once := ReconcileAnswerCodecs(offerWithPCMUAndOpus, answerMissingPCMUPayload)
	twice := ReconcileAnswerCodecs(offerWithPCMUAndOpus, once)
	require.Equal(t, once, twice)
}

func TestReconcileAnswerCodecsUnsupportedCodecLeftOut(t *testing.T) {
	// The answer never mentions PCMU, so payload 0 must not be added.
	answer := "v=0\r\n" +
		"o=- 99 2 IN IP4 127.0.0.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
		"a=rtpmap:111 opus/48000/2\r\n"

	require.Equal(t, answer, ReconcileAnswerCodecs(offerWithPCMUAndOpus, answer))
}

func TestReconcileAnswerCodecsNoAudioInOffer(t *testing.T) {
	offer := "v=0\r\no=- 1 2 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"
	require.Equal(t, answerMissingPCMUPayload, ReconcileAnswerCodecs(offer, answerMissingPCMUPayload))
}

func TestEnsureTrickleCapabilityInsertsAfterOrigin(t *testing.T) {
	out := EnsureTrickleCapability(offerWithPCMUAndOpus)
	require.True(t, HasTrickleCapability(out))

	lines := strings.Split(out, "\r\n")
	originIdx := -1
	for i, line := range lines {
		if strings.HasPrefix(line, "o=") {
			originIdx = i
		}
	}
	require.NotEqual(t, -1, originIdx)
	require.Equal(t, "a=ice-options:trickle", lines[originIdx+1])
}

func TestEnsureTrickleCapabilityIdempotent(t *testing.T) {
	once := EnsureTrickleCapability(offerWithPCMUAndOpus)
	twice := EnsureTrickleCapability(once)
	require.Equal(t, once, twice)
	require.Equal(t, 1, strings.Count(twice, "a=ice-options:"))
}

func TestEnsureTrickleCapabilityReplacesOtherValue(t *testing.T) {
	in := "v=0\r\n" +
		"o=- 1 2 IN IP4 127.0.0.1\r\n" +
		"s=-\r\n" +
		"a=ice-options:renomination\r\n" +
		"t=0 0\r\n"
	out := EnsureTrickleCapability(in)
	require.Contains(t, out, "a=ice-options:trickle")
	require.NotContains(t, out, "renomination")
	require.Equal(t, 1, strings.Count(out, "a=ice-options:"))
}

func TestEnsureTrickleCapabilityNoOrigin(t *testing.T) {
	in := "v=0\r\ns=-\r\nt=0 0\r\n"
	require.Equal(t, in, EnsureTrickleCapability(in))
}

func TestExtractICEParameters(t *testing.T) {
	in := "v=0\r\n" +
		"o=- 1 2 IN IP4 127.0.0.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
		"c=IN IP4 0.0.0.0\r\n" +
		"a=ice-ufrag:EsAw\r\n" +
		"a=ice-pwd:P2uYro0UCOQ4zxjKXaWCBui1\r\n" +
		"a=rtpmap:111 opus/48000/2\r\n"

	params, ok := ExtractICEParameters(in)
	require.True(t, ok)
	require.Equal(t, "EsAw", params.UsernameFragment)
	require.Equal(t, "P2uYro0UCOQ4zxjKXaWCBui1", params.Password)
}

func TestExtractICEParametersAbsent(t *testing.T) {
	_, ok := ExtractICEParameters("not an sdp")
	require.False(t, ok)
}
