package sdp

import (
	"log/slog"
	"strings"
)

const (
	candidatePrefix     = "candidate:"
	candidateAttrPrefix = "a=candidate:"
)

// NormalizeCandidate canonicalizes an ICE candidate string to the
// "candidate:..." form the channel expects. Remote peers variously send
// bare candidates or full attribute lines.
func NormalizeCandidate(candidate string) string {
	switch {
	case strings.HasPrefix(candidate, candidateAttrPrefix):
		// Strip only "a=", keeping the "candidate:" prefix.
		return candidate[2:]
	case !strings.HasPrefix(candidate, candidatePrefix):
		return candidatePrefix + candidate
	default:
		return candidate
	}
}

// EnhanceCandidate attaches session ICE credentials to a candidate that
// lacks them. Candidates gathered outside the offer/answer exchange
// (late or trickled) arrive without a ufrag and would otherwise be
// rejected by the remote agent.
func EnhanceCandidate(candidate string, params ICEParameters) string {
	if params.UsernameFragment == "" {
		return candidate
	}
	if strings.Contains(candidate, " ufrag ") {
		return candidate
	}
	enhanced := candidate + " ufrag " + params.UsernameFragment
	slog.Debug("[SDP] Attached ufrag to candidate", "ufrag", params.UsernameFragment)
	return enhanced
}
