// Package sdp repairs and annotates session descriptions exchanged
// during call negotiation. All functions are pure: on any parsing
// anomaly they log and return their input unchanged rather than fail.
package sdp

import (
	"log/slog"
	"regexp"
	"strings"

	pionsdp "github.com/pion/sdp/v3"
)

const (
	audioMediaPrefix = "m=audio"
	attributePrefix  = "a="
	originPrefix     = "o="
	trickleAttribute = "a=ice-options:trickle"
	iceOptionsPrefix = "a=ice-options:"

	// minimumMLineParts is "m=audio <port> <proto>" before payload types
	minimumMLineParts = 3
)

var (
	rtpmapPattern    = regexp.MustCompile(`^a=rtpmap:(\d+)\s+(.+)$`)
	codecNamePattern = regexp.MustCompile(`^a=rtpmap:(\d+)\s+([\w-]+)/.*$`)
)

// ReconcileAnswerCodecs adds audio codecs to an answer SDP that the
// offer advertised but the answer omitted, provided the answer already
// supports the same codec name under another payload type. The media
// engine sometimes strips such payloads even though it can decode them;
// restoring the payload keeps the remote end free to use either.
func ReconcileAnswerCodecs(offerSDP, answerSDP string) string {
	offerCodecs := extractAudioCodecs(offerSDP)
	if len(offerCodecs) == 0 {
		slog.Warn("[SDP] No audio codecs found in offer, returning answer unchanged")
		return answerSDP
	}

	answerCodecs := extractAudioCodecs(answerSDP)

	answerPayloads := make(map[string]bool)
	supportedNames := make(map[string]bool)
	for _, c := range answerCodecs {
		answerPayloads[c.payload] = true
		if name := parseCodecName(c.rtpmap); name != "" {
			supportedNames[strings.ToLower(name)] = true
		}
	}

	// Offer payloads missing from the answer whose codec name the
	// answer already supports, in offer line order.
	var missing []codecEntry
	for _, c := range offerCodecs {
		if answerPayloads[c.payload] {
			continue
		}
		name := strings.ToLower(parseCodecName(c.rtpmap))
		if name == "" || !supportedNames[name] {
			continue
		}
		missing = append(missing, c)
	}
	if len(missing) == 0 {
		return answerSDP
	}

	lines := splitLines(answerSDP)
	mLineIndex, attrIndex := findAudioIndices(lines)
	if mLineIndex == -1 || attrIndex == -1 {
		slog.Warn("[SDP] No m=audio line or insertion point in answer, returning unchanged")
		return answerSDP
	}

	mLineParts := strings.Split(lines[mLineIndex], " ")
	if len(mLineParts) < minimumMLineParts {
		slog.Warn("[SDP] Unexpected m=audio line format", "line", lines[mLineIndex])
		return answerSDP
	}

	existing := make(map[string]bool)
	for _, p := range mLineParts[minimumMLineParts:] {
		existing[p] = true
	}
	var restored []string
	for _, c := range missing {
		restored = append(restored, c.payload)
		if !existing[c.payload] {
			mLineParts = append(mLineParts, c.payload)
		}
	}
	lines[mLineIndex] = strings.Join(mLineParts, " ")

	inserted := make([]string, 0, len(lines)+len(missing))
	if attrIndex > len(lines) {
		attrIndex = len(lines)
	}
	inserted = append(inserted, lines[:attrIndex]...)
	for _, c := range missing {
		inserted = append(inserted, c.rtpmap)
	}
	inserted = append(inserted, lines[attrIndex:]...)

	slog.Debug("[SDP] Restored answer codecs", "payloads", strings.Join(restored, ","))
	return strings.Join(inserted, "\r\n")
}

// EnsureTrickleCapability declares trickle ICE at session level. A
// differing ice-options value is replaced; an existing trickle
// declaration is left alone; without an origin line the SDP is
// returned unchanged.
func EnsureTrickleCapability(s string) string {
	if strings.Contains(s, trickleAttribute) {
		return s
	}

	lines := splitLines(s)

	for i, line := range lines {
		if strings.HasPrefix(line, iceOptionsPrefix) {
			lines[i] = trickleAttribute
			return strings.Join(lines, "\r\n")
		}
	}

	for i, line := range lines {
		if strings.HasPrefix(line, originPrefix) {
			out := make([]string, 0, len(lines)+1)
			out = append(out, lines[:i+1]...)
			out = append(out, trickleAttribute)
			out = append(out, lines[i+1:]...)
			return strings.Join(out, "\r\n")
		}
	}

	slog.Warn("[SDP] No origin line found, returning SDP unchanged")
	return s
}

// HasTrickleCapability reports whether the SDP advertises trickle ICE.
func HasTrickleCapability(s string) bool {
	return strings.Contains(s, trickleAttribute)
}

// findAudioIndices locates the m=audio line and the index where new
// attribute lines should be inserted. Returns (-1, -1) when no audio
// section exists.
func findAudioIndices(lines []string) (int, int) {
	mLineIndex := -1
	attrIndex := -1

	for i, line := range lines {
		if strings.HasPrefix(line, audioMediaPrefix) {
			mLineIndex = i
			attrIndex = -1
			continue
		}
		if mLineIndex == -1 {
			continue
		}
		if strings.HasPrefix(line, attributePrefix) {
			if attrIndex == -1 {
				attrIndex = i
			}
		} else if strings.HasPrefix(line, "m=") {
			if attrIndex == -1 {
				attrIndex = i
			}
			break
		}
	}

	// Audio section runs to the end of the SDP with no attributes.
	if mLineIndex != -1 && attrIndex == -1 {
		attrIndex = len(lines)
	}
	return mLineIndex, attrIndex
}

// codecEntry pairs a payload type with its a=rtpmap line.
type codecEntry struct {
	payload string
	rtpmap  string
}

// extractAudioCodecs collects the a=rtpmap lines of the audio section
// in the order they appear.
func extractAudioCodecs(s string) []codecEntry {
	var codecs []codecEntry
	inAudio := false

	for _, line := range splitLines(s) {
		if strings.HasPrefix(line, audioMediaPrefix) {
			inAudio = true
		} else if strings.HasPrefix(line, "m=") {
			if inAudio {
				break
			}
		}
		if inAudio && strings.HasPrefix(line, "a=rtpmap:") {
			if m := rtpmapPattern.FindStringSubmatch(line); m != nil {
				codecs = append(codecs, codecEntry{payload: m[1], rtpmap: line})
			}
		}
	}
	return codecs
}

// parseCodecName extracts the encoding name from an a=rtpmap line,
// e.g. "a=rtpmap:102 opus/48000/2" -> "opus".
func parseCodecName(rtpmapLine string) string {
	if m := codecNamePattern.FindStringSubmatch(rtpmapLine); m != nil {
		return m[2]
	}
	return ""
}

func splitLines(s string) []string {
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimSuffix(lines[i], "\r")
	}
	return lines
}

// ICEParameters are the session-level ICE credentials of an SDP.
type ICEParameters struct {
	UsernameFragment string
	Password         string
}

// ExtractICEParameters pulls ice-ufrag/ice-pwd from the session or the
// first media section that declares them.
func ExtractICEParameters(s string) (ICEParameters, bool) {
	var desc pionsdp.SessionDescription
	if err := desc.Unmarshal([]byte(s)); err != nil {
		slog.Warn("[SDP] Failed to parse SDP for ICE parameters", "error", err)
		return ICEParameters{}, false
	}

	var params ICEParameters
	scan := func(attrs []pionsdp.Attribute) {
		for _, a := range attrs {
			switch a.Key {
			case "ice-ufrag":
				if params.UsernameFragment == "" {
					params.UsernameFragment = a.Value
				}
			case "ice-pwd":
				if params.Password == "" {
					params.Password = a.Value
				}
			}
		}
	}
	scan(desc.Attributes)
	for _, m := range desc.MediaDescriptions {
		scan(m.Attributes)
	}

	if params.UsernameFragment == "" && params.Password == "" {
		return ICEParameters{}, false
	}
	return params, true
}
