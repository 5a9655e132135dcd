// Package signal defines the JSON-RPC message surface of the voice
// signaling protocol and the channel abstraction used to carry it.
package signal

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Method identifies the protocol operation carried by an envelope.
type Method string

// Protocol methods, matching the Verto dialect spoken by the backend.
const (
	MethodLogin        Method = "login"
	MethodInvite       Method = "telnyx_rtc.invite"
	MethodAnswer       Method = "telnyx_rtc.answer"
	MethodBye          Method = "telnyx_rtc.bye"
	MethodModify       Method = "telnyx_rtc.modify"
	MethodMedia        Method = "telnyx_rtc.media"
	MethodInfo         Method = "telnyx_rtc.info"
	MethodRinging      Method = "telnyx_rtc.ringing"
	MethodAttach       Method = "telnyx_rtc.attach"
	MethodGatewayState Method = "telnyx_rtc.gatewayState"
	MethodClientReady  Method = "telnyx_rtc.clientReady"
	MethodPing         Method = "telnyx_rtc.ping"
)

// Envelope is the framing of every message on the channel.
type Envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Method  Method          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RemoteError    `json:"error,omitempty"`
}

// RemoteError is a server-reported error payload.
type RemoteError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	return e.Message
}

// NewRequest builds an outbound envelope with a fresh message id.
// Marshalling params here keeps Send free of partially built messages.
func NewRequest(method Method, params any) (Envelope, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		JSONRPC: "2.0",
		ID:      uuid.New().String(),
		Method:  method,
		Params:  raw,
	}, nil
}

// CustomHeader is a name/value pair attached to invites and answers.
type CustomHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// DialogParams carries per-call correlation data inside call messages.
type DialogParams struct {
	CallID            uuid.UUID      `json:"callID"`
	DestinationNumber string         `json:"destination_number,omitempty"`
	CallerIDName      string         `json:"caller_id_name,omitempty"`
	CallerIDNumber    string         `json:"caller_id_number,omitempty"`
	ClientState       string         `json:"clientState,omitempty"`
	Attach            bool           `json:"attach,omitempty"`
	CustomHeaders     []CustomHeader `json:"custom_headers,omitempty"`
}

// LoginParams authenticates a session by credential pair or token.
type LoginParams struct {
	Login      string            `json:"login,omitempty"`
	Passwd     string            `json:"passwd,omitempty"`
	LoginToken string            `json:"login_token,omitempty"`
	SessionID  string            `json:"sessid"`
	UserAgent  string            `json:"User-Agent,omitempty"`
	Variables  map[string]string `json:"userVariables,omitempty"`
}

// CallParams carries an SDP alongside dialog correlation data. Used for
// invite, answer and attach messages.
type CallParams struct {
	SessionID    string       `json:"sessid"`
	SDP          string       `json:"sdp"`
	DialogParams DialogParams `json:"dialogParams"`
}

// ByeParams terminates a call, optionally carrying the hangup cause.
type ByeParams struct {
	SessionID    string       `json:"sessid"`
	Cause        string       `json:"cause,omitempty"`
	CauseCode    int          `json:"causeCode,omitempty"`
	DialogParams DialogParams `json:"dialogParams"`
}

// ModifyParams applies an in-call action such as hold or unhold.
type ModifyParams struct {
	SessionID    string       `json:"sessid"`
	Action       string       `json:"action"`
	DialogParams DialogParams `json:"dialogParams"`
}

// InfoParams sends out-of-band DTMF tones for a call.
type InfoParams struct {
	SessionID    string       `json:"sessid"`
	DTMF         string       `json:"dtmf"`
	DialogParams DialogParams `json:"dialogParams"`
}

// StateParams requests or reports gateway registration state.
type StateParams struct {
	State string `json:"state,omitempty"`
}

// CallEventParams is the inbound shape shared by invite, answer, media,
// ringing, bye and attach notifications. Handlers check required fields
// against their zero values before acting on a message.
type CallEventParams struct {
	CallID         string          `json:"callID"`
	SDP            string          `json:"sdp,omitempty"`
	CallerIDName   string          `json:"caller_id_name,omitempty"`
	CallerIDNumber string          `json:"caller_id_number,omitempty"`
	PeerSessionID  string          `json:"telnyx_session_id,omitempty"`
	PeerLegID      string          `json:"telnyx_leg_id,omitempty"`
	Cause          string          `json:"cause,omitempty"`
	CauseCode      int             `json:"causeCode,omitempty"`
	SIPCode        int             `json:"sipCode,omitempty"`
	SIPReason      string          `json:"sipReason,omitempty"`
	DialogParams   json.RawMessage `json:"dialogParams,omitempty"`
}

// GatewayStateParams is the inbound gateway registration report.
type GatewayStateParams struct {
	State     string `json:"state"`
	SessionID string `json:"sessid,omitempty"`
}

// StatsReportParams wraps a diagnostics frame uploaded over the channel
// while verbose call statistics are enabled.
type StatsReportParams struct {
	Type          string          `json:"type"`
	DebugReportID string          `json:"debug_report_id"`
	ReportData    json.RawMessage `json:"debug_report_data,omitempty"`
	ReportVersion int             `json:"debug_report_version"`
}

// Stats report frame types.
const (
	StatsReportStart = "debug_report_start"
	StatsReportData  = "debug_report_data"
	StatsReportStop  = "debug_report_stop"
)
