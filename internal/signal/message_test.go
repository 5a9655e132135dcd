package signal

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func TestNewRequestFraming(t *testing.T) {
	env, err := NewRequest(MethodInvite, CallParams{
		SessionID: "sess-1",
		SDP:       "v=0",
		DialogParams: DialogParams{
			CallID:            uuid.New(),
			DestinationNumber: "+15551234567",
		},
	})
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	if env.JSONRPC != "2.0" {
		t.Errorf("JSONRPC = %q, want 2.0", env.JSONRPC)
	}
	if env.Method != MethodInvite {
		t.Errorf("Method = %q, want %q", env.Method, MethodInvite)
	}
	if _, err := uuid.Parse(env.ID); err != nil {
		t.Errorf("ID %q is not a uuid: %v", env.ID, err)
	}

	var params CallParams
	if err := json.Unmarshal(env.Params, &params); err != nil {
		t.Fatalf("params do not round-trip: %v", err)
	}
	if params.DialogParams.DestinationNumber != "+15551234567" {
		t.Errorf("destination = %q", params.DialogParams.DestinationNumber)
	}
}

func TestEnvelopeDecodeGatewayState(t *testing.T) {
	raw := `{"jsonrpc":"2.0","id":"1","method":"telnyx_rtc.gatewayState","params":{"state":"REGED","sessid":"abc"}}`

	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if env.Method != MethodGatewayState {
		t.Errorf("Method = %q", env.Method)
	}

	var params GatewayStateParams
	if err := json.Unmarshal(env.Params, &params); err != nil {
		t.Fatalf("params unmarshal failed: %v", err)
	}
	if params.State != "REGED" || params.SessionID != "abc" {
		t.Errorf("params = %+v", params)
	}
}

func TestRemoteErrorIsError(t *testing.T) {
	var err error = &RemoteError{Code: -32000, Message: "authentication failed"}
	if err.Error() != "authentication failed" {
		t.Errorf("Error() = %q", err.Error())
	}
}
