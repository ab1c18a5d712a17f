package webrtc

import (
	"encoding/json"
	"testing"

	"skycast/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

const testSDP = "v=0\r\n" +
	"o=- 4215775240449105457 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"a=group:BUNDLE 0\r\n" +
	"m=video 9 UDP/TLS/RTP/SAVPF 96\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:0\r\n" +
	"a=sendonly\r\n" +
	"a=rtpmap:96 VP8/90000\r\n"

func description(t, sdp string) json.RawMessage {
	raw, _ := json.Marshal(map[string]string{"type": t, "sdp": sdp})
	return raw
}

func TestPayloadValidator(t *testing.T) {
	v := NewPayloadValidator()

	cases := []struct {
		name    string
		kind    domain.RelayKind
		payload json.RawMessage
		wantErr bool
	}{
		{"valid offer", domain.RelayOffer, description("offer", testSDP), false},
		{"valid answer", domain.RelayAnswer, description("answer", testSDP), false},
		{"answer sent as offer", domain.RelayOffer, description("answer", testSDP), true},
		{"unknown type", domain.RelayOffer, description("bogus", testSDP), true},
		{"broken sdp", domain.RelayOffer, description("offer", "hello"), true},
		{"not json", domain.RelayAnswer, json.RawMessage(`"offer"`), true},
		{"valid candidate", domain.RelayCandidate, json.RawMessage(`{"candidate":"candidate:1 1 udp 2122260223 192.0.2.1 54321 typ host","sdpMid":"0"}`), false},
		{"end of candidates", domain.RelayCandidate, json.RawMessage(`{"candidate":""}`), false},
		{"candidate without mid", domain.RelayCandidate, json.RawMessage(`{"candidate":"candidate:1 1 udp 1 192.0.2.1 1 typ host"}`), true},
		{"candidate garbage", domain.RelayCandidate, json.RawMessage(`{"candidate":"hello","sdpMid":"0"}`), true},
		{"unknown kind", domain.RelayKind("bye"), json.RawMessage(`{}`), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Validate(tc.kind, tc.payload)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
