package webrtc

import (
	"encoding/json"
	"fmt"
	"strings"

	"skycast/internal/core/domain"

	"github.com/pion/webrtc/v3"
)

// PayloadValidator rejects negotiation payloads a browser could not apply,
// so garbage is answered at the sender instead of surfacing at the peer.
type PayloadValidator struct{}

func NewPayloadValidator() *PayloadValidator {
	return &PayloadValidator{}
}

func (PayloadValidator) Validate(kind domain.RelayKind, payload json.RawMessage) error {
	switch kind {
	case domain.RelayOffer:
		return validateDescription(payload, webrtc.SDPTypeOffer)
	case domain.RelayAnswer:
		return validateDescription(payload, webrtc.SDPTypeAnswer, webrtc.SDPTypePranswer)
	case domain.RelayCandidate:
		return validateCandidate(payload)
	}
	return fmt.Errorf("unknown relay kind %q", kind)
}

func validateDescription(payload json.RawMessage, allowed ...webrtc.SDPType) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(payload, &desc); err != nil {
		return fmt.Errorf("session description: %w", err)
	}

	typeOK := false
	for _, t := range allowed {
		if desc.Type == t {
			typeOK = true
			break
		}
	}
	if !typeOK {
		return fmt.Errorf("session description type %q not allowed here", desc.Type)
	}

	parsed, err := desc.Unmarshal()
	if err != nil {
		return fmt.Errorf("sdp: %w", err)
	}
	if len(parsed.MediaDescriptions) == 0 {
		return fmt.Errorf("sdp has no media sections")
	}
	return nil
}

// An empty candidate string is the end-of-candidates marker and is allowed.
func validateCandidate(payload json.RawMessage) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(payload, &init); err != nil {
		return fmt.Errorf("ice candidate: %w", err)
	}
	if init.Candidate == "" {
		return nil
	}
	if !strings.HasPrefix(init.Candidate, "candidate:") {
		return fmt.Errorf("ice candidate must start with \"candidate:\"")
	}
	if init.SDPMid == nil && init.SDPMLineIndex == nil {
		return fmt.Errorf("ice candidate needs sdpMid or sdpMLineIndex")
	}
	return nil
}
