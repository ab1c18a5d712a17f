package utils

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateID returns a random identifier with the given prefix.
func GenerateID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// GenerateConnID identifies one websocket attachment in logs and metrics.
func GenerateConnID() string {
	return GenerateID("conn")
}

// GenerateRequestID is used when a client omits request_id.
func GenerateRequestID() string {
	return GenerateID("req")
}
