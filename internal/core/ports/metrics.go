package ports

import (
	"time"

	"skycast/internal/core/domain"
)

// Metrics receives coordinator measurements. The Prometheus collector is the
// production implementation.
type Metrics interface {
	ConnectionOpened()
	ConnectionClosed()
	BroadcastStarted(privacy domain.PrivacyMode)
	BroadcastEnded(forced bool, duration time.Duration)
	ViewerAdmitted(id domain.BroadcastID, viewers int)
	ViewerDenied(reason domain.DenyReason)
	ViewerRemoved(id domain.BroadcastID, reason domain.CloseReason, viewers int)
	RelayForwarded(kind domain.RelayKind)
	RelayDropped(kind domain.RelayKind)
	LedgerCall(op string, err error, elapsed time.Duration)
}

type NopMetrics struct{}

func (NopMetrics) ConnectionOpened()                                         {}
func (NopMetrics) ConnectionClosed()                                         {}
func (NopMetrics) BroadcastStarted(domain.PrivacyMode)                       {}
func (NopMetrics) BroadcastEnded(bool, time.Duration)                        {}
func (NopMetrics) ViewerAdmitted(domain.BroadcastID, int)                    {}
func (NopMetrics) ViewerDenied(domain.DenyReason)                            {}
func (NopMetrics) ViewerRemoved(domain.BroadcastID, domain.CloseReason, int) {}
func (NopMetrics) RelayForwarded(domain.RelayKind)                           {}
func (NopMetrics) RelayDropped(domain.RelayKind)                             {}
func (NopMetrics) LedgerCall(string, error, time.Duration)                   {}
