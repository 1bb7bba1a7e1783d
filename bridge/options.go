package bridge

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/bridgekit/bridge/magic"
)

// Options configures a State, mirroring capnweb-go's
// SessionOptions/DefaultSessionOptions (session.go) pattern.
type Options struct {
	// ThrottleDelay is how long a dirty peer waits, after the first change
	// in a batch, before flushing. Go has no microtask queue, so this is
	// driven by time.AfterFunc even when it is zero (see SPEC_FULL.md's Open
	// Question decisions).
	ThrottleDelay time.Duration

	// OutboxCapacity is defaulted to 256 when unset; State does not read it.
	OutboxCapacity int

	// Codec picks the outer message framing. Defaults to JSONCodec.
	Codec Codec

	// Store is the magic store objects and proxies on this side of the
	// bridge are registered in. Defaults to magic.Default.
	Store *magic.Store

	// NegotiateVersion is accepted but not read by State: no handshake frame
	// carrying ProtocolVersion is sent or checked, whatever its value. See
	// SPEC_FULL.md's Open Question decisions.
	NegotiateVersion bool

	// SendAbortOnClose, when the transport implements transport.Aborter and
	// Close is given a non-nil reason, asks it to deliver a best-effort final
	// notice before the connection tears down. Off by default: not every
	// transport supports a graceful abort frame.
	SendAbortOnClose bool

	// Logger receives structured diagnostics. A nil Logger defaults to a
	// no-op, a safely-nil *zap.Logger field rather than an interface with a
	// null object.
	Logger *zap.Logger

	// EnableMetrics turns on the Prometheus counters/histogram in metrics.go.
	// Off by default so a program that never sets this never registers
	// collectors against MetricsRegistry.
	EnableMetrics bool

	// MetricsRegistry is where the collectors are registered when
	// EnableMetrics is true. Defaults to prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer

	// MetricsNamespace prefixes every collector name. Empty means no prefix.
	MetricsNamespace string
}

// DefaultOptions returns reasonable defaults.
func DefaultOptions() Options {
	return Options{
		ThrottleDelay:  0,
		OutboxCapacity: 256,
		Codec:          JSONCodec{},
		Store:          magic.Default,
		Logger:         zap.NewNop(),
	}
}

func (o *Options) fillDefaults() {
	if o.Codec == nil {
		o.Codec = JSONCodec{}
	}
	if o.Store == nil {
		o.Store = magic.Default
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.OutboxCapacity <= 0 {
		o.OutboxCapacity = 256
	}
	if o.EnableMetrics && o.MetricsRegistry == nil {
		o.MetricsRegistry = prometheus.DefaultRegisterer
	}
}
