package app

import (
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/captify/captify/internal/services/shared/apiclient"
)

// DefaultSweepInterval spaces the expiry sweeps of sessions and cache rows.
const DefaultSweepInterval = time.Minute

// Config defines the inputs for the web session server.
type Config struct {
	HTTPAddr string
	// APIAddr is the platform API gRPC address.
	APIAddr string
	// CacheDBPath enables persistent sessions when set.
	CacheDBPath   string
	CacheFreshTTL time.Duration
	SessionTTL    time.Duration
	JWTSecret     string
	JWTIssuer     string
	JWTAudience   string
	// TrustForwardedProto honors X-Forwarded-Proto for cookie security.
	TrustForwardedProto bool
	DialTimeout         time.Duration
	SweepInterval       time.Duration
	Logger              *zap.Logger

	// Runner replaces the dialed platform client when set.
	Runner apiclient.Runner
	// Listener replaces the TCP listener on HTTPAddr when set.
	Listener net.Listener
}
