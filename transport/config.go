package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/BonsonW/renetsteam/access"
	"github.com/BonsonW/renetsteam/logger"
	"github.com/BonsonW/renetsteam/metrics"
)

const (
	// MaxMessageBatchSize bounds the messages pulled from one connection per
	// Update.
	MaxMessageBatchSize = 512

	// MaxMessageBufferSize is the inbound byte count after which Update stops
	// polling further connections. It is checked between connections, so the
	// last batch polled may carry the total past it. Connections not polled
	// keep their messages buffered in the SDK until the next tick.
	MaxMessageBufferSize = 500 * 1024
)

// ErrInvalidConfig is returned by the constructors for a malformed
// ServerConfig.
var ErrInvalidConfig = errors.New("invalid server config")

// Close reasons sent to peers.
const (
	reasonTooManyClients = "Too many clients"
	reasonInvalidSteamID = "Invalid steam id"
	reasonNotAllowed     = "Not allowed"
	reasonKicked         = "Client was kicked"
)

// ServerConfig configures a ServerTransport.
type ServerConfig struct {
	// MaxClients is checked when a remote requests admission. It must be
	// positive.
	MaxClients int
	// AccessPolicy decides who may connect.
	AccessPolicy access.Policy
	// Logger receives transport diagnostics. Nil discards them.
	Logger logger.Logger
	// Metrics receives transport counters. Nil creates an unregistered set.
	Metrics *metrics.Metrics
	// FriendCacheTTL memoises FriendsOnly lookups for the given duration.
	// Zero queries the SDK on every admission.
	FriendCacheTTL time.Duration
}

// DefaultServerConfig returns a config admitting everyone up to maxClients.
//
// Parameters:
//   - maxClients: The admission bound
//
// Returns:
//   - A ServerConfig with the Public policy and no logger or metrics
func DefaultServerConfig(maxClients int) ServerConfig {
	return ServerConfig{
		MaxClients:   maxClients,
		AccessPolicy: access.Public{},
	}
}

func (c *ServerConfig) validate() error {
	if c.MaxClients <= 0 {
		return fmt.Errorf("max clients %d: %w", c.MaxClients, ErrInvalidConfig)
	}

	if c.AccessPolicy == nil {
		return fmt.Errorf("access policy is required: %w", ErrInvalidConfig)
	}

	if c.FriendCacheTTL < 0 {
		return fmt.Errorf("friend cache ttl %s: %w", c.FriendCacheTTL, ErrInvalidConfig)
	}

	return nil
}
