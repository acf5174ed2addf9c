package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/subsystemsim/halbridge/pkg/log"
	"github.com/subsystemsim/halbridge/pkg/mechanism"
	"github.com/subsystemsim/halbridge/pkg/physics"
	"github.com/subsystemsim/halbridge/pkg/registry"
	"github.com/subsystemsim/halbridge/pkg/transport"
)

// OracleFactory builds a fresh physics oracle for one session.
type OracleFactory func(desc *mechanism.Description) physics.Oracle

// Config configures a Bridge.
type Config struct {
	// URI is the peer's websocket endpoint.
	URI string

	// Description is the mechanism to simulate.
	Description *mechanism.Description

	// Oracle builds the physics engine per session.
	// Defaults to the built-in engine.
	Oracle OracleFactory

	// Transport configures the websocket connection.
	Transport transport.ConnectionConfig

	// Backoff configures reconnection delays.
	Backoff BackoffConfig

	// AutoReconnect redials after the peer goes away.
	AutoReconnect bool

	// Logger receives bridge events. Nil disables logging.
	Logger log.Logger
}

// DefaultConfig returns the default bridge configuration.
func DefaultConfig() Config {
	return Config{
		URI:           transport.DefaultEndpoint,
		Transport:     transport.DefaultConnectionConfig(),
		Backoff:       DefaultBackoffConfig(),
		AutoReconnect: true,
	}
}

// Bridge dials the peer and runs one Session per connection. Every
// connection starts fresh: new registry, new oracle, new init state,
// so a restarted peer always re-initializes its devices.
type Bridge struct {
	config  Config
	backoff *backoff
}

// New creates a bridge. The mechanism description is validated here so
// configuration defects surface before the first dial.
func New(config Config) (*Bridge, error) {
	if config.Description == nil {
		return nil, fmt.Errorf("%w: no mechanism description", mechanism.ErrInvalidDescription)
	}
	if err := config.Description.Validate(); err != nil {
		return nil, err
	}
	if config.URI == "" {
		config.URI = transport.DefaultEndpoint
	}
	if config.Oracle == nil {
		config.Oracle = func(desc *mechanism.Description) physics.Oracle {
			return physics.NewSimpleEngine(desc)
		}
	}
	if config.Logger == nil {
		config.Logger = log.NoopLogger{}
	}

	// Building the registry once up front catches bad device bindings
	// (unknown motors, unknown joints) before connecting.
	if _, err := registry.FromDescription(config.Description); err != nil {
		return nil, err
	}

	return &Bridge{
		config:  config,
		backoff: newBackoff(config.Backoff),
	}, nil
}

// Run connects to the peer and runs sessions until the context is
// cancelled. With AutoReconnect it redials forever with backoff; the
// only error that ends it early is a fatal mechanism inconsistency.
// Without AutoReconnect it returns the session's outcome: nil for a
// clean peer close, the transport error for a dropped connection.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		err := b.runOnce(ctx)
		if err != nil && errors.Is(err, ErrInconsistentMechanism) {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		if !b.config.AutoReconnect {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(b.backoff.next()):
		}
	}
}

// runOnce dials once and runs a single session to completion.
func (b *Bridge) runOnce(ctx context.Context) error {
	reg, err := registry.FromDescription(b.config.Description)
	if err != nil {
		return err
	}
	oracle := b.config.Oracle(b.config.Description)

	sess := NewSession(b.config.Description, reg, oracle, b.config.Logger)
	conn := transport.NewConnection(b.config.Transport, sess)
	sess.AttachSender(conn)

	if err := conn.Connect(ctx, b.config.URI); err != nil {
		return err
	}
	if addr := conn.RemoteAddr(); addr != nil {
		sess.SetRemoteAddr(addr.String())
	}
	b.backoff.reset()

	err = sess.Run(ctx)
	conn.ForceClose()
	return err
}
