package discovery

import (
	"fmt"
	"net"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

// DefaultPort is the default LAN control-plane TCP port (Spec Section 4.4).
const DefaultPort = 6668

// MDNSServer is the interface for mDNS service registration, allowing
// dependency injection in tests.
type MDNSServer interface {
	// Shutdown stops the server.
	Shutdown()
}

// MDNSServerFactory creates MDNSServer instances.
type MDNSServerFactory interface {
	Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error)
}

type zeroconfServerFactory struct{}

func (z *zeroconfServerFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	return zeroconf.Register(instance, service, domain, port, txt, ifaces)
}

// AdvertiserConfig holds configuration for the Advertiser.
type AdvertiserConfig struct {
	// DeviceID is used as the mDNS instance name.
	DeviceID string

	// ProtocolVersion is reported in the "ver" TXT field.
	ProtocolVersion string

	// Port is the LAN control-plane TCP port (default: 6668).
	Port int

	// Interfaces specifies which network interfaces to advertise on.
	// If nil, all interfaces are used.
	Interfaces []net.Interface

	// ServerFactory is the factory for creating mDNS servers.
	// If nil, the default zeroconf factory is used.
	ServerFactory MDNSServerFactory

	LoggerFactory logging.LoggerFactory
}

// Advertiser publishes the LAN control-plane's DNS-SD record to the network
// (Spec Section 4.4, supplemental to pkg/lan's raw UDP beacon).
type Advertiser struct {
	config AdvertiserConfig
	factory MDNSServerFactory
	log     logging.LeveledLogger

	mu      sync.Mutex
	server  MDNSServer
	started bool
	closed  bool
}

// NewAdvertiser creates a new Advertiser with the given configuration.
func NewAdvertiser(config AdvertiserConfig) (*Advertiser, error) {
	if config.Port == 0 {
		config.Port = DefaultPort
	} else if config.Port < 0 || config.Port > 65535 {
		return nil, ErrInvalidPort
	}

	factory := config.ServerFactory
	if factory == nil {
		factory = &zeroconfServerFactory{}
	}

	a := &Advertiser{config: config, factory: factory}
	if config.LoggerFactory != nil {
		a.log = config.LoggerFactory.NewLogger("discovery")
	}
	return a, nil
}

// Start begins advertising the `_lpv35._tcp` service.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if a.started {
		return ErrAlreadyStarted
	}

	txt := []string{
		fmt.Sprintf("id=%s", a.config.DeviceID),
		fmt.Sprintf("ver=%s", a.config.ProtocolVersion),
	}

	if a.log != nil {
		a.log.Debugf("discovery: registering %s instance=%s port=%d", ServiceLPv35, a.config.DeviceID, a.config.Port)
	}

	server, err := a.factory.Register(
		a.config.DeviceID,
		ServiceLPv35,
		DefaultDomain,
		a.config.Port,
		txt,
		a.config.Interfaces,
	)
	if err != nil {
		return fmt.Errorf("discovery: mDNS registration failed: %w", err)
	}

	a.server = server
	a.started = true
	return nil
}

// Stop withdraws the advertisement.
func (a *Advertiser) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if !a.started {
		return ErrNotStarted
	}

	a.server.Shutdown()
	a.server = nil
	a.started = false
	return nil
}

// Close stops advertising and closes the advertiser.
func (a *Advertiser) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if a.started {
		a.server.Shutdown()
		a.server = nil
		a.started = false
	}
	a.closed = true
	return nil
}

// IsAdvertising reports whether the service is currently registered.
func (a *Advertiser) IsAdvertising() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.started
}
