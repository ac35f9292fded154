// Package discovery supplements the LAN UDP beacon (pkg/lan's C4) with an
// optional DNS-SD/mDNS advertisement of the same TCP control-plane service,
// so LAN-aware apps (e.g. `avahi-browse`, mDNSResponder clients) can find a
// device without speaking the proprietary beacon frame first.
package discovery

// ServiceType identifies the one DNS-SD service this package advertises.
type ServiceType int

const (
	// ServiceTypeUnknown represents an unregistered service.
	ServiceTypeUnknown ServiceType = iota

	// ServiceTypeLPv35 is the LAN control-plane TCP service.
	ServiceTypeLPv35
)

// ServiceLPv35 is the DNS-SD service type string for the LAN control plane.
const ServiceLPv35 = "_lpv35._tcp"

// DefaultDomain is the mDNS domain used for local-network advertisement.
const DefaultDomain = "local."
