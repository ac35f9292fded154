package lan

// BeaconPort is the UDP port the discovery beacon broadcasts to (Spec
// Section 6.2).
const BeaconPort = 7000

// ProbePort is the UDP app probe port (Spec Section 6.2). Nothing in this
// package binds it; the Beacon receives probes on its own ListenAddr.
const ProbePort = 6667
