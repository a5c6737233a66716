package discovery

import (
	"net"

	"github.com/grandcat/zeroconf"
)

// ServiceHTTP is the service type the ink API is advertised under.
const ServiceHTTP = "_http._tcp"

// Advertise registers the ink API over mDNS. The caller must Shutdown the
// returned server.
func Advertise(instance string, port int) (*zeroconf.Server, error) {
	return zeroconf.Register(
		instance,
		ServiceHTTP,
		"local.",
		port,
		[]string{
			"txtvers=1",
			"path=/api/printers",
			"note=IPP ink levels",
		},
		nil,
	)
}

// LocalIP returns the IPv4 address used to reach the LAN, or "0.0.0.0"
// when no route is available. No packets are sent.
func LocalIP() string {
	conn, err := net.Dial("udp4", "224.0.0.251:5353")
	if err != nil {
		return "0.0.0.0"
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}
