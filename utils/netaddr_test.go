package utils

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPickIPv4(t *testing.T) {
	_, lan, _ := net.ParseCIDR("192.168.1.20/24")
	lan.IP = net.ParseIP("192.168.1.20")

	tests := []struct {
		name  string
		addrs []net.Addr
		want  string
	}{
		{name: "empty", addrs: nil, want: ""},
		{
			name: "skip loopback and ipv6",
			addrs: []net.Addr{
				&net.IPNet{IP: net.ParseIP("127.0.0.1"), Mask: net.CIDRMask(8, 32)},
				&net.IPNet{IP: net.ParseIP("fe80::1"), Mask: net.CIDRMask(64, 128)},
				lan,
			},
			want: "192.168.1.20",
		},
		{
			name:  "ip addr",
			addrs: []net.Addr{&net.IPAddr{IP: net.ParseIP("10.0.0.7")}},
			want:  "10.0.0.7",
		},
		{
			name:  "only loopback",
			addrs: []net.Addr{&net.IPAddr{IP: net.ParseIP("127.0.0.1")}},
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pickIPv4(tt.addrs))
		})
	}
}

func TestFirstNonLoopbackIPv4(t *testing.T) {
	ip := FirstNonLoopbackIPv4()
	if ip == FallbackHost {
		return
	}
	parsed := net.ParseIP(ip)
	assert.NotNil(t, parsed)
	assert.NotNil(t, parsed.To4())
	assert.False(t, parsed.IsLoopback())
}
