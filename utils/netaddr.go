package utils

import (
	"net"
	"sort"
)

// FallbackHost 找不到可用 IPv4 地址时返回的值
const FallbackHost = "localhost"

// FirstNonLoopbackIPv4 返回主机第一个非回环 IPv4 地址，找不到时返回 "localhost"
func FirstNonLoopbackIPv4() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return FallbackHost
	}

	sort.SliceStable(ifaces, func(i, j int) bool { return ifaces[i].Index < ifaces[j].Index })

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		if ip := pickIPv4(addrs); ip != "" {
			return ip
		}
	}
	return FallbackHost
}

// pickIPv4 从地址列表中选出第一个非回环 IPv4
func pickIPv4(addrs []net.Addr) string {
	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip == nil || ip.IsLoopback() {
			continue
		}
		if v4 := ip.To4(); v4 != nil {
			return v4.String()
		}
	}
	return ""
}
