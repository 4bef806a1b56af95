package utils

import (
	"errors"
	"net"
	"strings"
)

// IsIpv6 判断给定的地址是否为 IPv6 地址
//
// 返回 (bool, error)：如果是 IPv6 地址返回 true，否则返回 false；如果地址无效，返回错误
func IsIpv6(address string) (bool, error) {
	ip := net.ParseIP(address)
	if ip == nil {
		return false, errors.New("invalid IP address: " + address)
	}
	return ip.To4() == nil, nil
}

// GetOutboundIP 获取本机的首选出站 IP 地址 (而不是 Docker, 虚拟网卡等)
func GetOutboundIP() (net.IP, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP, nil
}

// GetFirstIP 获取本机第一个可用的 IPv4 地址，优先使用出站地址
//
// 找不到时返回 127.0.0.1
func GetFirstIP() string {
	if ip, err := GetOutboundIP(); err == nil && ip.To4() != nil {
		return ip.String()
	}
	addrs, err := net.InterfaceAddrs()
	if err == nil {
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok || ipNet.IP.IsLoopback() || ipNet.IP.To4() == nil {
				continue
			}
			return ipNet.IP.String()
		}
	}
	return "127.0.0.1"
}

// GetInterfaceByIP 根据给定的 IP 地址获取对应的网络接口
// 返回 (*net.Interface, error)：找到的网络接口指针，如果未找到则返回 nil；如果发生错误，返回错误
func GetInterfaceByIP(ip net.IP) (*net.Interface, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, iFace := range interfaces {
		addrs, err := iFace.Addrs()
		if err != nil {
			return nil, err
		}
		for _, addr := range addrs {
			if ipNet, ok := addr.(*net.IPNet); ok && ipNet.IP.Equal(ip) {
				return &iFace, nil
			}
		}
	}
	return nil, nil
}

// HostOf 从 host:port 形式的地址中取出主机部分，解析失败时原样返回
func HostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return strings.Trim(host, "[]")
}
