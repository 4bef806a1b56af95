package services

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/somebottle/cooperation-daemon/utils"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// groupControl ipv4.PacketConn 和 ipv6.PacketConn 共有的组播控制方法
type groupControl interface {
	JoinGroup(ifi *net.Interface, group net.Addr) error
	LeaveGroup(ifi *net.Interface, group net.Addr) error
	SetMulticastInterface(ifi *net.Interface) error
	SetMulticastLoopback(on bool) error
}

// discoveryConn 加入了发现组播组的 UDP 连接
//
// 收发直接使用底层连接，x/net 的封装只用于组播组控制
type discoveryConn struct {
	net.PacketConn
	control groupControl
	group   *net.UDPAddr
	ifi     *net.Interface
	// 组播目的地址
	dst *net.UDPAddr
}

// openDiscoveryConn 绑定组播端口并加入组播组
//
// 直接用 net.ListenMulticastUDP 收不到包，只能先绑定 0.0.0.0:port 再加入组播组
//
// networkType: "udp4" 或 "udp6"
// groupAddr: 组播地址
// port: 组播端口
// ifi: 出站网络接口
func openDiscoveryConn(networkType string, groupAddr string, port string, ifi *net.Interface) (*discoveryConn, error) {
	group := &net.UDPAddr{IP: net.ParseIP(groupAddr)}
	if group.IP == nil {
		return nil, fmt.Errorf("invalid multicast address: %s", groupAddr)
	}
	dst, err := net.ResolveUDPAddr(networkType, net.JoinHostPort(groupAddr, port))
	if err != nil {
		return nil, fmt.Errorf("Error resolving multicast address: %w", err)
	}
	bindAddr := ":" + port
	if networkType == "udp6" {
		bindAddr = "[::]:" + port
	}
	pc, err := utils.ListenPacketWithREUSEADDR(networkType, bindAddr)
	if err != nil {
		return nil, fmt.Errorf("Error creating %s packet connection: %w", networkType, err)
	}
	var control groupControl
	switch networkType {
	case "udp4":
		control = ipv4.NewPacketConn(pc)
	case "udp6":
		control = ipv6.NewPacketConn(pc)
	default:
		pc.Close()
		return nil, fmt.Errorf("unsupported network type: %s", networkType)
	}
	if err := control.JoinGroup(ifi, group); err != nil {
		pc.Close()
		return nil, fmt.Errorf("Error joining multicast group %s: %w", groupAddr, err)
	}
	if err := control.SetMulticastInterface(ifi); err != nil {
		slog.Debug("Failed to set multicast interface", "error", err)
	}
	// 自己的公告在读取时按 IP 过滤
	if err := control.SetMulticastLoopback(false); err != nil {
		slog.Debug("Failed to disable multicast loopback", "error", err)
	}
	return &discoveryConn{PacketConn: pc, control: control, group: group, ifi: ifi, dst: dst}, nil
}

// Announce 向组播组发送一个数据包
func (dc *discoveryConn) Announce(payload []byte) error {
	_, err := dc.WriteTo(payload, dc.dst)
	return err
}

// Close 离开组播组并关闭连接
func (dc *discoveryConn) Close() error {
	dc.control.LeaveGroup(dc.ifi, dc.group)
	return dc.PacketConn.Close()
}
