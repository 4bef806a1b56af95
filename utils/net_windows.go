//go:build windows

package utils

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/windows"
)

// ListenPacketWithREUSEADDR 创建一个启用套接字 REUSEADDR 选项的 PacketConn
//
// network: 网络类型 (如 "udp4" 或 "udp6")
// address: 监听地址
func ListenPacketWithREUSEADDR(network string, address string) (net.PacketConn, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var controlErr error
			err := c.Control(func(fd uintptr) {
				controlErr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return controlErr
		},
	}
	return lc.ListenPacket(context.Background(), network, address)
}
