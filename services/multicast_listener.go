package services

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/somebottle/cooperation-daemon/configs"
)

// ListenDiscoveryMulticast 启动局域网发现组播的监听与公告
//
// 收到的对端发现包交给 job 处理，同时定时把本机节点描述组播出去
//
// networkType: "udp4" 或 "udp6"
// groupAddr: 组播地址
// port: 组播端口
// outboundInterface: 出站网络接口
// job: 发现任务
// errChan: 传递异常的通道，一旦传递，进程即将退出
// sigCtx: 中断信号上下文，用于优雅关闭监听
func ListenDiscoveryMulticast(networkType string, groupAddr string, port string, outboundInterface *net.Interface, job *DiscoveryJob, errChan chan<- error, sigCtx context.Context) {
	selfIP := net.ParseIP(job.SelfIP())
	// for 循环保持监听
	for {
		exit, err := func() (bool, error) {
			packetConn, err := openDiscoveryConn(networkType, groupAddr, port, outboundInterface)
			if err != nil {
				return false, err
			}
			listenerDone := make(chan struct{})
			defer func() {
				close(listenerDone)
				packetConn.Close()
			}()
			// 公告协程，同时负责在中断时关闭连接
			go func() {
				ticker := time.NewTicker(configs.DiscoveryAnnounceInterval * time.Second)
				defer ticker.Stop()
				announce := func() {
					if err := packetConn.Announce([]byte(job.UDPSimulatedPackage())); err != nil {
						slog.Debug("Failed to send discovery announcement", "error", err)
					}
				}
				announce()
				for {
					select {
					case <-sigCtx.Done():
						packetConn.Close()
						return
					case <-listenerDone:
						return
					case <-ticker.C:
						announce()
					}
				}
			}()
			slog.Info("Joined discovery multicast group", "address", groupAddr, "port", port)
			buf := make([]byte, configs.MulticastReadBufferSize)
			for {
				if err := packetConn.SetReadDeadline(time.Now().Add(configs.MulticastReadTimeout * time.Second)); err != nil {
					return false, fmt.Errorf("Error setting read deadline: %w", err)
				}
				// UDP 中一次会读取整个数据报
				n, remoteAddr, err := packetConn.ReadFrom(buf)
				if err != nil {
					if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
						continue
					}
					if sigCtx.Err() != nil {
						slog.Debug("Discovery multicast listener exiting gracefully...")
						return true, nil
					}
					return false, err
				}
				udpAddr, ok := remoteAddr.(*net.UDPAddr)
				if !ok || udpAddr.IP.Equal(selfIP) {
					// 自己的公告
					continue
				}
				job.IngestPeerPackage(udpAddr.IP.String(), string(buf[:n]))
			}
		}()
		if exit {
			if err != nil {
				errChan <- err
			}
			break
		}
		if sigCtx.Err() != nil {
			return
		}
		slog.Info("Restarting discovery multicast listener", "previousError", err)
		select {
		case <-sigCtx.Done():
			return
		case <-time.After(configs.MulticastListenRetryInterval * time.Second):
		}
	}
}
