package services

// TCP 核心模块，包括连接处理和维持，TLS 服务启动等

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/somebottle/cooperation-daemon/codec"
	"github.com/somebottle/cooperation-daemon/configs"
	"github.com/somebottle/cooperation-daemon/entities"
	"github.com/somebottle/cooperation-daemon/metrics"
	"golang.org/x/net/netutil"
)

// handleTCPConnectionRecv 处理并维护单个连接的接收部分，连接出错或关闭时返回
//
// fc: 连接
// inbound: 入站通道
// origin: 该连接上收到的消息的来源类型
// sigCtx: 中断信号上下文
func handleTCPConnectionRecv(fc *framedConn, inbound chan<- *entities.IncomeData, origin entities.Origin, sigCtx context.Context) {
	for {
		// 超过心跳时间没有数据就断开连接
		fc.conn.SetReadDeadline(time.Now().Add(configs.TCPConnHeartbeatInterval * time.Second))
		frameType, payload, err := codec.ReadFrame(fc.conn, configs.MaxFrameSize)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				slog.Debug("Connection read ended", "conn", fc.connID, "error", err)
			}
			return
		}
		if frameType == codec.FrameHeartbeat {
			continue
		}
		data := &entities.IncomeData{
			Raw:      payload,
			Origin:   origin,
			ConnID:   fc.connID,
			RemoteIP: fc.remoteIP,
		}
		// 入站通道满时阻塞，形成背压
		select {
		case inbound <- data:
		case <-fc.closed:
			return
		case <-sigCtx.Done():
			return
		}
	}
}

// handleTCPConnectionSend 处理并维护单个连接的发送部分，定时发送心跳包
//
// fc: 连接
// sigCtx: 中断信号上下文
func handleTCPConnectionSend(fc *framedConn, sigCtx context.Context) {
	heartbeatTicker := time.NewTicker(configs.TCPConnHeartbeatSendInterval * time.Second)
	defer heartbeatTicker.Stop()
	for {
		select {
		case <-sigCtx.Done():
			fc.Close()
			return
		case <-fc.closed:
			return
		case env := <-fc.sendChan:
			fc.conn.SetWriteDeadline(time.Now().Add(configs.TCPSocketWriteTimeout * time.Second))
			if err := codec.WriteEnvelope(fc.conn, env); err != nil {
				if errors.Is(err, codec.ErrMalformed) || errors.Is(err, codec.ErrUnexpectedBinary) {
					slog.Error("Refused to send invalid envelope", "kind", env.Kind, "error", err)
					continue
				}
				slog.Debug("Failed to send envelope, closing connection", "conn", fc.connID, "kind", env.Kind, "error", err)
				fc.Close()
				return
			}
			metrics.RecordEnvelopeSent(env.Kind.String())
		case <-heartbeatTicker.C:
			fc.conn.SetWriteDeadline(time.Now().Add(configs.TCPSocketWriteTimeout * time.Second))
			if err := codec.WriteHeartbeat(fc.conn); err != nil {
				slog.Debug("Failed to send heartbeat, closing connection", "conn", fc.connID, "error", err)
				fc.Close()
				return
			}
		}
	}
}

// handleTCPConnection 处理并维护单个被动接受的连接
//
// fc: 连接
// tcpConnHub: 连接管理器
// inbound: 入站通道
// onClosed: 连接关闭后的回调，参数为对端 IP
// sigCtx: 中断信号上下文
func handleTCPConnection(fc *framedConn, tcpConnHub *TCPConnectionHub, inbound chan<- *entities.IncomeData, onClosed func(ip string), sigCtx context.Context) {
	go handleTCPConnectionSend(fc, sigCtx)
	handleTCPConnectionRecv(fc, inbound, entities.OriginRemote, sigCtx)
	tcpConnHub.RemoveConnection(fc.connID)
	if onClosed != nil && sigCtx.Err() == nil {
		onClosed(fc.remoteIP)
	}
}

// setUpTLSServer 启动 TLS 服务接收对端消息，监听失败时通过 errChan 上报
//
// name: 端口名，用于日志和指标
// servPort: 监听的服务端口
// tlsConf: 服务端 TLS 配置
// tcpConnHub: 维护连接的管理器
// inbound: 入站通道
// onClosed: 连接关闭后的回调
// errChan: 传递错误信息的通道
// sigCtx: 中断信号上下文，用于优雅关闭服务
func setUpTLSServer(name string, servPort int, tlsConf *tls.Config, tcpConnHub *TCPConnectionHub, inbound chan<- *entities.IncomeData, onClosed func(ip string), errChan chan<- error, sigCtx context.Context) {
	for {
		exit, err := func() (bool, error) {
			listener, err := net.Listen("tcp", ":"+strconv.Itoa(servPort))
			if err != nil {
				return true, fmt.Errorf("listen on %s port %d: %w", name, servPort, err)
			}
			// 限制同时处理的连接数
			tlsListener := tls.NewListener(netutil.LimitListener(listener, configs.MaxTCPConnections), tlsConf)
			// 用于通知中断监听协程退出的管道
			listenerDone := make(chan struct{})
			defer func() {
				close(listenerDone)
				tlsListener.Close()
			}()
			go func() {
				select {
				case <-sigCtx.Done():
					// 接到退出信号，关闭监听器，终止服务
					tlsListener.Close()
				case <-listenerDone:
				}
			}()
			slog.Info("TLS server listening", "name", name, "port", servPort)
			for {
				conn, err := tlsListener.Accept()
				if err != nil {
					if sigCtx.Err() != nil {
						slog.Debug("TLS server exiting gracefully", "name", name)
						return true, nil
					}
					return false, err
				}
				fc, err := tcpConnHub.AddConnection(conn)
				if err != nil {
					slog.Warn("Failed to add connection", "remoteAddr", conn.RemoteAddr().String(), "error", err)
					conn.Close()
					continue
				}
				metrics.ConnectionOpened(name)
				slog.Debug("Accepted connection", "name", name, "remoteAddr", conn.RemoteAddr().String())
				go func() {
					defer metrics.ConnectionClosed(name)
					handleTCPConnection(fc, tcpConnHub, inbound, onClosed, sigCtx)
				}()
			}
		}()
		if exit {
			if err != nil {
				errChan <- err
			}
			return
		}
		slog.Info("Restarting TLS server", "name", name, "previousError", err)
		time.Sleep(configs.TCPServerRestartInterval * time.Second)
	}
}
