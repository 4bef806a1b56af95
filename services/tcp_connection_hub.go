package services

// TCP 连接管理模块

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/somebottle/cooperation-daemon/configs"
	"github.com/somebottle/cooperation-daemon/entities"
	"github.com/somebottle/cooperation-daemon/utils"
)

// errConnClosed 连接已关闭
var errConnClosed = errors.New("connection closed")

// framedConn 包含连接及其发送通道
type framedConn struct {
	conn     net.Conn
	connID   string
	remoteIP string
	sendChan chan *entities.Envelope
	// 连接关闭后关闭该通道，发送方据此退出
	closed    chan struct{}
	closeOnce sync.Once
}

// newFramedConn 包装连接并创建发送通道
func newFramedConn(conn net.Conn) *framedConn {
	remoteAddr := conn.RemoteAddr().String()
	return &framedConn{
		conn:     conn,
		connID:   utils.NewConnID(remoteAddr),
		remoteIP: utils.HostOf(remoteAddr),
		sendChan: make(chan *entities.Envelope, configs.TCPSocketSendChanSize),
		closed:   make(chan struct{}),
	}
}

// Close 关闭连接，可以重复调用
func (fc *framedConn) Close() {
	fc.closeOnce.Do(func() {
		close(fc.closed)
		fc.conn.Close()
	})
}

// Enqueue 把信封放入发送通道，通道满时最多等待一个写入超时
func (fc *framedConn) Enqueue(env *entities.Envelope) error {
	timer := time.NewTimer(configs.TCPSocketWriteTimeout * time.Second)
	defer timer.Stop()
	select {
	case fc.sendChan <- env:
		return nil
	case <-fc.closed:
		return errConnClosed
	case <-timer.C:
		return fmt.Errorf("send queue of %s is full", fc.connID)
	}
}

// TCPConnectionHub 管理一个监听端口上所有被动接受的连接
type TCPConnectionHub struct {
	// 控制对 conns 的并发访问
	mutex sync.Mutex
	conns map[string]*framedConn
}

// NewTCPConnectionHub 创建一个新的 TCP 连接管理器
func NewTCPConnectionHub() *TCPConnectionHub {
	return &TCPConnectionHub{
		conns: make(map[string]*framedConn),
	}
}

// AddConnection 添加一个新的连接到管理器，并创建其发送通道
func (hub *TCPConnectionHub) AddConnection(conn net.Conn) (*framedConn, error) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	if len(hub.conns) >= configs.MaxTCPConnections {
		return nil, errors.New("Maximum TCP connections reached, ignoring new connection")
	}
	fc := newFramedConn(conn)
	hub.conns[fc.connID] = fc
	return fc, nil
}

// RemoveConnection 从管理器中移除并关闭一个连接
func (hub *TCPConnectionHub) RemoveConnection(connID string) {
	hub.mutex.Lock()
	fc, exists := hub.conns[connID]
	delete(hub.conns, connID)
	hub.mutex.Unlock()
	if exists {
		fc.Close()
	}
}

// Reply 把回复写回接收请求的连接
func (hub *TCPConnectionHub) Reply(connID string, env *entities.Envelope) error {
	hub.mutex.Lock()
	fc, exists := hub.conns[connID]
	hub.mutex.Unlock()
	if !exists {
		return fmt.Errorf("%w: %s", errConnClosed, connID)
	}
	return fc.Enqueue(env)
}

// NumConnections 返回当前管理的连接数
func (hub *TCPConnectionHub) NumConnections() int {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	return len(hub.conns)
}

// Close 关闭所有管理的连接
func (hub *TCPConnectionHub) Close() {
	hub.mutex.Lock()
	conns := make([]*framedConn, 0, len(hub.conns))
	for id, fc := range hub.conns {
		conns = append(conns, fc)
		delete(hub.conns, id)
	}
	hub.mutex.Unlock()
	for _, fc := range conns {
		fc.Close()
	}
}
