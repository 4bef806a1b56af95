package services

// 主动连接对端的发送器，每个对端应用一个连接
//
// 发送只把信封放进对端应用的队列，连接由该应用自己的协程建立，
// 连接或写入失败时把失败信息作为响应送回入站通道

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/somebottle/cooperation-daemon/codec"
	"github.com/somebottle/cooperation-daemon/configs"
	"github.com/somebottle/cooperation-daemon/constants"
	"github.com/somebottle/cooperation-daemon/entities"
)

// peerLink 到一个对端应用的连接
type peerLink struct {
	// 保护 fc、closed 和 pingStop
	mutex sync.Mutex
	app   string
	ip    string
	port  int
	fc    *framedConn
	// 待发送的信封，只由 runLink 取出
	queue chan *entities.Envelope
	// 关闭后 runLink 退出
	done   chan struct{}
	closed bool
	// 关闭后停止 ping，nil 表示没有在 ping
	pingStop chan struct{}
}

func newPeerLink(app string, ip string, port int) *peerLink {
	return &peerLink{
		app:   app,
		ip:    ip,
		port:  port,
		queue: make(chan *entities.Envelope, configs.PeerSendQueueSize),
		done:  make(chan struct{}),
	}
}

// PeerSenderPool 管理所有主动连接
type PeerSenderPool struct {
	mutex sync.Mutex
	links map[string]*peerLink
	// 对端回写的消息和发送失败都送入该通道
	inbound chan<- *entities.IncomeData
	tlsConf *tls.Config
	selfIP  string
	sigCtx  context.Context
}

// NewPeerSenderPool 创建主动连接管理器
//
// inbound: 控制端口的入站通道
// tlsConf: 客户端 TLS 配置
// selfIP: 本机 IP，填入 ping
// sigCtx: 中断信号上下文
func NewPeerSenderPool(inbound chan<- *entities.IncomeData, tlsConf *tls.Config, selfIP string, sigCtx context.Context) *PeerSenderPool {
	return &PeerSenderPool{
		links:   make(map[string]*peerLink),
		inbound: inbound,
		tlsConf: tlsConf,
		selfIP:  selfIP,
		sigCtx:  sigCtx,
	}
}

// CreateSender 登记对端应用的地址，地址变化时关闭旧连接
func (ps *PeerSenderPool) CreateSender(app string, ip string, port int) {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()
	if link, ok := ps.links[app]; ok {
		if link.ip == ip && link.port == port {
			return
		}
		link.close()
	}
	link := newPeerLink(app, ip, port)
	ps.links[app] = link
	go ps.runLink(link)
}

func (ps *PeerSenderPool) link(app string) *peerLink {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()
	return ps.links[app]
}

// dial 建立到对端的 TLS 连接，超时包含握手
func (ps *PeerSenderPool) dial(ip string, port int) (net.Conn, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: configs.PeerDialTimeout * time.Second},
		Config:    ps.tlsConf,
	}
	return dialer.DialContext(ps.sigCtx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
}

// Send 把信封放入对端应用的发送队列，不等待连接建立
//
// 只有对端应用未登记或队列已满时同步返回错误，之后的失败通过入站通道报告
func (ps *PeerSenderPool) Send(app string, env *entities.Envelope) error {
	link := ps.link(app)
	if link == nil {
		return fmt.Errorf("%w: %w: %s", constants.ErrTransport, constants.ErrNoSender, app)
	}
	select {
	case link.queue <- env:
		return nil
	case <-link.done:
		return fmt.Errorf("%w: sender of %s is closed", constants.ErrTransport, app)
	default:
		return fmt.Errorf("%w: send queue of %s is full", constants.ErrTransport, app)
	}
}

// runLink 按顺序送出对端应用队列里的信封，需要时先建立连接
func (ps *PeerSenderPool) runLink(link *peerLink) {
	for {
		select {
		case <-ps.sigCtx.Done():
			return
		case <-link.done:
			return
		case env := <-link.queue:
			if err := ps.deliver(link, env); err != nil {
				ps.reportFailure(link, env, err)
			}
		}
	}
}

// deliver 把信封交给连接的发送协程，连接不存在时先建立连接
func (ps *PeerSenderPool) deliver(link *peerLink, env *entities.Envelope) error {
	link.mutex.Lock()
	fc := link.fc
	link.mutex.Unlock()
	if fc == nil {
		conn, err := ps.dial(link.ip, link.port)
		if err != nil {
			return fmt.Errorf("%w: dial %s: %v", constants.ErrTransport, link.app, err)
		}
		link.mutex.Lock()
		if link.closed {
			link.mutex.Unlock()
			conn.Close()
			return fmt.Errorf("%w: sender of %s is closed", constants.ErrTransport, link.app)
		}
		fc = newFramedConn(conn)
		link.fc = fc
		link.mutex.Unlock()
		go ps.serve(link, fc)
	}
	if err := fc.Enqueue(env); err != nil {
		return fmt.Errorf("%w: %v", constants.ErrTransport, err)
	}
	return nil
}

// reportFailure 把发送失败作为响应送回入站通道，ping 失败只记日志
func (ps *PeerSenderPool) reportFailure(link *peerLink, env *entities.Envelope, err error) {
	if env.Kind == entities.KindPing {
		slog.Debug("Ping failed", "app", link.app, "error", err)
		return
	}
	slog.Warn("Failed to send to peer", "app", link.app, "ip", link.ip, "kind", env.Kind, "error", err)
	failure := &entities.IncomeData{
		Origin:      entities.OriginResponse,
		RemoteIP:    link.ip,
		SendFailure: &entities.SendFailure{App: link.app, Envelope: env, Err: err},
	}
	select {
	case ps.inbound <- failure:
	case <-ps.sigCtx.Done():
	}
}

// serve 维护主动连接，对端回写的消息作为响应处理
func (ps *PeerSenderPool) serve(link *peerLink, fc *framedConn) {
	go handleTCPConnectionSend(fc, ps.sigCtx)
	handleTCPConnectionRecv(fc, ps.inbound, entities.OriginResponse, ps.sigCtx)
	fc.Close()
	link.mutex.Lock()
	if link.fc == fc {
		// 下一次发送时重新连接
		link.fc = nil
	}
	link.mutex.Unlock()
	slog.Debug("Peer connection closed", "app", link.app, "ip", link.ip)
}

// SendOnce 建立一次性连接发送信封，读取一条回复后关闭，不阻塞调用方
func (ps *PeerSenderPool) SendOnce(ip string, port int, env *entities.Envelope) {
	go func() {
		conn, err := ps.dial(ip, port)
		if err != nil {
			slog.Debug("One-shot dial failed", "ip", ip, "port", port, "error", err)
			return
		}
		defer conn.Close()
		conn.SetDeadline(time.Now().Add(configs.TCPConnHeartbeatInterval * time.Second))
		if err := codec.WriteEnvelope(conn, env); err != nil {
			slog.Debug("One-shot send failed", "ip", ip, "kind", env.Kind, "error", err)
			return
		}
		for {
			frameType, payload, err := codec.ReadFrame(conn, configs.MaxFrameSize)
			if err != nil {
				slog.Debug("One-shot read failed", "ip", ip, "kind", env.Kind, "error", err)
				return
			}
			if frameType == codec.FrameHeartbeat {
				continue
			}
			select {
			case ps.inbound <- &entities.IncomeData{Raw: payload, Origin: entities.OriginResponse, RemoteIP: ip}:
			case <-ps.sigCtx.Done():
			}
			return
		}
	}()
}

// StartPing 定时向对端应用发送 ping，重复调用不会启动多个
func (ps *PeerSenderPool) StartPing(app string, localApp string) {
	link := ps.link(app)
	if link == nil {
		return
	}
	link.mutex.Lock()
	defer link.mutex.Unlock()
	if link.pingStop != nil || link.closed {
		return
	}
	stop := make(chan struct{})
	link.pingStop = stop
	go func() {
		ticker := time.NewTicker(configs.PeerPingInterval * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ps.sigCtx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				env, err := codec.NewEnvelope(entities.KindPing, &entities.PingPong{
					AppName:    localApp,
					TarAppName: app,
					IP:         ps.selfIP,
				})
				if err != nil {
					continue
				}
				if err := ps.Send(app, env); err != nil {
					slog.Debug("Ping not queued", "app", app, "error", err)
				}
			}
		}
	}()
}

// RemovePing 停止向对端应用发送 ping
func (ps *PeerSenderPool) RemovePing(app string) {
	link := ps.link(app)
	if link == nil {
		return
	}
	link.mutex.Lock()
	defer link.mutex.Unlock()
	if link.pingStop != nil {
		close(link.pingStop)
		link.pingStop = nil
	}
}

// close 停止发送协程和 ping 并关闭连接，可以重复调用
func (link *peerLink) close() {
	link.mutex.Lock()
	defer link.mutex.Unlock()
	if link.closed {
		return
	}
	link.closed = true
	close(link.done)
	if link.pingStop != nil {
		close(link.pingStop)
		link.pingStop = nil
	}
	if link.fc != nil {
		link.fc.Close()
		link.fc = nil
	}
}

// Close 关闭所有主动连接
func (ps *PeerSenderPool) Close() {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()
	for app, link := range ps.links {
		link.close()
		delete(ps.links, app)
	}
}
