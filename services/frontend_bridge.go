package services

// 本地前端通道: 回环地址上的 WebSocket 服务
//
// 前端通过 /ws?app=<应用名> 连接，收发 {type, app, json} 帧

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/somebottle/cooperation-daemon/configs"
	"github.com/somebottle/cooperation-daemon/constants"
	"github.com/somebottle/cooperation-daemon/entities"
	"github.com/somebottle/cooperation-daemon/metrics"
	"github.com/somebottle/cooperation-daemon/utils"
)

const (
	// 写入 WebSocket 消息的超时时间
	frontendWriteTimeout = 5 * time.Second
	// WebSocket ping 间隔
	frontendPingInterval = 30 * time.Second
)

// frontendClient 一个已连接的前端
type frontendClient struct {
	id        string
	app       string
	conn      *websocket.Conn
	out       chan *entities.FrontendEvent
	closed    chan struct{}
	closeOnce sync.Once
}

func (fc *frontendClient) close() {
	fc.closeOnce.Do(func() {
		close(fc.closed)
		fc.conn.Close()
	})
}

// FrontendBridge 前端桥，实现 FrontendSink 和 OfflineNotifier
type FrontendBridge struct {
	mutex   sync.RWMutex
	clients map[string]*frontendClient
	// 前端请求送入控制端口的入站通道
	inbound  chan<- *entities.IncomeData
	upgrader websocket.Upgrader
	// 等待宽限期结束的离线通知
	offlineMutex  sync.Mutex
	offlineTimers map[string]*time.Timer
	sigCtx        context.Context
}

// NewFrontendBridge 创建前端桥
//
// inbound: 控制端口的入站通道
// sigCtx: 中断信号上下文
func NewFrontendBridge(inbound chan<- *entities.IncomeData, sigCtx context.Context) *FrontendBridge {
	return &FrontendBridge{
		clients:       make(map[string]*frontendClient),
		inbound:       inbound,
		offlineTimers: make(map[string]*time.Timer),
		sigCtx:        sigCtx,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// ServeHTTP 升级为 WebSocket 并维护前端连接
func (fb *FrontendBridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	app := r.URL.Query().Get("app")
	if app == "" {
		http.Error(w, "missing app", http.StatusBadRequest)
		return
	}
	conn, err := fb.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("Front-end upgrade failed", "app", app, "error", err)
		return
	}
	client := &frontendClient{
		id:     utils.NewClientID(),
		app:    app,
		conn:   conn,
		out:    make(chan *entities.FrontendEvent, configs.OutboundChanSize),
		closed: make(chan struct{}),
	}
	fb.mutex.Lock()
	fb.clients[client.id] = client
	fb.mutex.Unlock()
	metrics.FrontendClientConnected()
	slog.Info("Front-end connected", "app", app, "client", client.id)

	defer func() {
		fb.mutex.Lock()
		delete(fb.clients, client.id)
		fb.mutex.Unlock()
		client.close()
		metrics.FrontendClientDisconnected()
		slog.Info("Front-end disconnected", "app", app, "client", client.id)
	}()
	go fb.writeLoop(client)
	fb.readLoop(client)
}

// readLoop 读取前端请求并送入入站通道
func (fb *FrontendBridge) readLoop(client *frontendClient) {
	for {
		var req entities.FrontendRequest
		if err := client.conn.ReadJSON(&req); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				slog.Debug("Front-end read ended", "client", client.id, "error", err)
			}
			return
		}
		if req.App == "" {
			req.App = client.app
		}
		select {
		case fb.inbound <- &entities.IncomeData{Origin: entities.OriginFrontend, Request: &req}:
		case <-client.closed:
			return
		case <-fb.sigCtx.Done():
			return
		}
	}
}

// writeLoop 把事件写给前端
func (fb *FrontendBridge) writeLoop(client *frontendClient) {
	ticker := time.NewTicker(frontendPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-client.closed:
			return
		case <-fb.sigCtx.Done():
			client.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
				time.Now().Add(frontendWriteTimeout))
			client.close()
			return
		case ev := <-client.out:
			client.conn.SetWriteDeadline(time.Now().Add(frontendWriteTimeout))
			if err := client.conn.WriteJSON(ev); err != nil {
				slog.Debug("Front-end write failed", "client", client.id, "error", err)
				client.close()
				return
			}
		case <-ticker.C:
			if err := client.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(frontendWriteTimeout)); err != nil {
				client.close()
				return
			}
		}
	}
}

// SendToFrontend 推送事件给指定应用的前端，app 为空时推送给所有前端
//
// 前端的出站通道满时最多等待一个写入超时，之后丢弃该事件
func (fb *FrontendBridge) SendToFrontend(app string, eventType string, jsonStr string) {
	fb.mutex.RLock()
	targets := make([]*frontendClient, 0, len(fb.clients))
	for _, client := range fb.clients {
		if app == "" || client.app == app {
			targets = append(targets, client)
		}
	}
	fb.mutex.RUnlock()
	if len(targets) == 0 {
		slog.Debug("No front-end for event", "app", app, "type", eventType)
		return
	}
	for _, client := range targets {
		ev := &entities.FrontendEvent{Type: eventType, App: client.app, JSON: jsonStr}
		select {
		case client.out <- ev:
		case <-client.closed:
		case <-time.After(frontendWriteTimeout):
			slog.Warn("Front-end outbound queue full, event dropped", "client", client.id, "type", eventType)
		}
	}
}

// NumClients 已连接的前端数
func (fb *FrontendBridge) NumClients() int {
	fb.mutex.RLock()
	defer fb.mutex.RUnlock()
	return len(fb.clients)
}

// PreprocessOffline 宽限期后通知所有前端该对端离线，期间收到 ping 会取消
func (fb *FrontendBridge) PreprocessOffline(app string, reason string, msg string) {
	notify := func() {
		slog.Info("Notifying front-end of offline peer", "app", app, "reason", reason)
		fb.SendToFrontend("", constants.FrontOffline, msg)
	}
	grace := configs.GetOfflineGrace()
	if grace <= 0 {
		notify()
		return
	}
	fb.offlineMutex.Lock()
	defer fb.offlineMutex.Unlock()
	if timer, ok := fb.offlineTimers[app]; ok {
		timer.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(grace, func() {
		fb.offlineMutex.Lock()
		current := fb.offlineTimers[app] == timer
		if current {
			delete(fb.offlineTimers, app)
		}
		fb.offlineMutex.Unlock()
		if current {
			notify()
		}
	})
	fb.offlineTimers[app] = timer
}

// CancelOffline 取消尚未发出的离线通知
func (fb *FrontendBridge) CancelOffline(app string) {
	fb.offlineMutex.Lock()
	defer fb.offlineMutex.Unlock()
	if timer, ok := fb.offlineTimers[app]; ok {
		timer.Stop()
		delete(fb.offlineTimers, app)
		slog.Debug("Offline notification cancelled", "app", app)
	}
}

// setUpHTTPServer 启动 HTTP 服务直到上下文结束，启动失败时通过 errChan 上报
//
// name: 服务名
// addr: 监听地址
// handler: 请求处理
// errChan: 致命错误通道
// sigCtx: 中断信号上下文
func setUpHTTPServer(name string, addr string, handler http.Handler, errChan chan<- error, sigCtx context.Context) {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-sigCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()
	slog.Info("HTTP server listening", "name", name, "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errChan <- err
	}
}
