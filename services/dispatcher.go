package services

// 入站消息分发: 每个监听端口一个分发协程，按消息来源和类型调用相应处理

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/somebottle/cooperation-daemon/codec"
	"github.com/somebottle/cooperation-daemon/configs"
	"github.com/somebottle/cooperation-daemon/constants"
	"github.com/somebottle/cooperation-daemon/entities"
	"github.com/somebottle/cooperation-daemon/metrics"
	"github.com/somebottle/cooperation-daemon/utils"
)

// DispatcherDeps 分发器依赖的组件
//
// Session 和 Display 只在控制端口的分发器上设置
type DispatcherDeps struct {
	Registry  *Comshare
	Liveness  *Liveness
	Auth      *PinAuthenticator
	Sender    PeerSender
	Replier   ReplyWriter
	Frontend  FrontendSink
	Discovery Discovery
	Transfers *TransferPool
	Session   *ShareSession
	Display   *DisplayServer
	// 本机 IP
	SelfIP string
}

// Dispatcher 入站通道的唯一消费者
type Dispatcher struct {
	DispatcherDeps
	// 通道名 (control / transfer)，用于日志和指标
	name    string
	inbound <-chan *entities.IncomeData
	// 等待登录结果的对端应用 -> 本机应用
	pendingLogins map[string]string
}

// NewDispatcher 创建分发器
//
// name: 通道名
// inbound: 入站通道
func NewDispatcher(name string, inbound <-chan *entities.IncomeData, deps DispatcherDeps) *Dispatcher {
	return &Dispatcher{
		DispatcherDeps: deps,
		name:           name,
		inbound:        inbound,
		pendingLogins:  make(map[string]string),
	}
}

// Run 循环消费入站通道直到上下文结束
func (d *Dispatcher) Run(ctx context.Context) {
	timer := time.NewTimer(configs.InboundRecvTimeout)
	defer timer.Stop()
	for {
		timer.Reset(configs.InboundRecvTimeout)
		select {
		case <-ctx.Done():
			slog.Debug("Dispatcher exiting", "channel", d.name)
			return
		case data, ok := <-d.inbound:
			if !ok {
				return
			}
			d.Handle(ctx, data)
		case <-timer.C:
			// 等待超时，检查一下是否需要退出
		}
	}
}

// Handle 处理一条入站数据，任何处理错误都不会中断分发循环
func (d *Dispatcher) Handle(ctx context.Context, data *entities.IncomeData) {
	if data.SendFailure != nil {
		d.handleSendFailure(data.SendFailure)
		return
	}
	if data.Origin == entities.OriginFrontend {
		if data.Request != nil {
			d.handleFrontendRequest(data.Request)
		}
		return
	}
	env := data.Envelope
	if env == nil {
		decoded, err := codec.Decode(data.Raw)
		if err != nil {
			slog.Warn("Dropped undecodable envelope", "channel", d.name, "remote", data.RemoteIP, "error", err)
			metrics.RecordDecodeError(d.name)
			return
		}
		env = decoded
	}
	metrics.RecordEnvelopeReceived(d.name, env.Kind.String())
	payload, err := codec.DecodePayload(env)
	if err != nil {
		slog.Warn("Dropped envelope with malformed payload", "channel", d.name, "kind", env.Kind, "error", err)
		metrics.RecordDecodeError(d.name)
		return
	}
	if data.Origin == entities.OriginResponse {
		d.handleResponse(data, env, payload)
		return
	}
	d.handleRemote(ctx, data, env, payload)
}

// reply 回复原连接
func (d *Dispatcher) reply(connID string, kind entities.MessageKind, payload any) {
	env, err := codec.NewEnvelope(kind, payload)
	if err != nil {
		slog.Error("Failed to build reply", "kind", kind, "error", err)
		return
	}
	d.replyEnvelope(connID, env)
}

func (d *Dispatcher) replyEnvelope(connID string, env *entities.Envelope) {
	if err := d.Replier.Reply(connID, env); err != nil {
		slog.Debug("Failed to reply", "channel", d.name, "conn", connID, "kind", env.Kind, "error", err)
	}
}

// ack 回复同类型的空消息
func (d *Dispatcher) ack(connID string, kind entities.MessageKind) {
	d.replyEnvelope(connID, codec.NewRawEnvelope(kind, "{}"))
}

func (d *Dispatcher) notifyFrontend(app string, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal front-end event", "type", eventType, "error", err)
		return
	}
	d.Frontend.SendToFrontend(app, eventType, string(data))
}

// remoteIPOf 优先使用负载中声明的 IP
func remoteIPOf(declared string, data *entities.IncomeData) string {
	if declared != "" {
		return declared
	}
	return data.RemoteIP
}

// ---------------- 对端主动发来的消息

func (d *Dispatcher) handleRemote(ctx context.Context, data *entities.IncomeData, env *entities.Envelope, payload any) {
	switch env.Kind {
	case entities.KindLoginInfo:
		d.handleLogin(data, payload.(*entities.LoginInfo))
	case entities.KindLoginConfirm, entities.KindLoginResult:
		slog.Debug("Ignored login confirmation from remote", "kind", env.Kind, "remote", data.RemoteIP)
	case entities.KindPing:
		d.handlePing(data, payload.(*entities.PingPong))
	case entities.KindTransJob, entities.KindFSData, entities.KindFSReport, entities.KindFSDone,
		entities.KindTransCancel, entities.KindTransPause, entities.KindTransResume:
		if d.Transfers == nil {
			slog.Warn("Transfer message on a channel without transfer workers", "channel", d.name, "kind", env.Kind)
			return
		}
		if err := d.Transfers.Submit(ctx, d.Replier, data.ConnID, env, payload); err != nil {
			slog.Debug("Transfer message dropped", "kind", env.Kind, "error", err)
		}
	case entities.KindFSInfo, entities.KindFSAction:
		d.ack(data.ConnID, env.Kind)
		d.Frontend.SendToFrontend("", constants.FrontTransferEvent, env.JSON)
	case entities.KindTransApply:
		d.ack(data.ConnID, env.Kind)
		d.handleTransApply(payload.(*entities.ApplyTransFiles))
	case entities.KindMisc:
		d.ack(data.ConnID, env.Kind)
		misc := payload.(*entities.MiscJSONCall)
		d.Frontend.SendToFrontend(misc.App, constants.FrontMiscMessage, misc.JSON)
	case entities.KindShareConnectApply, entities.KindShareConnectReply, entities.KindShareStart,
		entities.KindShareStartResult, entities.KindShareStop, entities.KindShareDisconnect,
		entities.KindDisconnectCallback, entities.KindShareConnectDisApply:
		d.ack(data.ConnID, env.Kind)
		d.handleShare(env, payload)
	case entities.KindSearchDeviceByIP:
		d.replyEnvelope(data.ConnID, codec.NewRawEnvelope(entities.KindSearchDeviceByIP, d.Discovery.SelfInfo()))
	case entities.KindDiscoverByTCP:
		info := payload.(*entities.DiscoverInfo)
		d.reply(data.ConnID, entities.KindDiscoverByTCP, &entities.DiscoverInfo{
			IP:  d.SelfIP,
			Msg: d.Discovery.UDPSimulatedPackage(),
		})
		d.Discovery.IngestPeerPackage(remoteIPOf(info.IP, data), info.Msg)
	default:
		slog.Debug("Unknown message kind, echoing", "kind", uint32(env.Kind), "remote", data.RemoteIP)
		d.replyEnvelope(data.ConnID, codec.NewRawEnvelope(entities.KindUnknown, env.JSON))
	}
}

// handleLogin 校验登录请求，成功后记录对端
func (d *Dispatcher) handleLogin(data *entities.IncomeData, info *entities.LoginInfo) {
	result := &entities.LoginResult{
		AppName: info.SelfAppName,
		Peer: entities.PeerInfo{
			Version:  configs.ProtocolVersion,
			Hostname: utils.GetHostname(),
			Platform: utils.GetPlatform(),
			Username: utils.GetUsername(),
		},
	}
	ip := remoteIPOf(info.IP, data)
	switch {
	case info.Version != configs.ProtocolVersion:
		result.Token = constants.LoginTokenInvalidVersion
		slog.Warn("Login rejected", "app", info.AppName, "ip", ip, "error", constants.ErrProtocolVersionMismatch, "version", info.Version)
	case !d.Auth.Verify(info.Auth):
		result.Token = constants.LoginTokenInvalidAuth
		slog.Warn("Login rejected", "app", info.AppName, "ip", ip, "error", constants.ErrAuthenticationFailure)
	default:
		// 共享或传输进行中也允许登录
		result.Token = constants.LoginTokenOK
		result.Result = true
	}
	metrics.RecordLogin(result.Token)

	if result.Result {
		d.Sender.CreateSender(info.AppName, ip, configs.GetControlPort())
		d.Registry.UpdateStatus(entities.PhaseTransferConnected)
		d.Registry.UpdateBinding(info.SelfAppName, info.AppName, ip)
		d.Liveness.OnLogin(info.AppName, ip)
		slog.Info("Peer logged in", "app", info.AppName, "target", info.SelfAppName, "ip", ip, "session", info.SessionID, "name", info.MyName)
	} else {
		d.Liveness.Remove(info.AppName)
	}
	d.reply(data.ConnID, entities.KindLoginResult, result)
	if result.Result {
		d.notifyFrontend(info.SelfAppName, constants.FrontConnectCallback, &entities.GenericResult{
			Result: 1,
			Msg:    ip + " " + info.AppName,
		})
	}
}

// handlePing 回复 ping，搜索用的 ping 不计入心跳
func (d *Dispatcher) handlePing(data *entities.IncomeData, ping *entities.PingPong) {
	d.reply(data.ConnID, entities.KindPing, &entities.PingPong{
		AppName:    ping.TarAppName,
		TarAppName: ping.AppName,
		IP:         d.SelfIP,
	})
	if strings.Contains(ping.IP, constants.SearchPingMarker) {
		return
	}
	d.Liveness.OnPing(ping.AppName, remoteIPOf(ping.IP, data))
}

// handleTransApply 把文件传输申请转给前端
func (d *Dispatcher) handleTransApply(apply *entities.ApplyTransFiles) {
	d.Liveness.Remove(apply.TarAppName)
	switch apply.Type {
	case constants.ApplyTransApply:
		d.Registry.UpdateStatus(entities.PhaseTransferApplied)
	case constants.ApplyTransConfirm:
		d.Registry.UpdateStatus(entities.PhaseSending)
	}
	forward := *apply
	if runtime.GOOS == "linux" {
		// Linux 前端按接收方视角读取应用名
		forward.AppName, forward.TarAppName = apply.TarAppName, apply.AppName
	}
	d.notifyFrontend(forward.AppName, constants.FrontApplyTransFile, &forward)
	if apply.Type != constants.ApplyTransApply {
		d.Sender.RemovePing(forward.AppName)
	}
}

// handleShare 共享相关消息交给共享会话
func (d *Dispatcher) handleShare(env *entities.Envelope, payload any) {
	if d.Session == nil {
		slog.Warn("Share message on a channel without share session", "channel", d.name, "kind", env.Kind)
		return
	}
	switch p := payload.(type) {
	case *entities.ShareConnectApply:
		if err := d.Session.OnApplyConnect(p, env.JSON); err != nil {
			slog.Debug("Share apply not accepted", "from", p.IP, "error", err)
		}
	case *entities.ShareConnectReply:
		d.Session.OnConnectReply(p, env.JSON)
	case *entities.ShareStart:
		d.Session.OnStart(p)
	case *entities.ShareStartRemoteReply:
		d.Session.OnStartResult(p)
	case *entities.ShareStop:
		d.Session.OnStop(p, env.JSON)
	case *entities.ShareDisConnect:
		if env.Kind == entities.KindDisconnectCallback {
			d.Session.OnDisconnectCallback(p, env.JSON)
		} else {
			d.Session.OnDisconnect(p, env.JSON)
		}
	case *entities.ShareConnectDisApply:
		d.Session.OnDisApply(p, env.JSON)
	}
}

// ---------------- 本机主动连接后对端回写的消息

func (d *Dispatcher) handleResponse(data *entities.IncomeData, env *entities.Envelope, payload any) {
	switch env.Kind {
	case entities.KindSearchDeviceByIP:
		if !d.Registry.CheckSearchRes(data.RemoteIP, time.Now()) {
			slog.Debug("Ignored stale search result", "ip", data.RemoteIP)
			return
		}
		d.Frontend.SendToFrontend("", constants.FrontSearchIPDeviceResult, env.JSON)
	case entities.KindDiscoverByTCP:
		info := payload.(*entities.DiscoverInfo)
		d.Discovery.IngestPeerPackage(remoteIPOf(info.IP, data), info.Msg)
	case entities.KindLoginResult:
		d.handleLoginResult(data, payload.(*entities.LoginResult))
	case entities.KindPing:
		pong := payload.(*entities.PingPong)
		d.Liveness.OnPing(pong.AppName, data.RemoteIP)
	default:
		slog.Debug("Response received", "channel", d.name, "kind", env.Kind, "remote", data.RemoteIP)
	}
}

// handleLoginResult 本机发起的登录得到结果
func (d *Dispatcher) handleLoginResult(data *entities.IncomeData, res *entities.LoginResult) {
	ok := res.Result && res.Token == constants.LoginTokenOK
	localApp, pending := d.pendingLogins[res.AppName]
	if !pending {
		slog.Debug("Unexpected login result", "app", res.AppName, "ip", data.RemoteIP)
		return
	}
	delete(d.pendingLogins, res.AppName)
	if ok {
		d.Registry.UpdateStatus(entities.PhaseTransferConnected)
		d.Registry.UpdateBinding(localApp, res.AppName, data.RemoteIP)
		d.Liveness.OnLogin(res.AppName, data.RemoteIP)
		d.Sender.StartPing(res.AppName, localApp)
		slog.Info("Logged in to peer", "app", res.AppName, "ip", data.RemoteIP, "host", res.Peer.Hostname, "platform", res.Peer.Platform)
	} else {
		slog.Warn("Login to peer failed", "app", res.AppName, "ip", data.RemoteIP, "token", res.Token)
	}
	result := &entities.GenericResult{Msg: data.RemoteIP + " " + res.AppName}
	if ok {
		result.Result = 1
	} else {
		result.Msg = res.Token
	}
	d.notifyFrontend(localApp, constants.FrontConnectCallback, result)
}

// handleSendFailure 本机发往对端的信封没能送出
func (d *Dispatcher) handleSendFailure(failure *entities.SendFailure) {
	env := failure.Envelope
	switch env.Kind {
	case entities.KindLoginInfo:
		localApp, pending := d.pendingLogins[failure.App]
		if !pending {
			return
		}
		delete(d.pendingLogins, failure.App)
		slog.Warn("Failed to connect peer", "app", failure.App, "error", failure.Err)
		d.notifyFrontend(localApp, constants.FrontConnectCallback, &entities.GenericResult{
			Result: 0,
			Msg:    constants.TransportErrorToken,
		})
	case entities.KindTransApply:
		payload, err := codec.DecodePayload(env)
		if apply, ok := payload.(*entities.ApplyTransFiles); err == nil && ok {
			d.transApplyFailed(apply, failure.Err)
		}
	case entities.KindShareConnectApply, entities.KindShareConnectReply, entities.KindShareStart,
		entities.KindShareStartResult, entities.KindShareStop, entities.KindShareDisconnect,
		entities.KindShareConnectDisApply:
		if d.Session != nil {
			d.Session.OnSendFailure(failure.App, env, failure.Err)
		}
	default:
		slog.Debug("Envelope not delivered", "app", failure.App, "kind", env.Kind, "error", failure.Err)
	}
}

// ---------------- 本地前端的请求

func (d *Dispatcher) handleFrontendRequest(req *entities.FrontendRequest) {
	decode := func(v any) bool {
		if err := json.Unmarshal([]byte(req.JSON), v); err != nil {
			slog.Warn("Malformed front-end request", "type", req.Type, "app", req.App, "error", err)
			return false
		}
		return true
	}
	switch req.Type {
	case constants.RequestConnect:
		var cr entities.ConnectRequest
		if decode(&cr) {
			d.connectPeer(&cr)
		}
	case constants.RequestSearchDevice:
		var sd entities.SearchDevice
		if decode(&sd) {
			d.searchDevice(&sd)
		}
	case constants.RequestTransApply:
		var apply entities.ApplyTransFiles
		if decode(&apply) {
			d.relayTransApply(&apply)
		}
	default:
		if d.Session == nil {
			slog.Warn("Front-end request on a channel without share session", "type", req.Type)
			return
		}
		d.handleShareRequest(req, decode)
	}
}

func (d *Dispatcher) handleShareRequest(req *entities.FrontendRequest, decode func(v any) bool) {
	switch req.Type {
	case constants.RequestShareApply:
		var apply entities.ShareConnectApply
		if decode(&apply) {
			if err := d.Session.RequestConnect(&apply); err != nil {
				slog.Warn("Share connect failed", "target", apply.TarAppName, "error", err)
			}
		}
	case constants.RequestShareReply:
		var decision entities.ShareReplyDecision
		if decode(&decision) {
			if err := d.Session.ConnectReply(&decision); err != nil {
				slog.Warn("Share reply failed", "error", err)
			}
		}
	case constants.RequestShareStart:
		var st entities.ShareStart
		if decode(&st) {
			if err := d.Session.RequestStart(&st); err != nil {
				slog.Warn("Share start failed", "error", err)
			}
		}
	case constants.RequestShareStop:
		var stop entities.ShareStop
		if decode(&stop) {
			d.Session.RequestStop(&stop)
		}
	case constants.RequestShareDisconnect:
		var sd entities.ShareDisConnect
		if decode(&sd) {
			d.Session.RequestDisconnect(&sd)
		}
	case constants.RequestShareDisApply:
		var sd entities.ShareConnectDisApply
		if decode(&sd) {
			d.Session.RequestDisApply(&sd)
		}
	case constants.RequestNeighbour:
		var nb entities.Neighbour
		if decode(&nb) {
			d.Session.SetNeighbour(nb.Direction)
		}
	case constants.RequestMotion:
		var motion entities.MotionEvent
		if decode(&motion) && d.Display != nil {
			d.Display.HandleMotion(motion.X, motion.Y)
		}
	case constants.RequestScreenSize:
		var size entities.ScreenSize
		if decode(&size) && d.Display != nil {
			d.Display.HandleScreenSizeChange(size.Width, size.Height)
		}
	default:
		slog.Warn("Unknown front-end request", "type", req.Type, "app", req.App)
	}
}

// connectPeer 向对端发起登录
func (d *Dispatcher) connectPeer(cr *entities.ConnectRequest) {
	d.Sender.CreateSender(cr.TarAppName, cr.TarIP, configs.GetControlPort())
	login := &entities.LoginInfo{
		AppName:     cr.AppName,
		SelfAppName: cr.TarAppName,
		IP:          d.SelfIP,
		Version:     configs.ProtocolVersion,
		SessionID:   utils.NewSessionID(),
		MyName:      utils.GetHostname(),
		MyUID:       utils.GetUsername(),
	}
	if cr.Pin != "" {
		login.Auth = base64.StdEncoding.EncodeToString([]byte(cr.Pin))
	}
	env, err := codec.NewEnvelope(entities.KindLoginInfo, login)
	if err == nil {
		err = d.Sender.Send(cr.TarAppName, env)
	}
	if err == nil {
		d.pendingLogins[cr.TarAppName] = cr.AppName
		return
	}
	slog.Warn("Failed to connect peer", "app", cr.TarAppName, "ip", cr.TarIP, "error", err)
	d.notifyFrontend(cr.AppName, constants.FrontConnectCallback, &entities.GenericResult{
		Result: 0,
		Msg:    constants.TransportErrorToken,
	})
}

// searchDevice 按 IP 搜索设备，结果作为响应回到入站通道
func (d *Dispatcher) searchDevice(sd *entities.SearchDevice) {
	d.Registry.SearchIP(sd.IP, time.Now())
	port := configs.GetControlPort()
	search, err := codec.NewEnvelope(entities.KindSearchDeviceByIP, &entities.SearchDevice{IP: d.SelfIP, Token: sd.Token})
	if err == nil {
		d.Sender.SendOnce(sd.IP, port, search)
	}
	discover, err := codec.NewEnvelope(entities.KindDiscoverByTCP, &entities.DiscoverInfo{
		IP:  d.SelfIP,
		Msg: d.Discovery.UDPSimulatedPackage(),
	})
	if err == nil {
		d.Sender.SendOnce(sd.IP, port, discover)
	}
}

// relayTransApply 把前端的文件传输申请 / 决定转发给对端
func (d *Dispatcher) relayTransApply(apply *entities.ApplyTransFiles) {
	env, err := codec.NewEnvelope(entities.KindTransApply, apply)
	if err == nil {
		err = d.Sender.Send(apply.TarAppName, env)
	}
	if err != nil {
		d.transApplyFailed(apply, err)
	}
}

func (d *Dispatcher) transApplyFailed(apply *entities.ApplyTransFiles, err error) {
	slog.Warn("Failed to relay transfer apply", "target", apply.TarAppName, "error", err)
	d.notifyFrontend(apply.AppName, constants.FrontSendStatus, &entities.GenericResult{
		Result: 0,
		Msg:    constants.TransportErrorToken,
	})
}
