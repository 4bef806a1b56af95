package services

// 键鼠共享会话状态机
//
// 状态: None -> ApplyPending -> Connected -> Active -> None
// 会话只由控制端口的分发协程驱动，不需要加锁

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/somebottle/cooperation-daemon/codec"
	"github.com/somebottle/cooperation-daemon/configs"
	"github.com/somebottle/cooperation-daemon/constants"
	"github.com/somebottle/cooperation-daemon/entities"
	"github.com/somebottle/cooperation-daemon/metrics"
)

// ShareSession 共享会话
type ShareSession struct {
	registry  *Comshare
	liveness  *Liveness
	sender    PeerSender
	frontend  FrontendSink
	discovery Discovery
	// 本机 IP
	selfIP string

	role  entities.ShareRole
	state entities.ShareState
	// 本机应用名
	localApp string
	// 对端应用名
	peerApp string
	// 申请中的对端 IP
	pendingIP string
	// 已建立共享连接的对端 IP
	sharedIP string
	// 相邻设备所在方向
	neighbour entities.FlowDirection
	// 收到光标流入时的处理
	onFlowIn func(flow entities.FlowInfo)
}

// NewShareSession 创建共享会话，初始状态为 None
func NewShareSession(registry *Comshare, liveness *Liveness, sender PeerSender, frontend FrontendSink, discovery Discovery, selfIP string) *ShareSession {
	return &ShareSession{
		registry:  registry,
		liveness:  liveness,
		sender:    sender,
		frontend:  frontend,
		discovery: discovery,
		selfIP:    selfIP,
		state:     entities.ShareNone,
		neighbour: entities.FlowRight,
	}
}

// Info 返回会话快照
func (ss *ShareSession) Info() entities.ShareSessionInfo {
	info := entities.ShareSessionInfo{
		Role:     ss.role,
		State:    ss.state,
		SharedIP: ss.sharedIP,
	}
	if ss.role == entities.RoleController {
		info.ControllerApp, info.TargetApp = ss.localApp, ss.peerApp
	} else {
		info.ControllerApp, info.TargetApp = ss.peerApp, ss.localApp
	}
	return info
}

// State 当前会话状态
func (ss *ShareSession) State() entities.ShareState {
	return ss.state
}

// SetNeighbour 设置相邻设备所在方向
func (ss *ShareSession) SetNeighbour(direction entities.FlowDirection) {
	ss.neighbour = direction
}

// SetFlowInHandler 设置光标流入时的处理函数
func (ss *ShareSession) SetFlowInHandler(handler func(flow entities.FlowInfo)) {
	ss.onFlowIn = handler
}

func (ss *ShareSession) setState(state entities.ShareState) {
	ss.state = state
	metrics.SetShareState(int(state))
}

// reset 回到 None 状态并清理共享信息
func (ss *ShareSession) reset() {
	ss.setState(entities.ShareNone)
	ss.pendingIP = ""
	ss.sharedIP = ""
	ss.discovery.SetShareAnnouncement(false, "")
	ss.registry.UpdateStatus(entities.PhaseDisconnected)
}

// sendToPeer 发送负载给对端应用
func (ss *ShareSession) sendToPeer(app string, kind entities.MessageKind, payload any) error {
	env, err := codec.NewEnvelope(kind, payload)
	if err != nil {
		return err
	}
	return ss.sender.Send(app, env)
}

// notifyFrontend 推送负载给前端
func (ss *ShareSession) notifyFrontend(app string, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal front-end event", "type", eventType, "error", err)
		return
	}
	ss.frontend.SendToFrontend(app, eventType, string(data))
}

// ---------------- 控制端 (本机发起)

// RequestConnect 前端请求向对端申请共享连接
func (ss *ShareSession) RequestConnect(req *entities.ShareConnectApply) error {
	ss.sender.CreateSender(req.TarAppName, req.TarIP, configs.GetControlPort())
	ss.registry.UpdateBinding(req.AppName, req.TarAppName, req.TarIP)
	apply := &entities.ShareConnectApply{
		AppName:    req.AppName,
		TarAppName: req.TarAppName,
		IP:         ss.selfIP,
		Data:       req.Data,
	}
	if err := ss.sendToPeer(req.TarAppName, entities.KindShareConnectApply, apply); err != nil {
		slog.Warn("Failed to send share connect apply", "target", req.TarAppName, "ip", req.TarIP, "error", err)
		ss.applyFailed(req.AppName, req.TarAppName, req.TarIP)
		return err
	}
	ss.role = entities.RoleController
	ss.localApp = req.AppName
	ss.peerApp = req.TarAppName
	ss.pendingIP = req.TarIP
	ss.setState(entities.ShareApplyPending)
	return nil
}

// applyFailed 共享申请没能送到对端，告诉前端并回到 None
func (ss *ShareSession) applyFailed(localApp string, peerApp string, ip string) {
	ss.notifyFrontend(localApp, constants.FrontShareApplyConnectReply, &entities.ShareConnectReply{
		AppName:    peerApp,
		TarAppName: localApp,
		IP:         ip,
		Reply:      constants.ShareConnectErrTransport,
	})
	ss.reset()
}

// OnConnectReply 控制端收到被控端对共享申请的回复
//
// 只接受正在等待的对端应用的回复，其他回复直接丢弃
func (ss *ShareSession) OnConnectReply(reply *entities.ShareConnectReply, rawJSON string) {
	if ss.role != entities.RoleController || ss.state != entities.ShareApplyPending || reply.AppName != ss.peerApp {
		slog.Warn("Ignored unexpected share connect reply", "from", reply.AppName, "ip", reply.IP, "state", ss.state)
		return
	}
	if reply.Reply == constants.ShareConnectConfirm {
		ss.sharedIP = reply.IP
		if ss.sharedIP == "" {
			ss.sharedIP = ss.pendingIP
		}
		ss.pendingIP = ""
		ss.setState(entities.ShareConnected)
		ss.discovery.SetShareAnnouncement(true, ss.sharedIP)
		ss.registry.UpdateStatus(entities.PhaseShareConnected)
	} else {
		slog.Info("Share connect apply not accepted", "peer", reply.AppName, "reply", reply.Reply)
		ss.reset()
	}
	ss.frontend.SendToFrontend(reply.TarAppName, constants.FrontShareApplyConnectReply, rawJSON)
}

// RequestStart 前端请求开始共享
func (ss *ShareSession) RequestStart(st *entities.ShareStart) error {
	if ss.state != entities.ShareConnected || ss.role != entities.RoleController {
		return fmt.Errorf("share session is %s, cannot start", ss.state)
	}
	start := &entities.ShareStart{AppName: ss.localApp, TarAppName: ss.peerApp, Config: st.Config}
	if err := ss.sendToPeer(ss.peerApp, entities.KindShareStart, start); err != nil {
		ss.startFailed(err)
		return err
	}
	return nil
}

// startFailed 开始共享没能送到对端，告诉前端并回到 None
func (ss *ShareSession) startFailed(err error) {
	ss.notifyFrontend(ss.localApp, constants.FrontShareStartResult, &entities.ShareStartReply{
		Result:   false,
		IsRemote: true,
		ErrorMsg: err.Error(),
	})
	ss.reset()
}

// OnStartResult 控制端收到被控端的开始共享结果，只改变本机状态
//
// 只在已连接且结果来自当前对端应用时处理
func (ss *ShareSession) OnStartResult(res *entities.ShareStartRemoteReply) {
	if ss.role != entities.RoleController || ss.state != entities.ShareConnected || res.AppName != ss.peerApp {
		slog.Warn("Ignored unexpected share start result", "from", res.AppName, "state", ss.state)
		return
	}
	if res.Result {
		ss.setState(entities.ShareActive)
		ss.registry.UpdateStatus(entities.PhaseShareActive)
	} else {
		ss.reset()
	}
	ss.notifyFrontend(res.TarAppName, constants.FrontShareStartResult, &entities.ShareStartReply{
		Result:   res.Result,
		IsRemote: true,
		ErrorMsg: res.ErrorMsg,
	})
}

// ---------------- 被控端 (对端发起)

// OnApplyConnect 被控端收到共享申请
//
// 已经和另一个 IP 建立了共享连接时直接回复 ErrConnected，会话状态不变
func (ss *ShareSession) OnApplyConnect(apply *entities.ShareConnectApply, rawJSON string) error {
	if ss.sharedIP != "" && ss.sharedIP != apply.IP {
		reply := &entities.ShareConnectReply{
			AppName:    apply.TarAppName,
			TarAppName: apply.AppName,
			IP:         ss.selfIP,
			Reply:      constants.ShareConnectErrConnected,
		}
		// 应用名可能和当前对端相同，使用一次性连接回复，不覆盖当前对端的发送地址
		if env, err := codec.NewEnvelope(entities.KindShareConnectReply, reply); err == nil {
			ss.sender.SendOnce(apply.IP, configs.GetControlPort(), env)
		}
		slog.Info("Rejected share apply, already connected", "applicant", apply.IP, "shared", ss.sharedIP)
		return constants.ErrAlreadyConnected
	}
	ss.sender.CreateSender(apply.AppName, apply.IP, configs.GetControlPort())
	ss.registry.UpdateBinding(apply.TarAppName, apply.AppName, apply.IP)
	ss.role = entities.RoleTarget
	ss.localApp = apply.TarAppName
	ss.peerApp = apply.AppName
	ss.pendingIP = apply.IP
	ss.setState(entities.ShareApplyPending)
	ss.registry.UpdateStatus(entities.PhaseShareConnected)
	ss.frontend.SendToFrontend(apply.TarAppName, constants.FrontShareApplyConnect, rawJSON)
	return nil
}

// ConnectReply 被控端用户对共享申请作出决定
func (ss *ShareSession) ConnectReply(decision *entities.ShareReplyDecision) error {
	if ss.state != entities.ShareApplyPending || ss.role != entities.RoleTarget {
		return fmt.Errorf("no pending share apply, session is %s", ss.state)
	}
	reply := &entities.ShareConnectReply{
		AppName:    ss.localApp,
		TarAppName: ss.peerApp,
		IP:         ss.selfIP,
		Reply:      decision.Reply,
	}
	err := ss.sendToPeer(ss.peerApp, entities.KindShareConnectReply, reply)
	if decision.Reply == constants.ShareConnectConfirm && err == nil {
		ss.sharedIP = ss.pendingIP
		ss.pendingIP = ""
		ss.setState(entities.ShareConnected)
		ss.discovery.SetShareAnnouncement(true, ss.sharedIP)
		ss.registry.UpdateStatus(entities.PhaseShareConnected)
		return nil
	}
	ss.reset()
	return err
}

// OnStart 被控端收到开始共享
//
// 会话已激活且携带光标流转信息时视为光标流入
func (ss *ShareSession) OnStart(st *entities.ShareStart) {
	if ss.state == entities.ShareActive && st.Flow != nil {
		if ss.onFlowIn != nil {
			ss.onFlowIn(*st.Flow)
		}
		return
	}
	result := &entities.ShareStartRemoteReply{
		AppName:    st.TarAppName,
		TarAppName: st.AppName,
		Result:     ss.state == entities.ShareConnected || ss.state == entities.ShareActive,
	}
	if result.Result {
		ss.setState(entities.ShareActive)
		ss.registry.UpdateStatus(entities.PhaseShareActive)
	} else {
		result.ErrorMsg = fmt.Sprintf("share session is %s", ss.state)
		ss.reset()
	}
	if err := ss.sendToPeer(st.AppName, entities.KindShareStartResult, result); err != nil {
		slog.Warn("Failed to send share start result", "peer", st.AppName, "error", err)
	}
	ss.notifyFrontend(st.TarAppName, constants.FrontShareStartReply, &entities.ShareStartReply{
		Result:   result.Result,
		IsRemote: false,
		ErrorMsg: result.ErrorMsg,
	})
}

// ---------------- 双方

// RequestStop 前端请求停止共享
func (ss *ShareSession) RequestStop(stop *entities.ShareStop) {
	peer := ss.peerApp
	if peer == "" {
		peer = stop.TarAppName
	}
	msg := &entities.ShareStop{AppName: stop.AppName, TarAppName: peer, Flags: stop.Flags}
	if err := ss.sendToPeer(peer, entities.KindShareStop, msg); err != nil {
		slog.Warn("Failed to send share stop", "peer", peer, "error", err)
	}
	ss.reset()
	ss.notifyFrontend(stop.AppName, constants.FrontShareStop, msg)
}

// OnStop 收到对端停止共享
func (ss *ShareSession) OnStop(stop *entities.ShareStop, rawJSON string) {
	ss.reset()
	ss.frontend.SendToFrontend(stop.TarAppName, constants.FrontShareStop, rawJSON)
}

// dropPeer 清理对端的心跳相关记录
func (ss *ShareSession) dropPeer(peer string) {
	if peer == "" {
		return
	}
	ss.sender.RemovePing(peer)
	ss.liveness.Remove(peer)
}

// RequestDisconnect 前端请求断开共享
func (ss *ShareSession) RequestDisconnect(req *entities.ShareDisConnect) {
	peer := req.TarAppName
	msg := &entities.ShareDisConnect{AppName: req.AppName, TarAppName: peer, Msg: req.Msg}
	if err := ss.sendToPeer(peer, entities.KindShareDisconnect, msg); err != nil {
		slog.Warn("Failed to send share disconnect", "peer", peer, "error", err)
	}
	ss.reset()
	ss.registry.RemoveBinding(req.AppName)
	ss.dropPeer(peer)
}

// OnDisconnect 收到对端断开共享
func (ss *ShareSession) OnDisconnect(sd *entities.ShareDisConnect, rawJSON string) {
	ss.reset()
	ss.registry.RemoveBinding(sd.TarAppName)
	ss.frontend.SendToFrontend(sd.TarAppName, constants.FrontShareDisconnect, rawJSON)
	ss.dropPeer(sd.AppName)
}

// OnDisconnectCallback 收到对端的断开连接回调
func (ss *ShareSession) OnDisconnectCallback(sd *entities.ShareDisConnect, rawJSON string) {
	ss.reset()
	ss.frontend.SendToFrontend(sd.TarAppName, constants.FrontDisconnectCallback, rawJSON)
	ss.dropPeer(sd.AppName)
}

// RequestDisApply 前端撤回共享申请
func (ss *ShareSession) RequestDisApply(req *entities.ShareConnectDisApply) {
	msg := &entities.ShareConnectDisApply{AppName: req.AppName, TarAppName: req.TarAppName, IP: ss.selfIP}
	if err := ss.sendToPeer(req.TarAppName, entities.KindShareConnectDisApply, msg); err != nil {
		slog.Warn("Failed to send share disapply", "peer", req.TarAppName, "error", err)
	}
	ss.reset()
	ss.dropPeer(req.TarAppName)
}

// OnDisApply 收到对端撤回共享申请
func (ss *ShareSession) OnDisApply(sd *entities.ShareConnectDisApply, rawJSON string) {
	ss.reset()
	ss.frontend.SendToFrontend(sd.TarAppName, constants.FrontShareDisApplyConnect, rawJSON)
	ss.dropPeer(sd.AppName)
}

// OnSendFailure 发往对端应用的共享消息异步发送失败
//
// 失败的消息仍属于当前会话时按同步失败处理，否则只记日志
func (ss *ShareSession) OnSendFailure(app string, env *entities.Envelope, err error) {
	current := app == ss.peerApp
	switch env.Kind {
	case entities.KindShareConnectApply:
		if current && ss.role == entities.RoleController && ss.state == entities.ShareApplyPending {
			ss.applyFailed(ss.localApp, ss.peerApp, ss.pendingIP)
			return
		}
	case entities.KindShareStart:
		payload, decodeErr := codec.DecodePayload(env)
		if st, ok := payload.(*entities.ShareStart); decodeErr == nil && ok && st.Flow != nil {
			slog.Warn("Failed to flow out", "peer", app, "error", err)
			return
		}
		if current && ss.role == entities.RoleController && ss.state == entities.ShareConnected {
			ss.startFailed(err)
			return
		}
	case entities.KindShareConnectReply, entities.KindShareStartResult:
		// 控制端没有收到同意或开始结果，两边状态已经不一致
		if current && ss.role == entities.RoleTarget && (ss.state == entities.ShareConnected || ss.state == entities.ShareActive) {
			slog.Warn("Failed to answer share controller", "peer", app, "kind", env.Kind, "error", err)
			ss.reset()
			return
		}
	}
	slog.Debug("Share message not delivered", "peer", app, "kind", env.Kind, "state", ss.state, "error", err)
}

// ---------------- 光标流转

// TryFlowOut 会话激活且方向上有相邻设备时，把光标流转信息发给对端
func (ss *ShareSession) TryFlowOut(direction entities.FlowDirection, x int, y int) bool {
	if ss.state != entities.ShareActive || direction != ss.neighbour {
		return false
	}
	start := &entities.ShareStart{
		AppName:    ss.localApp,
		TarAppName: ss.peerApp,
		Flow:       &entities.FlowInfo{Direction: direction, X: x, Y: y},
	}
	if err := ss.sendToPeer(ss.peerApp, entities.KindShareStart, start); err != nil {
		slog.Warn("Failed to flow out", "direction", direction, "error", err)
		return false
	}
	return true
}
