package services

// 协议引擎依赖的外部协作方接口

import "github.com/somebottle/cooperation-daemon/entities"

// PeerSender 主动向对端发送消息的一方
type PeerSender interface {
	// CreateSender 为对端应用登记连接地址，连接在第一次发送时建立
	CreateSender(app string, ip string, port int)
	// Send 把信封交给对端应用的发送队列，不等待连接建立，之后的失败通过入站通道报告
	Send(app string, env *entities.Envelope) error
	// SendOnce 建立一次性连接发送信封，收到的回复作为响应送回入站通道
	SendOnce(ip string, port int, env *entities.Envelope)
	// StartPing 登录成功后开始定时向对端应用发送 ping
	StartPing(app string, localApp string)
	// RemovePing 停止向对端应用发送 ping
	RemovePing(app string)
}

// ReplyWriter 把回复写回接收请求的连接
type ReplyWriter interface {
	Reply(connID string, env *entities.Envelope) error
}

// FrontendSink 推送事件给本地前端
type FrontendSink interface {
	// SendToFrontend 推送事件，app 为空时推送给所有前端
	SendToFrontend(app string, eventType string, jsonStr string)
}

// TransferJobs 文件传输任务协作方，只关心请求 / 结果契约
type TransferJobs interface {
	// HandleRemoteRequestJob 处理对端发起的传输任务，返回任务所属应用名
	HandleRemoteRequestJob(req *entities.TransJobRequest) (app string, ok bool)
	// HandleFSData 写入一个文件数据块
	HandleFSData(chunk *entities.FileChunk, data []byte) bool
	// HandleTransReport 处理传输状态上报
	HandleTransReport(report *entities.TransReport) bool
	// HandleCancelJob 取消任务
	HandleCancelJob(ctrl *entities.TransJobControl) bool
	// HandlePauseJob 暂停任务
	HandlePauseJob(ctrl *entities.TransJobControl) bool
	// HandleResumeJob 恢复任务
	HandleResumeJob(ctrl *entities.TransJobControl) bool
}

// Discovery 局域网发现协作方
type Discovery interface {
	// SelfInfo 本机节点描述 (JSON)
	SelfInfo() string
	// UDPSimulatedPackage 模拟组播发现包的内容，用于通过 TCP 发现设备
	UDPSimulatedPackage() string
	// IngestPeerPackage 处理对端的发现包
	IngestPeerPackage(ip string, payload string)
	// SetShareAnnouncement 更新对外公布的共享连接状态，connected 为 false 时清空 ip
	SetShareAnnouncement(connected bool, ip string)
}

// FlowManager 多屏拓扑协作方，决定光标能否流出到相邻设备
type FlowManager interface {
	TryFlowOut(direction entities.FlowDirection, x int, y int) bool
}

// Pointer 本地光标控制
type Pointer interface {
	MoveMouse(x int, y int)
	HideMouse(hide bool)
}
