package services

// 局域网发现: 维护本机节点描述，收集对端节点并通知前端

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/somebottle/cooperation-daemon/configs"
	"github.com/somebottle/cooperation-daemon/constants"
	"github.com/somebottle/cooperation-daemon/entities"
	"github.com/somebottle/cooperation-daemon/utils"
)

// peerCallback 推送给前端的节点变化
type peerCallback struct {
	IP   string            `json:"ip"`
	Find bool              `json:"find"`
	Info entities.NodeInfo `json:"info"`
}

// DiscoveryJob 实现 Discovery
type DiscoveryJob struct {
	// 保护 self
	mutex    sync.RWMutex
	self     entities.NodeInfo
	lounge   *PeerLounge
	frontend FrontendSink
}

// NewDiscoveryJob 创建发现任务
//
// selfIP: 本机 IP
// apps: 本机提供的应用名
// frontend: 节点变化时通知前端
func NewDiscoveryJob(selfIP string, apps []string, frontend FrontendSink) *DiscoveryJob {
	return &DiscoveryJob{
		self: entities.NodeInfo{
			Hostname: utils.GetHostname(),
			IPv4:     selfIP,
			Apps:     apps,
			Version:  configs.ProtocolVersion,
			Platform: utils.GetPlatform(),
			Username: utils.GetUsername(),
		},
		lounge:   NewPeerLounge(configs.DiscoveryPeerLifetime * time.Second),
		frontend: frontend,
	}
}

func (dj *DiscoveryJob) selfJSON() string {
	dj.mutex.RLock()
	defer dj.mutex.RUnlock()
	data, err := json.Marshal(&dj.self)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// SelfInfo 本机节点描述
func (dj *DiscoveryJob) SelfInfo() string {
	return dj.selfJSON()
}

// UDPSimulatedPackage 与组播公告相同的内容
func (dj *DiscoveryJob) UDPSimulatedPackage() string {
	return dj.selfJSON()
}

// SelfIP 本机 IP
func (dj *DiscoveryJob) SelfIP() string {
	dj.mutex.RLock()
	defer dj.mutex.RUnlock()
	return dj.self.IPv4
}

// IngestPeerPackage 记录对端节点，新节点或信息变化时通知前端
func (dj *DiscoveryJob) IngestPeerPackage(ip string, payload string) {
	if ip == "" || ip == dj.SelfIP() {
		return
	}
	var info entities.NodeInfo
	if err := json.Unmarshal([]byte(payload), &info); err != nil {
		slog.Debug("Ignored invalid discovery package", "from", ip, "error", err)
		return
	}
	if info.IPv4 == "" {
		info.IPv4 = ip
	}
	if dj.lounge.Upsert(ip, info, time.Now()) {
		slog.Debug("Peer discovered", "ip", ip, "hostname", info.Hostname)
		dj.notify(ip, true, info)
	}
}

// SetShareAnnouncement 更新公告中的共享连接状态
func (dj *DiscoveryJob) SetShareAnnouncement(connected bool, ip string) {
	dj.mutex.Lock()
	defer dj.mutex.Unlock()
	if connected {
		dj.self.ShareConnectIP = ip
	} else {
		dj.self.ShareConnectIP = ""
	}
}

// Prune 清理过期节点并通知前端
func (dj *DiscoveryJob) Prune(now time.Time) {
	for _, info := range dj.lounge.Prune(now) {
		slog.Debug("Peer expired", "ip", info.IPv4, "hostname", info.Hostname)
		dj.notify(info.IPv4, false, info)
	}
}

// Peer 获取已发现的节点
func (dj *DiscoveryJob) Peer(ip string) (entities.NodeInfo, bool) {
	return dj.lounge.Get(ip)
}

func (dj *DiscoveryJob) notify(ip string, find bool, info entities.NodeInfo) {
	data, err := json.Marshal(&peerCallback{IP: ip, Find: find, Info: info})
	if err != nil {
		return
	}
	dj.frontend.SendToFrontend("", constants.FrontPeerCallback, string(data))
}

// RunPruner 定时清理过期节点直到上下文结束
func (dj *DiscoveryJob) RunPruner(sigCtx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-sigCtx.Done():
			return
		case now := <-ticker.C:
			dj.Prune(now)
		}
	}
}
