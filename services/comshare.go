package services

// 会话注册表模块，维护连接阶段、应用绑定以及按 IP 搜索设备的缓存

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/somebottle/cooperation-daemon/configs"
	"github.com/somebottle/cooperation-daemon/entities"
	"github.com/somebottle/cooperation-daemon/metrics"
)

// Comshare 会话注册表
//
// 绑定表使用读写锁，查询只取读锁；连接阶段是单个原子值，读取不加锁
type Comshare struct {
	phase atomic.Int32

	// 保护 targetApps 和 targetIPs
	bindMutex sync.RWMutex
	// 应用名 -> 对端应用名
	targetApps map[string]string
	// 应用名 -> 对端 IP
	targetIPs map[string]string

	// 保护 searchIPs，和绑定表分开
	searchMutex sync.Mutex
	// 搜索令牌 -> 发起时间
	searchIPs map[string]time.Time
}

// NewComshare 创建会话注册表，初始阶段为 Idle
func NewComshare() *Comshare {
	return &Comshare{
		targetApps: make(map[string]string),
		targetIPs:  make(map[string]string),
		searchIPs:  make(map[string]time.Time),
	}
}

// UpdateStatus 更新当前连接阶段
func (cs *Comshare) UpdateStatus(phase entities.ConnectionPhase) {
	cs.phase.Store(int32(phase))
	metrics.SetConnectionPhase(int(phase))
}

// CurrentStatus 读取当前连接阶段
func (cs *Comshare) CurrentStatus() entities.ConnectionPhase {
	return entities.ConnectionPhase(cs.phase.Load())
}

// UpdateBinding 记录应用绑定
//
// appName: 应用名
// targetAppName: 对端应用名
// ip: 对端 IP
func (cs *Comshare) UpdateBinding(appName string, targetAppName string, ip string) {
	cs.bindMutex.Lock()
	defer cs.bindMutex.Unlock()
	cs.targetApps[appName] = targetAppName
	cs.targetIPs[appName] = ip
}

// RemoveBinding 删除应用绑定，只在显式断开时调用
func (cs *Comshare) RemoveBinding(appName string) {
	cs.bindMutex.Lock()
	defer cs.bindMutex.Unlock()
	delete(cs.targetApps, appName)
	delete(cs.targetIPs, appName)
}

// TargetAppName 查询绑定的对端应用名，不存在时返回空字符串
func (cs *Comshare) TargetAppName(appName string) string {
	cs.bindMutex.RLock()
	defer cs.bindMutex.RUnlock()
	return cs.targetApps[appName]
}

// TargetIP 查询绑定的对端 IP，不存在时返回空字符串
func (cs *Comshare) TargetIP(appName string) string {
	cs.bindMutex.RLock()
	defer cs.bindMutex.RUnlock()
	return cs.targetIPs[appName]
}

// Bindings 返回当前所有绑定的快照，键为应用名，值为 [对端应用名, 对端 IP]
func (cs *Comshare) Bindings() map[string][2]string {
	cs.bindMutex.RLock()
	defer cs.bindMutex.RUnlock()
	snapshot := make(map[string][2]string, len(cs.targetApps))
	for app, target := range cs.targetApps {
		snapshot[app] = [2]string{target, cs.targetIPs[app]}
	}
	return snapshot
}

// CheckTransCanConnect 检查当前是否允许建立新的传输连接
func (cs *Comshare) CheckTransCanConnect() bool {
	switch cs.CurrentStatus() {
	case entities.PhaseSending, entities.PhaseReceiving, entities.PhaseShareConnected, entities.PhaseShareActive:
		return false
	}
	return true
}

// CheckCanTransJob 检查当前是否允许开始传输任务
func (cs *Comshare) CheckCanTransJob() bool {
	switch cs.CurrentStatus() {
	case entities.PhaseSending, entities.PhaseReceiving, entities.PhaseShareActive:
		return false
	}
	return true
}

// SearchIP 记录一次按 IP 搜索设备的请求
//
// token: 搜索令牌 (一般为被搜索的 IP)
// at: 发起时间
func (cs *Comshare) SearchIP(token string, at time.Time) {
	cs.searchMutex.Lock()
	defer cs.searchMutex.Unlock()
	cs.searchIPs[token] = at
}

// CheckSearchRes 检查搜索结果是否对应一个仍然有效的请求，命中后删除该请求
//
// token: 搜索令牌
// at: 收到结果的时间
func (cs *Comshare) CheckSearchRes(token string, at time.Time) bool {
	cs.searchMutex.Lock()
	defer cs.searchMutex.Unlock()
	requestedAt, ok := cs.searchIPs[token]
	if !ok {
		return false
	}
	delete(cs.searchIPs, token)
	return at.Sub(requestedAt) <= configs.GetSearchResultTimeout()
}
