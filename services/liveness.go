package services

// 心跳存活监测模块，记录每个对端应用丢失的心跳次数，超时后通知前端离线

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/somebottle/cooperation-daemon/configs"
	"github.com/somebottle/cooperation-daemon/constants"
	"github.com/somebottle/cooperation-daemon/entities"
	"github.com/somebottle/cooperation-daemon/metrics"
)

// OfflineNotifier 接收离线通知的一方 (前端桥)
type OfflineNotifier interface {
	// PreprocessOffline 开始离线预处理，宽限期内没有被取消才真正通知前端
	PreprocessOffline(app string, reason string, msg string)
	// CancelOffline 取消某个应用的离线预处理
	CancelOffline(app string)
}

// offlineItem 待发出的离线通知
type offlineItem struct {
	app    string
	reason string
	msg    string
}

// Liveness 心跳存活监测器
type Liveness struct {
	// 保护 missedBeats 和 remoteIPs
	mutex sync.RWMutex
	// 应用名 -> 连续丢失的心跳数
	missedBeats map[string]int
	// 应用名 -> 最近一次 ping 的 IP，用于连接断开时反查应用
	remoteIPs map[string]string
	notifier  OfflineNotifier
	maxMissed int
	interval  time.Duration
	started   atomic.Bool
	sigCtx    context.Context
}

// NewLiveness 创建心跳存活监测器，定时器在第一次登录或 ping 时才启动
//
// notifier: 离线通知接收方
// sigCtx: 中断信号上下文，用于停止定时器
func NewLiveness(notifier OfflineNotifier, sigCtx context.Context) *Liveness {
	return &Liveness{
		missedBeats: make(map[string]int),
		remoteIPs:   make(map[string]string),
		notifier:    notifier,
		maxMissed:   configs.MaxMissedBeats,
		interval:    configs.PingTickInterval,
		sigCtx:      sigCtx,
	}
}

// Start 启动心跳检查定时器，重复调用无副作用
func (l *Liveness) Start() {
	if !l.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()
		for {
			select {
			case <-l.sigCtx.Done():
				return
			case <-ticker.C:
				l.Tick()
			}
		}
	}()
}

// OnLogin 对端登录成功后开始跟踪其心跳
func (l *Liveness) OnLogin(app string, ip string) {
	l.mutex.Lock()
	l.missedBeats[app] = 0
	if ip != "" {
		l.remoteIPs[app] = ip
	}
	tracked := len(l.missedBeats)
	l.mutex.Unlock()
	metrics.SetTrackedPeers(tracked)
	l.Start()
}

// OnPing 收到对端 ping，重置丢失计数，记录 IP，并取消可能正在进行的离线预处理
func (l *Liveness) OnPing(app string, ip string) {
	l.mutex.Lock()
	l.missedBeats[app] = 0
	l.remoteIPs[app] = ip
	tracked := len(l.missedBeats)
	l.mutex.Unlock()
	metrics.SetTrackedPeers(tracked)
	l.notifier.CancelOffline(app)
	l.Start()
}

// Tick 心跳检查，每个周期调用一次
//
// 丢失计数先加一，达到上限的应用被通知离线并移除，每个应用只会通知一次
func (l *Liveness) Tick() {
	var offline []offlineItem
	l.mutex.Lock()
	for app, missed := range l.missedBeats {
		missed++
		if missed < l.maxMissed {
			l.missedBeats[app] = missed
			continue
		}
		msg, _ := json.Marshal(entities.OfflineNotice{App: app, Offline: true})
		offline = append(offline, offlineItem{app: app, reason: constants.OfflineNoPingTimeout, msg: string(msg)})
		delete(l.missedBeats, app)
		delete(l.remoteIPs, app)
	}
	tracked := len(l.missedBeats)
	l.mutex.Unlock()
	metrics.SetTrackedPeers(tracked)
	// 释放锁后再通知
	for _, item := range offline {
		slog.Warn("Peer missed too many heartbeats, reporting offline", "app", item.app)
		metrics.RecordOffline(item.reason)
		l.notifier.PreprocessOffline(item.app, item.reason, item.msg)
	}
}

// OnTransportClosed 传输连接断开，通知所有最近从该 IP ping 过的应用离线
func (l *Liveness) OnTransportClosed(ip string) {
	var offline []offlineItem
	l.mutex.Lock()
	for app, remoteIP := range l.remoteIPs {
		if remoteIP != ip {
			continue
		}
		msg, _ := json.Marshal(entities.OfflineNotice{IP: remoteIP, AppName: app})
		offline = append(offline, offlineItem{app: app, reason: constants.OfflineConnectionCallbackTimeout, msg: string(msg)})
		delete(l.remoteIPs, app)
	}
	l.mutex.Unlock()
	for _, item := range offline {
		slog.Warn("Connection offline", "app", item.app, "ip", ip)
		metrics.RecordOffline(item.reason)
		l.notifier.PreprocessOffline(item.app, item.reason, item.msg)
	}
}

// Remove 停止跟踪某个应用的心跳
func (l *Liveness) Remove(app string) {
	l.mutex.Lock()
	delete(l.missedBeats, app)
	delete(l.remoteIPs, app)
	tracked := len(l.missedBeats)
	l.mutex.Unlock()
	metrics.SetTrackedPeers(tracked)
}

// Missed 查询应用当前丢失的心跳数，第二个返回值表示是否在跟踪中
func (l *Liveness) Missed(app string) (int, bool) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	missed, ok := l.missedBeats[app]
	return missed, ok
}

// RemoteIP 查询应用最近一次 ping 的 IP
func (l *Liveness) RemoteIP(app string) (string, bool) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	ip, ok := l.remoteIPs[app]
	return ip, ok
}
