// Package metrics 提供守护进程的 Prometheus 指标
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// 收到的信封数量
	envelopesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coop_daemon_envelopes_received_total",
			Help: "Total number of envelopes received by the dispatcher",
		},
		[]string{"channel", "kind"},
	)

	// 发出的信封数量
	envelopesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coop_daemon_envelopes_sent_total",
			Help: "Total number of envelopes written to peers",
		},
		[]string{"kind"},
	)

	// 解码失败数量
	decodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coop_daemon_decode_errors_total",
			Help: "Total number of envelopes dropped because they could not be decoded",
		},
		[]string{"channel"},
	)

	// 离线通知数量
	offlineNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coop_daemon_offline_notifications_total",
			Help: "Total number of peer offline notifications",
		},
		[]string{"reason"},
	)

	// 登录结果
	loginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coop_daemon_login_attempts_total",
			Help: "Total login attempts from peers",
		},
		[]string{"result"},
	)

	// 当前连接阶段
	connectionPhase = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coop_daemon_connection_phase",
			Help: "Current connection phase of the daemon",
		},
	)

	// 当前共享会话状态
	shareState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coop_daemon_share_state",
			Help: "Current share session state",
		},
	)

	// 当前连接数
	connectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "coop_daemon_connections_active",
			Help: "Number of active peer connections",
		},
		[]string{"port"},
	)

	// 心跳跟踪中的对端数量
	trackedPeers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coop_daemon_tracked_peers",
			Help: "Number of peers tracked by the liveness supervisor",
		},
	)

	// 前端连接数
	frontendClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coop_daemon_frontend_clients",
			Help: "Number of connected front-end clients",
		},
	)
)

// Handler 返回 /metrics 的 HTTP 处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordEnvelopeReceived(channel, kind string) {
	envelopesReceived.WithLabelValues(channel, kind).Inc()
}

func RecordEnvelopeSent(kind string) {
	envelopesSent.WithLabelValues(kind).Inc()
}

func RecordDecodeError(channel string) {
	decodeErrors.WithLabelValues(channel).Inc()
}

func RecordOffline(reason string) {
	offlineNotifications.WithLabelValues(reason).Inc()
}

func RecordLogin(result string) {
	loginAttempts.WithLabelValues(result).Inc()
}

func SetConnectionPhase(phase int) {
	connectionPhase.Set(float64(phase))
}

func SetShareState(state int) {
	shareState.Set(float64(state))
}

func ConnectionOpened(port string) {
	connectionsActive.WithLabelValues(port).Inc()
}

func ConnectionClosed(port string) {
	connectionsActive.WithLabelValues(port).Dec()
}

func SetTrackedPeers(n int) {
	trackedPeers.Set(float64(n))
}

func FrontendClientConnected() {
	frontendClients.Inc()
}

func FrontendClientDisconnected() {
	frontendClients.Dec()
}
