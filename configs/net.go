package configs

// 网络处理相关常量
const (
	// 默认的控制端口 (登录 / ping / 共享协商)
	DefaultControlPort = 7790
	// 默认的大文件传输端口
	DefaultTransferPort = 7791
	// 默认的局域网发现组播地址
	DefaultDiscoveryMulticastIPv4 = "230.1.1.1"
	// 默认的局域网发现组播端口
	DefaultDiscoveryPort = "51598"
	// 组播数据读取时字节缓冲区大小
	MulticastReadBufferSize = 65536 // 64 KiB
	// 组播数据读取超时时间
	MulticastReadTimeout = 15 // 秒
	// 重试监听组播的间隔时间
	MulticastListenRetryInterval = 3 // 秒
	// 本机信息组播广播间隔
	DiscoveryAnnounceInterval = 5 // 秒
	// 发现的对端节点信息缓存时间
	DiscoveryPeerLifetime = 30 // 秒
	// 单个监听端口允许的最大连接数
	MaxTCPConnections = 255
	// TCP 连接心跳 (保活) 间隔时间
	TCPConnHeartbeatInterval = 15 // 秒
	// TCP 连接心跳发送间隔时间
	TCPConnHeartbeatSendInterval = 8 // 秒
	// TCP 服务重启间隔时间
	TCPServerRestartInterval = 3 // 秒
	// 单个帧允许的最大长度 (含文件块)
	MaxFrameSize = 8 * 1024 * 1024 // 8 MiB
	// TCP 发送通道缓冲区大小
	TCPSocketSendChanSize = 32
	// 写入 TCP 数据的超时时间
	TCPSocketWriteTimeout = 3 // 秒
	// 连接对端的超时时间
	PeerDialTimeout = 3 // 秒
	// 对端 ping 的发送间隔
	PeerPingInterval = 1 // 秒
	// 每个对端应用待发送信封的队列大小，连接建立前的信封在这里排队
	PeerSendQueueSize = 32
)

var (
	// 控制端口
	controlPort = DefaultControlPort
	// 传输端口
	transferPort = DefaultTransferPort
	// 前端 WebSocket 桥监听地址
	frontendAddr = "127.0.0.1:7792"
	// Prometheus 指标监听地址，空则不启动
	metricsAddr = ""
	// 发现组播地址
	discoveryMulticastAddr = DefaultDiscoveryMulticastIPv4
	// 发现组播端口
	discoveryPort = DefaultDiscoveryPort
)

// GetControlPort 获取控制端口
func GetControlPort() int {
	return controlPort
}

// SetControlPort 设置控制端口
func SetControlPort(port int) {
	controlPort = port
}

// GetTransferPort 获取传输端口
func GetTransferPort() int {
	return transferPort
}

// SetTransferPort 设置传输端口
func SetTransferPort(port int) {
	transferPort = port
}

// GetFrontendAddr 获取前端桥监听地址
func GetFrontendAddr() string {
	return frontendAddr
}

// SetFrontendAddr 设置前端桥监听地址
func SetFrontendAddr(addr string) {
	frontendAddr = addr
}

// GetMetricsAddr 获取指标监听地址
func GetMetricsAddr() string {
	return metricsAddr
}

// SetMetricsAddr 设置指标监听地址
func SetMetricsAddr(addr string) {
	metricsAddr = addr
}

// GetDiscoveryMulticastAddr 获取发现组播地址
func GetDiscoveryMulticastAddr() string {
	return discoveryMulticastAddr
}

// SetDiscoveryMulticastAddr 设置发现组播地址
func SetDiscoveryMulticastAddr(addr string) {
	discoveryMulticastAddr = addr
}

// GetDiscoveryPort 获取发现组播端口
func GetDiscoveryPort() string {
	return discoveryPort
}

// SetDiscoveryPort 设置发现组播端口
func SetDiscoveryPort(port string) {
	discoveryPort = port
}
