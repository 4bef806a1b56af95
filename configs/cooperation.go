package configs

import "time"

// 协作协议相关配置

const (
	// 协议版本，登录时必须一致
	ProtocolVersion = "1.0"
	// 入站通道缓冲区大小
	InboundChanSize = 10
	// 入站通道单次等待的超时时间
	InboundRecvTimeout = 300 * time.Millisecond
	// 发往前端的出站通道缓冲区大小
	OutboundChanSize = 20
	// 心跳检查周期
	PingTickInterval = time.Second
	// 连续丢失多少次心跳判定离线
	MaxMissedBeats = 3
	// 传输任务 worker 数量
	TransferWorkerCount = 4
	// 传输任务队列大小
	TransferJobQueueSize = 32
)

var (
	// 登录 PIN 码
	pinCode = ""
	// 无认证登录时是否需要用户确认
	needConfirm = false
	// 离线预处理的宽限时间，期间收到 ping 会取消离线通知
	offlineGrace = 0 * time.Second
	// 按 IP 搜索设备结果的有效期
	searchResultTimeout = 5 * time.Second
	// 文件接收目录
	receiveDir = "received"
	// 本机应用名
	localAppName = "dde-cooperation"
)

// GetPinCode 获取登录 PIN 码
func GetPinCode() string {
	return pinCode
}

// SetPinCode 设置登录 PIN 码
func SetPinCode(pin string) {
	pinCode = pin
}

// IsNeedConfirm 无认证登录时是否需要用户确认
func IsNeedConfirm() bool {
	return needConfirm
}

// SetNeedConfirm 设置无认证登录时是否需要用户确认
func SetNeedConfirm(confirm bool) {
	needConfirm = confirm
}

// GetOfflineGrace 获取离线预处理宽限时间
func GetOfflineGrace() time.Duration {
	return offlineGrace
}

// SetOfflineGrace 设置离线预处理宽限时间
func SetOfflineGrace(d time.Duration) {
	offlineGrace = d
}

// GetSearchResultTimeout 获取搜索结果有效期
func GetSearchResultTimeout() time.Duration {
	return searchResultTimeout
}

// SetSearchResultTimeout 设置搜索结果有效期
func SetSearchResultTimeout(d time.Duration) {
	searchResultTimeout = d
}

// GetReceiveDir 获取文件接收目录
func GetReceiveDir() string {
	return receiveDir
}

// SetReceiveDir 设置文件接收目录
func SetReceiveDir(dir string) {
	receiveDir = dir
}

// GetLocalAppName 获取本机应用名
func GetLocalAppName() string {
	return localAppName
}

// SetLocalAppName 设置本机应用名
func SetLocalAppName(name string) {
	localAppName = name
}
