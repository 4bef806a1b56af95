package constants

// 协作协议中的固定字符串与代码

const (
	// 登录成功时返回的令牌
	LoginTokenOK = "thatsgood"
	// 协议版本不一致时返回的令牌
	LoginTokenInvalidVersion = "Invalid version"
	// 认证失败时返回的令牌
	LoginTokenInvalidAuth = "Invalid auth code"
	// ping 中携带该标记表示仅用于搜索设备，不计入心跳
	SearchPingMarker = "search-ping"
	// 连接对端失败时发给前端的错误令牌
	TransportErrorToken = "connect peer failed"
)

// 共享连接申请的回复码
const (
	ShareConnectRefuse       = 0
	ShareConnectConfirm      = 1
	ShareConnectErrConnected = 2
	ShareConnectErrTransport = 3
)

// 文件传输结果码
const (
	TransResultOK      = 0
	TransResultIOError = 1
)

// 传输状态上报中表示任务完成的状态码
const TransStatusDone = 1

// 文件传输申请的子类型
const (
	ApplyTransApply   = 0
	ApplyTransConfirm = 1
	ApplyTransRefused = 2
)

// 离线通知原因
const (
	// 心跳超时
	OfflineNoPingTimeout = "NoPingTimeout"
	// 传输连接关闭
	OfflineConnectionCallbackTimeout = "ConnectionCallbackTimeout"
)
