package entities

// 各类消息的 JSON 负载，字段名与对端保持一致

// LoginInfo 登录请求
type LoginInfo struct {
	// 对端应用名
	AppName string `json:"appName"`
	// 本机应用名 (对端要连接的应用)
	SelfAppName string `json:"selfappName"`
	IP          string `json:"ip"`
	Version     string `json:"version"`
	// base64 编码的 PIN 码，为空表示无认证
	Auth      string `json:"auth"`
	SessionID string `json:"session_id"`
	MyName    string `json:"my_name"`
	MyUID     string `json:"my_uid"`
}

// PeerInfo 登录成功后返回的本机描述
type PeerInfo struct {
	Version  string `json:"version"`
	Hostname string `json:"hostname"`
	Platform string `json:"platform"`
	Username string `json:"username"`
}

// LoginResult 登录结果
type LoginResult struct {
	Peer    PeerInfo `json:"peer"`
	Token   string   `json:"token"`
	AppName string   `json:"appName"`
	Result  bool     `json:"result"`
}

// PingPong 心跳
type PingPong struct {
	AppName    string `json:"appName"`
	TarAppName string `json:"tarAppname"`
	IP         string `json:"ip"`
}

// GenericResult 通用结果，推送给前端
type GenericResult struct {
	ID     int    `json:"id"`
	Result int    `json:"result"`
	Msg    string `json:"msg"`
	IsSelf bool   `json:"isself"`
}

// ShareConnectApply 共享连接申请
type ShareConnectApply struct {
	AppName    string `json:"appName"`
	TarAppName string `json:"tarAppname"`
	IP         string `json:"ip"`
	TarIP      string `json:"tarIp,omitempty"`
	Data       string `json:"data,omitempty"`
}

// ShareConnectReply 共享连接申请的回复
type ShareConnectReply struct {
	AppName    string `json:"appName"`
	TarAppName string `json:"tarAppname"`
	IP         string `json:"ip"`
	Reply      int    `json:"reply"`
}

// FlowInfo 光标流转信息
type FlowInfo struct {
	Direction FlowDirection `json:"direction"`
	X         int           `json:"x"`
	Y         int           `json:"y"`
}

// ShareStart 开始共享
type ShareStart struct {
	AppName    string `json:"appName"`
	TarAppName string `json:"tarAppname"`
	Config     string `json:"config,omitempty"`
	// 共享激活后携带光标流转信息
	Flow *FlowInfo `json:"flow,omitempty"`
}

// ShareStartReply 开始共享的结果，推送给前端
type ShareStartReply struct {
	Result   bool   `json:"result"`
	IsRemote bool   `json:"isRemote"`
	ErrorMsg string `json:"errorMsg,omitempty"`
}

// ShareStartRemoteReply 被控端回复控制端的开始共享结果
type ShareStartRemoteReply struct {
	AppName    string `json:"appName"`
	TarAppName string `json:"tarAppname"`
	Result     bool   `json:"result"`
	ErrorMsg   string `json:"errorMsg,omitempty"`
}

// ShareStop 停止共享
type ShareStop struct {
	AppName    string `json:"appName"`
	TarAppName string `json:"tarAppname"`
	Flags      int    `json:"flags"`
}

// ShareDisConnect 断开共享
type ShareDisConnect struct {
	AppName    string `json:"appName"`
	TarAppName string `json:"tarAppname"`
	Msg        string `json:"msg,omitempty"`
}

// ShareConnectDisApply 撤回共享申请
type ShareConnectDisApply struct {
	AppName    string `json:"appName"`
	TarAppName string `json:"tarAppname"`
	IP         string `json:"ip"`
}

// ApplyTransFiles 文件传输申请
type ApplyTransFiles struct {
	AppName    string `json:"appname"`
	TarAppName string `json:"tarAppname"`
	Type       int    `json:"type"`
	Session    string `json:"session,omitempty"`
	Selfip     string `json:"selfip,omitempty"`
	Selfport   int    `json:"selfport,omitempty"`
}

// TransJobRequest 传输任务请求
type TransJobRequest struct {
	AppName string `json:"appname"`
	JobID   string `json:"job_id,omitempty"`
	Path    string `json:"path"`
	Save    string `json:"save,omitempty"`
	Total   int64  `json:"total,omitempty"`
}

// FileChunk 文件数据块描述，数据本身放在二进制负载中
type FileChunk struct {
	JobID  string `json:"job_id"`
	Name   string `json:"name"`
	Offset int64  `json:"offset"`
	Size   int64  `json:"size"`
}

// TransReport 传输进度 / 状态上报
type TransReport struct {
	JobID  string `json:"job_id"`
	Name   string `json:"name,omitempty"`
	Status int    `json:"status"`
	Error  string `json:"error,omitempty"`
}

// TransJobControl 取消 / 暂停 / 恢复传输任务
type TransJobControl struct {
	AppName string `json:"appname"`
	JobID   string `json:"job_id"`
}

// FileTransResponse 传输相关请求的回复
type FileTransResponse struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	Result int    `json:"result"`
}

// FileInfoRecord 文件 / 目录信息
type FileInfoRecord struct {
	JobID string `json:"job_id"`
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	IsDir bool   `json:"is_dir"`
}

// FileAction 文件系统操作请求
type FileAction struct {
	JobID  string `json:"job_id"`
	Action string `json:"action"`
	Path   string `json:"path"`
}

// DiscoverInfo 通过 TCP 交换的发现信息
type DiscoverInfo struct {
	IP  string `json:"ip"`
	Msg string `json:"msg"`
}

// SearchDevice 按 IP 搜索设备的请求
type SearchDevice struct {
	IP    string `json:"ip"`
	Token string `json:"token,omitempty"`
}

// MiscJSONCall 杂项消息，透传给前端
type MiscJSONCall struct {
	App  string `json:"app"`
	JSON string `json:"json"`
}

// OfflineNotice 离线通知
type OfflineNotice struct {
	App     string `json:"app,omitempty"`
	IP      string `json:"ip,omitempty"`
	AppName string `json:"appName,omitempty"`
	Offline bool   `json:"offline,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// ShareReplyDecision 前端对共享申请的决定
type ShareReplyDecision struct {
	AppName    string `json:"appName"`
	TarAppName string `json:"tarAppname"`
	Reply      int    `json:"reply"`
}

// MotionEvent 前端上报的光标位置
type MotionEvent struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// ScreenSize 屏幕尺寸
type ScreenSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Neighbour 某个方向上相邻的设备
type Neighbour struct {
	Direction FlowDirection `json:"direction"`
	AppName   string        `json:"appName"`
}

// ConnectRequest 前端请求登录对端
type ConnectRequest struct {
	AppName    string `json:"appName"`
	TarAppName string `json:"tarAppname"`
	TarIP      string `json:"tarIp"`
	// 明文 PIN 码，为空表示无认证
	Pin string `json:"pin,omitempty"`
}
