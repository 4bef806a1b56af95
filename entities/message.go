package entities

import "strconv"

// 协作协议消息相关实体

// MessageKind 消息类型标签
type MessageKind uint32

const (
	KindUnknown              MessageKind = 10
	KindLoginResult          MessageKind = 100
	KindLoginInfo            MessageKind = 999
	KindLoginConfirm         MessageKind = 1000
	KindTransJob             MessageKind = 1001
	KindFSAction             MessageKind = 1003
	KindFSData               MessageKind = 1004
	KindFSDone               MessageKind = 1005
	KindFSInfo               MessageKind = 1006
	KindFSReport             MessageKind = 1007
	KindTransCancel          MessageKind = 1008
	KindTransApply           MessageKind = 1009
	KindMisc                 MessageKind = 1010
	KindPing                 MessageKind = 1011
	KindTransPause           MessageKind = 1012
	KindTransResume          MessageKind = 1013
	KindShareConnectApply    MessageKind = 1014
	KindShareConnectReply    MessageKind = 1015
	KindShareDisconnect      MessageKind = 1016
	KindShareStart           MessageKind = 1017
	KindShareStartResult     MessageKind = 1018
	KindShareStop            MessageKind = 1019
	KindDisconnectCallback   MessageKind = 1020
	KindShareConnectDisApply MessageKind = 1021
	KindSearchDeviceByIP     MessageKind = 1022
	KindDiscoverByTCP        MessageKind = 1023
)

var kindNames = map[MessageKind]string{
	KindUnknown:              "UNKNOWN",
	KindLoginResult:          "LOGIN_RESULT",
	KindLoginInfo:            "LOGIN_INFO",
	KindLoginConfirm:         "LOGIN_CONFIRM",
	KindTransJob:             "TRANSJOB",
	KindFSAction:             "FS_ACTION",
	KindFSData:               "FS_DATA",
	KindFSDone:               "FS_DONE",
	KindFSInfo:               "FS_INFO",
	KindFSReport:             "FS_REPORT",
	KindTransCancel:          "TRANS_CANCEL",
	KindTransApply:           "TRANS_APPLY",
	KindMisc:                 "MISC",
	KindPing:                 "RPC_PING",
	KindTransPause:           "TRANS_PAUSE",
	KindTransResume:          "TRANS_RESUME",
	KindShareConnectApply:    "APPLY_SHARE_CONNECT",
	KindShareConnectReply:    "APPLY_SHARE_CONNECT_RES",
	KindShareDisconnect:      "APPLY_SHARE_DISCONNECT",
	KindShareStart:           "SHARE_START",
	KindShareStartResult:     "SHARE_START_RES",
	KindShareStop:            "SHARE_STOP",
	KindDisconnectCallback:   "DISCONNECT_CB",
	KindShareConnectDisApply: "DISAPPLY_SHARE_CONNECT",
	KindSearchDeviceByIP:     "SEARCH_DEVICE_BY_IP",
	KindDiscoverByTCP:        "DISCOVER_BY_TCP",
}

// String 返回消息类型的名称，用于日志和指标标签
func (k MessageKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "KIND_" + strconv.FormatUint(uint64(k), 10)
}

// Known 判断是否为协议中定义的消息类型
func (k MessageKind) Known() bool {
	_, ok := kindNames[k]
	return ok
}

// Envelope 在所有通道上传递的消息单元
type Envelope struct {
	Kind MessageKind
	// JSON 负载
	JSON string
	// 二进制负载，仅文件数据消息携带
	Binary []byte
}

// Origin 入站消息的来源
type Origin int

const (
	// OriginRemote 对端主动连接本机发来的消息，回复写回原连接
	OriginRemote Origin = iota
	// OriginResponse 本机主动连接对端后，对端回写的消息
	OriginResponse
	// OriginFrontend 本地前端发来的请求
	OriginFrontend
)

// IncomeData 入站通道中的一条数据
type IncomeData struct {
	Envelope *Envelope
	// 原始字节，未解码时使用
	Raw []byte
	Origin Origin
	// 接收该消息的连接标识，用于回写
	ConnID string
	// 对端 IP
	RemoteIP string
	// 前端请求时的请求内容
	Request *FrontendRequest
	// 本机主动发送的信封没能送出时携带失败信息
	SendFailure *SendFailure
}

// SendFailure 发往对端应用的信封在连接或写入阶段失败
type SendFailure struct {
	App      string
	Envelope *Envelope
	Err      error
}

// FrontendEvent 推送给前端的事件
type FrontendEvent struct {
	// 事件类型，见 constants.Front*
	Type string `json:"type"`
	// 目标前端应用名
	App string `json:"app"`
	// JSON 内容
	JSON string `json:"json"`
}

// FrontendRequest 前端发来的请求
type FrontendRequest struct {
	Type string `json:"type"`
	App  string `json:"app"`
	JSON string `json:"json"`
}
