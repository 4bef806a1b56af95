package constants

// 推送给前端的事件类型

const (
	FrontConnectCallback        = "FRONT_CONNECT_CB"
	FrontApplyTransFile         = "FRONT_APPLY_TRANS_FILE"
	FrontShareApplyConnect      = "FRONT_SHARE_APPLY_CONNECT"
	FrontShareApplyConnectReply = "FRONT_SHARE_APPLY_CONNECT_REPLY"
	FrontShareDisconnect        = "FRONT_SHARE_DISCONNECT"
	FrontShareDisApplyConnect   = "FRONT_SHARE_DISAPPLY_CONNECT"
	FrontShareStart             = "FRONT_SHARE_START"
	FrontShareStartReply        = "FRONT_SHARE_START_REPLY"
	FrontShareStartResult       = "FRONT_SHARE_START_RES"
	FrontShareStop              = "FRONT_SHARE_STOP"
	FrontDisconnectCallback     = "FRONT_DISCONNECT_CB"
	FrontSendStatus             = "FRONT_SEND_STATUS"
	FrontPeerCallback           = "FRONT_PEER_CB"
	FrontSearchIPDeviceResult   = "FRONT_SEARCH_IP_DEVICE_RESULT"
	FrontMiscMessage            = "FRONT_MISC_MSG"
	FrontTransferEvent          = "FRONT_TRANS_EVENT"
	FrontOffline                = "FRONT_OFFLINE"
	FrontPointer                = "FRONT_POINTER"
)

// 前端发给守护进程的请求类型

const (
	RequestShareApply      = "share_apply"
	RequestShareReply      = "share_reply"
	RequestShareStart      = "share_start"
	RequestShareStop       = "share_stop"
	RequestShareDisconnect = "share_disconnect"
	RequestShareDisApply   = "share_disapply"
	RequestSearchDevice    = "search_device"
	RequestMotion          = "motion"
	RequestScreenSize      = "screen_size"
	RequestNeighbour       = "neighbour"
	RequestConnect         = "connect"
	RequestTransApply      = "trans_apply"
)
