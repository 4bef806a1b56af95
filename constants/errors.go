package constants

import "errors"

// 协议处理中的错误类型
var (
	ErrProtocolVersionMismatch = errors.New("protocol version mismatch")
	ErrAuthenticationFailure   = errors.New("authentication failure")
	ErrAlreadyConnected        = errors.New("share connection already exists")
	ErrTransport               = errors.New("transport error")
	ErrNoSender                = errors.New("no sender for target app")
)
