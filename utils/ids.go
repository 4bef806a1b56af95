package utils

// 各类标识符的生成

import "github.com/google/uuid"

// NewSessionID 生成登录会话 ID
func NewSessionID() string {
	return uuid.NewString()
}

// NewJobID 生成传输任务 ID
func NewJobID() string {
	return uuid.NewString()
}

// NewClientID 生成前端连接 ID
func NewClientID() string {
	return "fe-" + uuid.NewString()
}

// NewConnID 生成 TCP 连接 ID
func NewConnID(remoteAddr string) string {
	return remoteAddr + "#" + uuid.NewString()[:8]
}
