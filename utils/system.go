package utils

import (
	"os"
	"os/user"
	"runtime"
)

// GetHostname 获取主机名，失败时返回 unknown
func GetHostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return name
}

// GetUsername 获取当前用户名
func GetUsername() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return os.Getenv("USERNAME")
}

// GetPlatform 获取平台名称
func GetPlatform() string {
	switch runtime.GOOS {
	case "windows":
		return "Windows"
	case "darwin":
		return "MacOS"
	case "linux":
		return "Linux"
	}
	return runtime.GOOS
}
