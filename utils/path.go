package utils

// 路径相关的工具函数

import (
	"os"
	"path/filepath"
)

// ExecutablePath 获取当前进程可执行文件解析软链接后的绝对路径
func ExecutablePath() (string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(exePath)
}

// ResolveWorkDir 得到守护进程的工作目录，dir 为空时使用可执行文件所在目录
func ResolveWorkDir(dir string) (string, error) {
	if dir == "" {
		exePath, err := ExecutablePath()
		if err != nil {
			return "", err
		}
		return filepath.Dir(exePath), nil
	}
	return filepath.Abs(dir)
}

// autoStartCommand 自启时执行的命令行，固定工作目录以便找到 .env 和日志目录
func autoStartCommand(workDir string) ([]string, error) {
	exePath, err := ExecutablePath()
	if err != nil {
		return nil, err
	}
	workDir, err = ResolveWorkDir(workDir)
	if err != nil {
		return nil, err
	}
	return []string{exePath, "--work-dir", workDir}, nil
}
