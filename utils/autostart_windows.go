//go:build windows

package utils

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"
)

// 当前用户登录时执行的程序列表
const runKeyPath = `Software\Microsoft\Windows\CurrentVersion\Run`

const runValueName = "CooperationDaemon"

// SetAutoStart 通过注册表 Run 项设置登录自启
//
// enable: 是否启用
// workDir: 自启时使用的工作目录，为空则使用可执行文件所在目录
func SetAutoStart(enable bool, workDir string) error {
	key, err := registry.OpenKey(registry.CURRENT_USER, runKeyPath, registry.QUERY_VALUE|registry.SET_VALUE)
	if err != nil {
		return fmt.Errorf("Unable to open autostart registry key: %w", err)
	}
	defer key.Close()
	if !enable {
		err := key.DeleteValue(runValueName)
		if err != nil && !errors.Is(err, registry.ErrNotExist) {
			return fmt.Errorf("Unable to delete autostart registry value: %w", err)
		}
		return nil
	}
	command, err := autoStartCommand(workDir)
	if err != nil {
		return fmt.Errorf("Unable to build autostart command: %w", err)
	}
	for i := range command {
		command[i] = windows.EscapeArg(command[i])
	}
	if err := key.SetStringValue(runValueName, strings.Join(command, " ")); err != nil {
		return fmt.Errorf("Unable to write autostart registry value: %w", err)
	}
	return nil
}
