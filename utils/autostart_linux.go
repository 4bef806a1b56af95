//go:build linux

package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const desktopEntryFormat = `[Desktop Entry]
Type=Application
Name=Cooperation Daemon
Exec=%s
X-GNOME-Autostart-enabled=true
NoDisplay=true
Comment=Cross-device cooperation daemon
Terminal=false
`

const desktopEntryFileName = "cooperation-daemon.desktop"

// quoteExecArg 按 desktop entry 的 Exec 规则给参数加引号
func quoteExecArg(arg string) string {
	if !strings.ContainsAny(arg, " \t\"'\\$`") {
		return arg
	}
	replacer := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "`", "\\`", `$`, `\$`)
	return `"` + replacer.Replace(arg) + `"`
}

// SetAutoStart 通过 XDG Autostart 条目设置登录自启
//
// enable: 是否启用
// workDir: 自启时使用的工作目录，为空则使用可执行文件所在目录
func SetAutoStart(enable bool, workDir string) error {
	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		return fmt.Errorf("Unable to get user config directory: %w", err)
	}
	autostartDir := filepath.Join(userConfigDir, "autostart")
	entryPath := filepath.Join(autostartDir, desktopEntryFileName)
	if !enable {
		if err := os.Remove(entryPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("Unable to remove autostart desktop entry: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(autostartDir, 0755); err != nil {
		return fmt.Errorf("Unable to create autostart directory: %w", err)
	}
	command, err := autoStartCommand(workDir)
	if err != nil {
		return fmt.Errorf("Unable to build autostart command: %w", err)
	}
	for i := range command {
		command[i] = quoteExecArg(command[i])
	}
	content := fmt.Sprintf(desktopEntryFormat, strings.Join(command, " "))
	if err := os.WriteFile(entryPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("Unable to write autostart desktop entry: %w", err)
	}
	return nil
}
