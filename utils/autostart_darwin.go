//go:build darwin

package utils

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// launchAgentFormat 是 LaunchAgent plist 模板
const launchAgentFormat = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>%s</string>
	<key>ProgramArguments</key>
	<array>
%s	</array>
	<key>RunAtLoad</key>
	<true/>
</dict>
</plist>
`

const launchAgentLabel = "org.cooperation.daemon"

// SetAutoStart 在 macOS 上通过用户 LaunchAgent 设置登录自启
//
// enable: 是否启用
// workDir: 自启时使用的工作目录，为空则使用可执行文件所在目录
func SetAutoStart(enable bool, workDir string) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("Unable to get user home directory: %w", err)
	}
	agentDir := filepath.Join(homeDir, "Library", "LaunchAgents")
	plistPath := filepath.Join(agentDir, launchAgentLabel+".plist")
	if !enable {
		if err := os.Remove(plistPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("Unable to remove launch agent: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(agentDir, 0755); err != nil {
		return fmt.Errorf("Unable to create launch agent directory: %w", err)
	}
	command, err := autoStartCommand(workDir)
	if err != nil {
		return fmt.Errorf("Unable to build autostart command: %w", err)
	}
	var args strings.Builder
	for _, arg := range command {
		args.WriteString("\t\t<string>")
		xml.EscapeText(&args, []byte(arg))
		args.WriteString("</string>\n")
	}
	content := fmt.Sprintf(launchAgentFormat, launchAgentLabel, args.String())
	if err := os.WriteFile(plistPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("Unable to write launch agent: %w", err)
	}
	return nil
}
