//go:build !linux && !windows && !darwin

package utils

import (
	"fmt"
	"runtime"
)

// SetAutoStart 其他平台暂不支持登录自启
func SetAutoStart(enable bool, workDir string) error {
	return fmt.Errorf("autostart is not supported on %s", runtime.GOOS)
}
