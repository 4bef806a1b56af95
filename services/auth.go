package services

// 登录认证

import (
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PinAuthenticator 校验对端登录时携带的 PIN 码
//
// 配置的 PIN 码只以 bcrypt 哈希的形式保存在内存中
type PinAuthenticator struct {
	pinHash     []byte
	needConfirm bool
}

// NewPinAuthenticator 创建认证器
//
// pin: 本机 PIN 码，为空表示不接受带 PIN 的登录
// needConfirm: 无认证登录是否需要用户确认
func NewPinAuthenticator(pin string, needConfirm bool) (*PinAuthenticator, error) {
	auth := &PinAuthenticator{needConfirm: needConfirm}
	if pin != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash pin code: %w", err)
		}
		auth.pinHash = hash
	}
	return auth, nil
}

// Verify 校验登录认证信息
//
// auth: base64 编码的 PIN 码，为空时按无认证策略处理
func (pa *PinAuthenticator) Verify(auth string) bool {
	if auth == "" {
		// 需要用户确认的无认证登录目前直接拒绝
		return !pa.needConfirm
	}
	if pa.pinHash == nil {
		return false
	}
	pin, err := base64.StdEncoding.DecodeString(auth)
	if err != nil {
		return false
	}
	return bcrypt.CompareHashAndPassword(pa.pinHash, pin) == nil
}
