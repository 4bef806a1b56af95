package codec

// 按消息类型解析 JSON 负载

import (
	"encoding/json"
	"fmt"

	"github.com/somebottle/cooperation-daemon/entities"
)

// payloadFactories 每种消息类型对应的负载结构
var payloadFactories = map[entities.MessageKind]func() any{
	entities.KindLoginInfo:            func() any { return &entities.LoginInfo{} },
	entities.KindLoginResult:          func() any { return &entities.LoginResult{} },
	entities.KindLoginConfirm:         func() any { return &entities.LoginResult{} },
	entities.KindTransJob:             func() any { return &entities.TransJobRequest{} },
	entities.KindFSAction:             func() any { return &entities.FileAction{} },
	entities.KindFSData:               func() any { return &entities.FileChunk{} },
	entities.KindFSDone:               func() any { return &entities.TransReport{} },
	entities.KindFSInfo:               func() any { return &entities.FileInfoRecord{} },
	entities.KindFSReport:             func() any { return &entities.TransReport{} },
	entities.KindTransCancel:          func() any { return &entities.TransJobControl{} },
	entities.KindTransPause:           func() any { return &entities.TransJobControl{} },
	entities.KindTransResume:          func() any { return &entities.TransJobControl{} },
	entities.KindTransApply:           func() any { return &entities.ApplyTransFiles{} },
	entities.KindMisc:                 func() any { return &entities.MiscJSONCall{} },
	entities.KindPing:                 func() any { return &entities.PingPong{} },
	entities.KindShareConnectApply:    func() any { return &entities.ShareConnectApply{} },
	entities.KindShareConnectReply:    func() any { return &entities.ShareConnectReply{} },
	entities.KindShareDisconnect:      func() any { return &entities.ShareDisConnect{} },
	entities.KindShareStart:           func() any { return &entities.ShareStart{} },
	entities.KindShareStartResult:     func() any { return &entities.ShareStartRemoteReply{} },
	entities.KindShareStop:            func() any { return &entities.ShareStop{} },
	entities.KindDisconnectCallback:   func() any { return &entities.ShareDisConnect{} },
	entities.KindShareConnectDisApply: func() any { return &entities.ShareConnectDisApply{} },
	entities.KindSearchDeviceByIP:     func() any { return &entities.SearchDevice{} },
	entities.KindDiscoverByTCP:        func() any { return &entities.DiscoverInfo{} },
}

// DecodePayload 根据信封的消息类型解析出对应的负载结构指针
//
// 未知类型返回 nil 负载和 nil 错误，由调用方决定如何处理
func DecodePayload(env *entities.Envelope) (any, error) {
	factory, ok := payloadFactories[env.Kind]
	if !ok {
		return nil, nil
	}
	payload := factory()
	if err := json.Unmarshal([]byte(env.JSON), payload); err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", ErrMalformed, env.Kind, err)
	}
	return payload, nil
}

// NewEnvelope 把负载序列化为 JSON 并包装成信封
func NewEnvelope(kind entities.MessageKind, payload any) (*entities.Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return &entities.Envelope{Kind: kind, JSON: string(data)}, nil
}

// NewRawEnvelope 直接使用已有的 JSON 字符串构建信封
func NewRawEnvelope(kind entities.MessageKind, jsonStr string) *entities.Envelope {
	return &entities.Envelope{Kind: kind, JSON: jsonStr}
}
