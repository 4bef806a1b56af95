package codec

// 消息信封的编解码
//
// 信封使用 protobuf 线格式编码:
//
//	1: kind   (varint)
//	2: json   (bytes)
//	3: binary (bytes, 非空时仅限文件数据消息)

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/somebottle/cooperation-daemon/entities"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldKind   protowire.Number = 1
	fieldJSON   protowire.Number = 2
	fieldBinary protowire.Number = 3
)

var (
	// ErrMalformed 信封或其 JSON 负载无法解析
	ErrMalformed = errors.New("malformed envelope")
	// ErrUnexpectedBinary 非文件数据消息携带了二进制负载
	ErrUnexpectedBinary = errors.New("binary payload only allowed for file data")
)

// Encode 将信封编码为字节
func Encode(env *entities.Envelope) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("%w: nil envelope", ErrMalformed)
	}
	if len(env.Binary) > 0 && env.Kind != entities.KindFSData {
		return nil, fmt.Errorf("%w: kind %s", ErrUnexpectedBinary, env.Kind)
	}
	buf := make([]byte, 0, 16+len(env.JSON)+len(env.Binary))
	buf = protowire.AppendTag(buf, fieldKind, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(env.Kind))
	buf = protowire.AppendTag(buf, fieldJSON, protowire.BytesType)
	buf = protowire.AppendString(buf, env.JSON)
	// 空切片也写出字段，解码后和 nil 区分开
	if env.Binary != nil {
		buf = protowire.AppendTag(buf, fieldBinary, protowire.BytesType)
		buf = protowire.AppendBytes(buf, env.Binary)
	}
	return buf, nil
}

// Decode 从字节解码信封
//
// 空的或不合法的 JSON 负载返回 ErrMalformed，调用方记录日志后丢弃即可
func Decode(raw []byte) (*entities.Envelope, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrMalformed)
	}
	env := &entities.Envelope{}
	seenKind := false
	for len(raw) > 0 {
		num, typ, n := protowire.ConsumeTag(raw)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		raw = raw[n:]
		switch {
		case num == fieldKind && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(raw)
			if m < 0 {
				return nil, fmt.Errorf("%w: kind: %v", ErrMalformed, protowire.ParseError(m))
			}
			if v > uint64(^uint32(0)) {
				return nil, fmt.Errorf("%w: kind out of range", ErrMalformed)
			}
			env.Kind = entities.MessageKind(v)
			seenKind = true
			n = m
		case num == fieldJSON && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(raw)
			if m < 0 {
				return nil, fmt.Errorf("%w: json: %v", ErrMalformed, protowire.ParseError(m))
			}
			env.JSON = string(v)
			n = m
		case num == fieldBinary && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(raw)
			if m < 0 {
				return nil, fmt.Errorf("%w: binary: %v", ErrMalformed, protowire.ParseError(m))
			}
			env.Binary = append([]byte{}, v...)
			n = m
		default:
			// 未知字段跳过
			n = protowire.ConsumeFieldValue(num, typ, raw)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
		}
		raw = raw[n:]
	}
	if !seenKind {
		return nil, fmt.Errorf("%w: missing kind", ErrMalformed)
	}
	if env.JSON == "" || !json.Valid([]byte(env.JSON)) {
		return nil, fmt.Errorf("%w: invalid json body for %s", ErrMalformed, env.Kind)
	}
	if len(env.Binary) > 0 && env.Kind != entities.KindFSData {
		return nil, fmt.Errorf("%w: kind %s", ErrUnexpectedBinary, env.Kind)
	}
	return env, nil
}
