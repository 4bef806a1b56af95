package codec

// 连接上的分帧格式: [ 1 字节的帧类型 | 4 字节的大端数据长度 | 数据 ]
//
// 0x01 - 信封数据
// 0x02 - 心跳包，只有 1 字节类型

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/somebottle/cooperation-daemon/entities"
)

const (
	FrameEnvelope  byte = 0x01
	FrameHeartbeat byte = 0x02
)

var (
	// ErrFrameTooLarge 帧长度超过限制
	ErrFrameTooLarge = errors.New("frame too large")
	// ErrUnknownFrame 未知的帧类型
	ErrUnknownFrame = errors.New("unknown frame type")
)

// WriteFrame 写出一个信封数据帧
func WriteFrame(w io.Writer, payload []byte) error {
	header := make([]byte, 5, 5+len(payload))
	header[0] = FrameEnvelope
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))
	// 整帧一次写入
	_, err := w.Write(append(header, payload...))
	return err
}

// WriteHeartbeat 写出一个心跳帧
func WriteHeartbeat(w io.Writer) error {
	_, err := w.Write([]byte{FrameHeartbeat})
	return err
}

// ReadFrame 读取一帧，心跳帧返回 FrameHeartbeat 和 nil 负载
//
// maxSize: 允许的最大数据长度
func ReadFrame(r io.Reader, maxSize uint32) (byte, []byte, error) {
	var frameType byte
	if err := binary.Read(r, binary.BigEndian, &frameType); err != nil {
		return 0, nil, err
	}
	switch frameType {
	case FrameHeartbeat:
		return FrameHeartbeat, nil, nil
	case FrameEnvelope:
		var length uint32
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return 0, nil, err
		}
		if length > maxSize {
			return 0, nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, maxSize)
		}
		payload := make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, err
		}
		return FrameEnvelope, payload, nil
	default:
		return 0, nil, fmt.Errorf("%w: 0x%02x", ErrUnknownFrame, frameType)
	}
}

// WriteEnvelope 编码信封并写出为一帧
func WriteEnvelope(w io.Writer, env *entities.Envelope) error {
	data, err := Encode(env)
	if err != nil {
		return err
	}
	return WriteFrame(w, data)
}
