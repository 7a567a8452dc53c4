package ws

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"

	"github.com/pkg/errors"
)

// RFC 6455 固定 GUID，握手 accept 口令的一部分
const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// ErrFrameTooLarge 超过 16 位长度域的载荷直接拒绝，绝不截断
var ErrFrameTooLarge = errors.New("payload exceeds 65535 bytes")

// AcceptToken 计算 Sec-WebSocket-Accept: base64(sha1(key + GUID))
func AcceptToken(key string) string {
	h := sha1.New()
	h.Write([]byte(key + websocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// EncodeText 把载荷打成单帧、无掩码、FIN 置位的文本帧（opcode 0x1）。
// 结构化载荷先 JSON 序列化；字符串/字节原样透传；空载荷返回 (nil, nil) 表示无需发送。
//
// 帧头：<126 字节用 2 字节头，长度塞在第二字节；
// 126..65535 字节用 4 字节头，16 位大端长度。更长的载荷返回 ErrFrameTooLarge。
func EncodeText(payload any) ([]byte, error) {
	var body []byte
	switch v := payload.(type) {
	case nil:
		return nil, nil
	case string:
		body = []byte(v)
	case []byte:
		body = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Wrap(err, "encode frame payload")
		}
		body = b
	}

	n := len(body)
	if n == 0 {
		return nil, nil
	}

	switch {
	case n < 126:
		frame := make([]byte, 2+n)
		frame[0] = 0x81 // FIN + text
		frame[1] = byte(n)
		copy(frame[2:], body)
		return frame, nil
	case n <= 0xFFFF:
		frame := make([]byte, 4+n)
		frame[0] = 0x81
		frame[1] = 126
		binary.BigEndian.PutUint16(frame[2:4], uint16(n))
		copy(frame[4:], body)
		return frame, nil
	default:
		return nil, ErrFrameTooLarge
	}
}
