package ws

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestAcceptToken(t *testing.T) {
	// RFC 6455 样例 key
	got := AcceptToken("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Fatalf("accept token = %q, want %q", got, want)
	}
}

func TestEncodeTextShort(t *testing.T) {
	payload := "0123456789"
	frame, err := EncodeText(payload)
	if err != nil {
		t.Fatalf("EncodeText failed: %v", err)
	}
	if len(frame) != 12 {
		t.Fatalf("frame length = %d, want 12", len(frame))
	}
	if frame[0] != 0x81 || frame[1] != 10 {
		t.Fatalf("header = [%#x %d], want [0x81 10]", frame[0], frame[1])
	}
	if string(frame[2:]) != payload {
		t.Fatalf("body = %q, want %q", frame[2:], payload)
	}
}

func TestEncodeTextExtended(t *testing.T) {
	payload := bytes.Repeat([]byte("a"), 200)
	frame, err := EncodeText(payload)
	if err != nil {
		t.Fatalf("EncodeText failed: %v", err)
	}
	if len(frame) != 204 {
		t.Fatalf("frame length = %d, want 204", len(frame))
	}
	if frame[0] != 0x81 || frame[1] != 126 {
		t.Fatalf("header = [%#x %d], want [0x81 126]", frame[0], frame[1])
	}
	// 200 = 0x00C8 大端
	if frame[2] != 0x00 || frame[3] != 0xC8 {
		t.Fatalf("length field = [%#x %#x], want [0x00 0xc8]", frame[2], frame[3])
	}
}

func TestEncodeTextBoundaries(t *testing.T) {
	// 125 字节是 2 字节头的上界
	frame, err := EncodeText(bytes.Repeat([]byte("x"), 125))
	if err != nil {
		t.Fatalf("EncodeText(125) failed: %v", err)
	}
	if frame[1] != 125 {
		t.Fatalf("second byte = %d, want 125", frame[1])
	}

	// 126 字节起用 16 位长度域
	frame, err = EncodeText(bytes.Repeat([]byte("x"), 126))
	if err != nil {
		t.Fatalf("EncodeText(126) failed: %v", err)
	}
	if frame[1] != 126 || frame[2] != 0x00 || frame[3] != 126 {
		t.Fatalf("extended header = %v, want [126 0 126]", frame[1:4])
	}

	// 65535 仍可编码
	if _, err := EncodeText(bytes.Repeat([]byte("x"), 0xFFFF)); err != nil {
		t.Fatalf("EncodeText(65535) failed: %v", err)
	}
}

func TestEncodeTextEmpty(t *testing.T) {
	for _, payload := range []any{nil, "", []byte{}} {
		frame, err := EncodeText(payload)
		if err != nil {
			t.Fatalf("EncodeText(%v) failed: %v", payload, err)
		}
		if frame != nil {
			t.Fatalf("EncodeText(%v) = %v, want nil (nothing to send)", payload, frame)
		}
	}
}

func TestEncodeTextTooLarge(t *testing.T) {
	_, err := EncodeText(bytes.Repeat([]byte("x"), 0xFFFF+1))
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("err = %v, want ErrFrameTooLarge", err)
	}
}

func TestEncodeTextStruct(t *testing.T) {
	frame, err := EncodeText(map[string]string{"msg": "hi"})
	if err != nil {
		t.Fatalf("EncodeText failed: %v", err)
	}
	var decoded map[string]string
	if err := json.Unmarshal(frame[2:], &decoded); err != nil {
		t.Fatalf("frame body is not JSON: %v", err)
	}
	if decoded["msg"] != "hi" {
		t.Fatalf("decoded = %v, want msg=hi", decoded)
	}
}
