package ws

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrBadHandshake 缺少 Sec-WebSocket-Key 等畸形升级请求；
// 对该连接致命，对实例无害。
var ErrBadHandshake = errors.New("malformed websocket upgrade request")

// ManagerCookie 重连房主携带的 cookie 字段，值是房间名。
// 注意：owner-transfer 是无条件的，不校验重连者是否为原房主——
// 伪造 cookie 可以抢走房主身份，这里按原有策略保留，签名 cookie 留给部署方加固。
const ManagerCookie = "ws_manager"

// Upgrade 握手请求解析结果
type Upgrade struct {
	Key      string            // Sec-WebSocket-Key 原始值
	SocketID string            // 由 Key 派生的 socket 身份
	Cookie   map[string]string // Cookie 头的 k=v 映射
}

// ParseUpgrade 解析升级请求的头部行（CRLF 分隔的原始字节）。
func ParseUpgrade(raw []byte) (*Upgrade, error) {
	up := &Upgrade{Cookie: map[string]string{}}

	for _, line := range strings.Split(string(raw), "\r\n") {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "sec-websocket-key":
			up.Key = strings.TrimSpace(value)
		case "cookie":
			for _, pair := range strings.Split(strings.TrimSpace(value), ";") {
				k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
				if !ok {
					continue
				}
				up.Cookie[k] = v
			}
		}
	}

	if up.Key == "" {
		return nil, errors.Wrap(ErrBadHandshake, "missing Sec-WebSocket-Key")
	}
	up.SocketID = DeriveSocketID(up.Key)
	return up, nil
}

// DeriveSocketID 从握手 key 派生 socket 身份：去掉 '+' 和 base64 填充。
func DeriveSocketID(key string) string {
	id := strings.ReplaceAll(key, "+", "")
	return strings.TrimRight(id, "=")
}

// Response 组装 101 升级响应，附带 sid 会话 cookie。
func Response(acceptToken, socketID string, now time.Time, cookieTTL time.Duration) []byte {
	expires := now.Add(cookieTTL).UTC().Format(http.TimeFormat)
	lines := []string{
		"HTTP/1.1 101 Switching Protocols",
		"Upgrade: WebSocket",
		"Connection: Upgrade",
		"Sec-WebSocket-Accept: " + acceptToken,
		fmt.Sprintf("Set-Cookie: sid=%s; Expires=%s;", socketID, expires),
		"",
		"",
	}
	return []byte(strings.Join(lines, "\r\n"))
}
