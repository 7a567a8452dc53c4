package ws

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"WPush/logger"
	"WPush/tools/safe"

	"github.com/google/uuid"
)

const (
	maxUpgradeBytes  = 8 << 10 // 升级请求头上限
	handshakeTimeout = 10 * time.Second
)

// SessionHooks 连接生命周期回调（gateway.Instance 实现）。
type SessionHooks interface {
	// Registered 在注册表登记之后调用：目录登记 + ws_manager 房主转移
	Registered(ctx context.Context, socketID string, cookie map[string]string)
	// Closed 在注册表摘除之后调用：目录反注册
	Closed(ctx context.Context, socketID string)
}

// Server 原生 socket 服务：接受连接、完成协议升级、维持到断开。
// 升级之后只向客户端写帧，客户端到服务端的数据帧不解析（推送型设计）。
type Server struct {
	addr      string
	conns     *ConnManager
	hooks     SessionHooks
	cookieTTL time.Duration

	ln       net.Listener
	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewServer(addr string, conns *ConnManager, cookieTTL time.Duration, hooks SessionHooks) *Server {
	return &Server{
		addr:      addr,
		conns:     conns,
		hooks:     hooks,
		cookieTTL: cookieTTL,
		stopCh:    make(chan struct{}),
	}
}

// ListenAndServe 接受循环。单个连接的错误不影响循环。
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	logger.Infof("[ws] listening on %s", s.addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return nil
			default:
			}
			logger.Warnf("[ws] accept error: %v", err)
			continue
		}
		safe.SafeGo(func() { s.handle(conn) })
	}
}

func (s *Server) Close() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.ln != nil {
			_ = s.ln.Close()
		}
	})
}

// handle 一条连接的完整生命周期：升级 -> 登记 -> 驻留 -> 收尾。
func (s *Server) handle(conn net.Conn) {
	raw, err := readUpgrade(conn)
	if err != nil {
		logger.Infof("[ws] handshake read failed remote=%v err=%v", conn.RemoteAddr(), err)
		_ = conn.Close()
		return
	}

	up, err := ParseUpgrade(raw)
	if err != nil {
		// 协议错误：断这条连接，不影响实例
		logger.Infof("[ws] bad upgrade remote=%v err=%v", conn.RemoteAddr(), err)
		_ = conn.Close()
		return
	}

	socketID := up.SocketID
	if s.conns.Has(socketID) {
		// 极端情况：同 key 重复派生，补后缀保证进程内唯一
		socketID = socketID + "-" + uuid.NewString()[:6]
	}

	resp := Response(AcceptToken(up.Key), socketID, time.Now(), s.cookieTTL)
	if err := writeFrame(conn, resp, handshakeTimeout); err != nil {
		logger.Infof("[ws] handshake write failed sid=%s err=%v", socketID, err)
		_ = conn.Close()
		return
	}

	s.conns.Add(socketID, conn)
	ctx := context.Background()
	s.hooks.Registered(ctx, socketID, up.Cookie)
	logger.Infof("[ws] upgraded sid=%s remote=%v", socketID, conn.RemoteAddr())

	// 驻留：只排空入站字节，EOF/出错即断开
	_, _ = io.Copy(io.Discard, conn)

	// 收尾：摘注册表、摘目录，立即生效，不排干在途消息
	s.conns.Remove(socketID)
	s.hooks.Closed(ctx, socketID)
	logger.Infof("[ws] closed sid=%s", socketID)
}

// readUpgrade 读到空行（头部结束）为止，带上限和超时。
func readUpgrade(conn net.Conn) ([]byte, error) {
	if err := conn.SetReadDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return nil, err
	}
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	buf := make([]byte, 0, 1024)
	tmp := make([]byte, 1024)
	for {
		n, err := conn.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			if bytes.Contains(buf, []byte("\r\n\r\n")) {
				return buf, nil
			}
			if len(buf) > maxUpgradeBytes {
				return nil, ErrBadHandshake
			}
		}
		if err != nil {
			return nil, err
		}
	}
}
