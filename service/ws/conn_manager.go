package ws

import (
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrSocketNotFound 发送目标不在本实例注册表里。
// 调用方据此做组成员的兜底清理（见 gateway 投递路径）。
var ErrSocketNotFound = errors.New("socket not registered on this instance")

// SockConn 一条已完成协议升级的连接
type SockConn struct {
	SocketID  string
	Conn      net.Conn
	Remote    net.Addr
	CreatedAt time.Time
}

// ConnManager 本实例的连接注册表：socket 身份 -> 传输句柄。
// 注册表之外不持有连接引用；Remove/Close 即回收。
type ConnManager struct {
	mu       sync.RWMutex
	sockets  map[string]*SockConn
	deadline time.Duration // 单次写超时
}

func NewConnManager(sendDeadline time.Duration) *ConnManager {
	if sendDeadline <= 0 {
		sendDeadline = 5 * time.Second
	}
	return &ConnManager{
		sockets:  make(map[string]*SockConn),
		deadline: sendDeadline,
	}
}

// Add 登记连接；同名身份被新连接顶掉（旧连接关闭）。
func (m *ConnManager) Add(socketID string, conn net.Conn) *SockConn {
	if socketID == "" || conn == nil {
		return nil
	}
	now := time.Now()
	sc := &SockConn{
		SocketID:  socketID,
		Conn:      conn,
		Remote:    conn.RemoteAddr(),
		CreatedAt: now,
	}

	m.mu.Lock()
	old := m.sockets[socketID]
	m.sockets[socketID] = sc
	m.mu.Unlock()

	if old != nil {
		closeQuiet(old.Conn)
	}
	return sc
}

func (m *ConnManager) Get(socketID string) (*SockConn, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sc, ok := m.sockets[socketID]
	return sc, ok
}

// Has 身份是否已被占用（握手派生冲突检测用）
func (m *ConnManager) Has(socketID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sockets[socketID]
	return ok
}

// Remove 关闭并移除；移除不存在的身份是 no-op。
func (m *ConnManager) Remove(socketID string) {
	m.mu.Lock()
	sc := m.sockets[socketID]
	delete(m.sockets, socketID)
	m.mu.Unlock()

	if sc != nil {
		closeQuiet(sc.Conn)
	}
}

// Snapshot 当前所有在线 socket 身份（广播用）
func (m *ConnManager) Snapshot() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.sockets))
	for id := range m.sockets {
		out = append(out, id)
	}
	return out
}

func (m *ConnManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sockets)
}

// SendOne 按 socket 身份写一帧；目标不在注册表返回 ErrSocketNotFound。
func (m *ConnManager) SendOne(socketID string, frame []byte) error {
	m.mu.RLock()
	sc, ok := m.sockets[socketID]
	m.mu.RUnlock()
	if !ok || sc.Conn == nil {
		return ErrSocketNotFound
	}
	return writeFrame(sc.Conn, frame, m.deadline)
}

// Close 关闭所有连接并清空注册表
func (m *ConnManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sc := range m.sockets {
		closeQuiet(sc.Conn)
	}
	m.sockets = map[string]*SockConn{}
}

// ===== 工具函数 =====

func writeFrame(conn net.Conn, frame []byte, deadline time.Duration) error {
	if conn == nil {
		return errors.New("nil conn")
	}
	if err := conn.SetWriteDeadline(time.Now().Add(deadline)); err != nil {
		return err
	}
	_, err := conn.Write(frame)
	return err
}

func closeQuiet(c net.Conn) {
	if c != nil {
		_ = c.Close()
	}
}
