package ingress

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"sync"
	"testing"
	"time"

	"WPush/service/bus"
	"WPush/service/gateway"
	"WPush/service/storage"
	"WPush/service/ws"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// recordPub 记录每条发布，测试断言扇出条数和频道
type recordPub struct {
	mu   sync.Mutex
	pubs []pubCall
}

type pubCall struct {
	channel string
	env     *bus.Envelope
}

func (p *recordPub) Publish(ctx context.Context, channel string, e *bus.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pubs = append(p.pubs, pubCall{channel: channel, env: e})
	return nil
}

func (p *recordPub) calls() []pubCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pubCall(nil), p.pubs...)
}

func doSend(t *testing.T, r *gin.Engine, params map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	req := httptest.NewRequest(http.MethodGet, "/send?"+q.Encode(), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func newTestRouter(t *testing.T) (*gin.Engine, *storage.MemStore, *recordPub) {
	t.Helper()
	store := storage.NewMemStore()
	pub := &recordPub{}
	return NewRouter(NewHandler(store, store, pub)), store, pub
}

func TestSendRequiresFrom(t *testing.T) {
	r, _, pub := newTestRouter(t)

	w := doSend(t, r, map[string]string{"to": "s1", "msg": "hi"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, RespWhoAreYou, w.Body.String())
	require.Empty(t, pub.calls())
}

func TestSendSystemScope(t *testing.T) {
	r, store, pub := newTestRouter(t)
	ctx := context.Background()
	require.NoError(t, store.RegisterOwner(ctx, "s1", "instA"))

	w := doSend(t, r, map[string]string{
		"from": "s1", "scope": "system", "mtype": "addgroup", "group": "room1",
	})
	require.Equal(t, RespPublished, w.Body.String())

	calls := pub.calls()
	require.Len(t, calls, 1)
	require.Equal(t, "instA#system", calls[0].channel)
	require.Equal(t, "addgroup", calls[0].env.MType)
	require.Equal(t, "room1", calls[0].env.Group)
	require.Equal(t, "instA", calls[0].env.ServerID)
}

func TestSendSystemScopeUnknownSocket(t *testing.T) {
	r, _, pub := newTestRouter(t)

	w := doSend(t, r, map[string]string{"from": "ghost", "scope": "system", "mtype": "addgroup"})
	require.Equal(t, "no this socket: ghost", w.Body.String())
	require.Empty(t, pub.calls())
}

func TestSendRequiresMsg(t *testing.T) {
	r, _, pub := newTestRouter(t)

	w := doSend(t, r, map[string]string{"from": "s1", "to": "s2"})
	require.Equal(t, RespNoMessage, w.Body.String())
	require.Empty(t, pub.calls())
}

func TestSendUnicast(t *testing.T) {
	r, store, pub := newTestRouter(t)
	ctx := context.Background()
	require.NoError(t, store.RegisterOwner(ctx, "s2", "instB"))

	w := doSend(t, r, map[string]string{"from": "s1", "to": "s2", "msg": "hi"})
	require.Equal(t, RespPublished, w.Body.String())

	calls := pub.calls()
	require.Len(t, calls, 1)
	require.Equal(t, "instB#text/plain", calls[0].channel)
	require.Equal(t, bus.IDList{"s2"}, calls[0].env.To)
	require.Equal(t, "hi", calls[0].env.Msg)
	require.Equal(t, "s1", calls[0].env.From)
}

func TestSendUnicastUnknownTarget(t *testing.T) {
	r, _, pub := newTestRouter(t)

	w := doSend(t, r, map[string]string{"from": "s1", "to": "nobody", "msg": "hi"})
	require.Equal(t, "no this socket: nobody", w.Body.String())
	require.Empty(t, pub.calls())
}

// 组播按成员所属实例分片：每个实例恰好一条发布，带着它服务的成员子集。
// owner 伪字段不参与扇出，发送方自己也在收件人里。
func TestSendMulticastPartition(t *testing.T) {
	r, store, pub := newTestRouter(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, "room1", "s1", "instA"))
	require.NoError(t, store.Join(ctx, "room1", "s2", "instA"))
	require.NoError(t, store.Join(ctx, "room1", "s3", "instB"))

	w := doSend(t, r, map[string]string{"from": "s1", "group": "room1", "msg": "hello room"})
	require.Equal(t, RespPublished, w.Body.String())

	calls := pub.calls()
	require.Len(t, calls, 2)

	byChannel := map[string][]string{}
	for _, call := range calls {
		require.Equal(t, "room1", call.env.Group)
		require.Equal(t, "hello room", call.env.Msg)
		sids := append([]string(nil), call.env.To...)
		sort.Strings(sids)
		byChannel[call.channel] = sids
	}
	require.Equal(t, []string{"s1", "s2"}, byChannel["instA#text/plain"])
	require.Equal(t, []string{"s3"}, byChannel["instB#text/plain"])
}

func TestSendMulticastNonMember(t *testing.T) {
	r, store, pub := newTestRouter(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, "room1", "s1", "instA"))

	w := doSend(t, r, map[string]string{"from": "outsider", "group": "room1", "msg": "hi"})
	require.Equal(t, "你不是房间 room1 内的成员..不能发送消息!", w.Body.String())
	require.Empty(t, pub.calls())
}

func TestSendBroadcastDisabled(t *testing.T) {
	r, _, pub := newTestRouter(t)

	w := doSend(t, r, map[string]string{"from": "s1", "msg": "to everyone"})
	require.Equal(t, RespNoBroadcast, w.Body.String())
	require.Empty(t, pub.calls())
}

// loopbackPub 把发布直接回灌给本实例的总线处理器，省掉 redis
type loopbackPub struct {
	inst *gateway.Instance
}

func (p *loopbackPub) Publish(ctx context.Context, channel string, e *bus.Envelope) error {
	body, err := e.Encode()
	if err != nil {
		return err
	}
	p.inst.HandleBus(channel, body)
	return nil
}

// 单实例全链路：注册 -> 系统级建房 -> 自发自收一条点对点消息
func TestSendEndToEnd(t *testing.T) {
	store := storage.NewMemStore()
	conns := ws.NewConnManager(time.Second)
	defer conns.Close()
	inst := gateway.NewInstance("instA", conns, store, store)
	r := NewRouter(NewHandler(store, store, &loopbackPub{inst: inst}))

	client, server := net.Pipe()
	defer client.Close()
	conns.Add("s1", server)
	inst.Registered(context.Background(), "s1", nil)

	var mu sync.Mutex
	var got []byte
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := client.Read(buf)
			if n > 0 {
				mu.Lock()
				got = append(got, buf[:n]...)
				mu.Unlock()
			}
			if err != nil {
				return
			}
		}
	}()
	recv := func(want string) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			mu.Lock()
			ok := bytes.Contains(got, []byte(want))
			mu.Unlock()
			if ok {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
		t.Fatalf("socket never received %q", want)
	}

	w := doSend(t, r, map[string]string{
		"from": "s1", "scope": "system", "mtype": "addgroup", "group": "room1",
	})
	require.Equal(t, RespPublished, w.Body.String())
	recv("创建房间成功!")

	all, err := store.Members(context.Background(), "room1")
	require.NoError(t, err)
	require.Equal(t, "s1", all["owner"])

	w = doSend(t, r, map[string]string{"from": "s1", "to": "s1", "msg": "hi"})
	require.Equal(t, RespPublished, w.Body.String())
	recv(`"msg":"hi"`)
}
