package ingress

import (
	"fmt"
	"net/http"

	"WPush/logger"
	"WPush/middleware"
	"WPush/service/bus"
	"WPush/service/storage"

	"github.com/gin-gonic/gin"
)

// 固定的纯文本状态串（对外契约，别改）
const (
	RespWhoAreYou   = "who are you???"
	RespNoMessage   = "no message! send failed"
	RespPublished   = "published"
	RespNoBroadcast = "暂不支持全局广播"
)

// Handler 发布入口：把一条发布请求解析成一或多条总线发布。
// 点对点 / 组播 / 系统级命令三类，按 scope -> group -> to 优先级路由。
type Handler struct {
	dir    storage.Directory
	groups storage.GroupStore
	pub    bus.Publisher
}

func NewHandler(dir storage.Directory, groups storage.GroupStore, pub bus.Publisher) *Handler {
	return &Handler{dir: dir, groups: groups, pub: pub}
}

// NewRouter 挂好中间件和 /send 路由的 gin 引擎
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Origin(), middleware.Manager().Use())
	r.GET("/send", h.Send)
	r.POST("/send", h.Send)
	return r
}

// Send 请求字段：from(必填) to group msg type(消息传输类型) mtype(事件名) scope。
// 响应是纯文本状态串，不是结构化状态码。
func (h *Handler) Send(c *gin.Context) {
	var (
		from  = c.Query("from")
		group = c.Query("group")
		msg   = c.Query("msg")
		to    = c.Query("to")
		class = c.Query("type")
		mtype = c.Query("mtype")
		scope = c.Query("scope")
		ctx   = c.Request.Context()
	)

	if from == "" {
		c.String(http.StatusOK, RespWhoAreYou)
		return
	}

	// 系统级消息先处理
	if scope == "system" {
		inst, ok, err := h.dir.ResolveOwner(ctx, from)
		if err != nil {
			h.storeFault(c, err)
			return
		}
		if !ok {
			c.String(http.StatusOK, "no this socket: "+from)
			return
		}
		env := &bus.Envelope{
			MType:    mtype,
			Group:    group,
			From:     from,
			Msg:      msg,
			ServerID: inst,
		}
		if err := h.pub.Publish(ctx, bus.SystemChannel(inst), env); err != nil {
			h.storeFault(c, err)
			return
		}
		c.String(http.StatusOK, RespPublished)
		return
	}

	if msg == "" {
		c.String(http.StatusOK, RespNoMessage)
		return
	}

	switch {
	case group != "":
		h.multicast(c, from, group, msg, class, mtype)
	case to != "":
		h.unicast(c, from, to, msg, class, mtype)
	default:
		// 广播路径刻意停用：无节制扇出，不接到 all#broadcast
		c.String(http.StatusOK, RespNoBroadcast)
	}
}

// multicast 组播：成员按所属实例分片，每个实例一条发布，带上该实例服务的成员子集
func (h *Handler) multicast(c *gin.Context, from, group, msg, class, mtype string) {
	ctx := c.Request.Context()

	all, err := h.groups.Members(ctx, group)
	if err != nil {
		h.storeFault(c, err)
		return
	}
	if _, member := all[from]; !member {
		c.String(http.StatusOK, fmt.Sprintf("你不是房间 %s 内的成员..不能发送消息!", group))
		return
	}

	delete(all, "owner")
	byInstance := map[string][]string{}
	for sid, inst := range all {
		byInstance[inst] = append(byInstance[inst], sid)
	}

	for inst, sids := range byInstance {
		env := &bus.Envelope{
			To:    sids,
			Msg:   msg,
			MType: mtype,
			From:  from,
			Group: group,
		}
		if err := h.pub.Publish(ctx, bus.DataChannel(inst, class), env); err != nil {
			h.storeFault(c, err)
			return
		}
	}
	c.String(http.StatusOK, RespPublished)
}

// unicast 点对点：目录解析归属实例后发布到它的数据类频道
func (h *Handler) unicast(c *gin.Context, from, to, msg, class, mtype string) {
	ctx := c.Request.Context()

	inst, ok, err := h.dir.ResolveOwner(ctx, to)
	if err != nil {
		h.storeFault(c, err)
		return
	}
	if !ok {
		c.String(http.StatusOK, "no this socket: "+to)
		return
	}
	env := &bus.Envelope{
		To:    bus.IDList{to},
		Msg:   msg,
		MType: mtype,
		From:  from,
	}
	if err := h.pub.Publish(ctx, bus.DataChannel(inst, class), env); err != nil {
		h.storeFault(c, err)
		return
	}
	c.String(http.StatusOK, RespPublished)
}

// storeFault 共享存储故障：向上抛成可重试失败，而不是静默丢请求
func (h *Handler) storeFault(c *gin.Context, err error) {
	logger.Errorf("[ingress] store fault: %v", err)
	c.String(http.StatusBadGateway, "store unavailable, retry later")
}
