package gateway

import (
	"context"
	"fmt"

	"WPush/logger"
	"WPush/service/bus"
	"WPush/service/storage"
	"WPush/service/ws"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// 内置系统级事件类型
const (
	EventAddGroup  = "addgroup"
	EventRmGroup   = "rmgroup"
	EventJoinGroup = "joingroup"
	EventOutGroup  = "outgroup"
)

// NewInstanceID 每个网关进程一个，进程生命周期内不变。
// 同时是本实例的频道命名空间和目录/组记录里的归属值。
func NewInstanceID() string {
	return "gw-" + uuid.NewString()[:8]
}

// Instance 一个网关实例拥有的聚合：注册表、目录、组记录、实例身份。
// 跨实例只通过共享存储和总线协调，实例之间没有共享内存。
type Instance struct {
	ID     string
	Conns  *ws.ConnManager
	Dir    storage.Directory
	Groups storage.GroupStore
}

func NewInstance(id string, conns *ws.ConnManager, dir storage.Directory, groups storage.GroupStore) *Instance {
	return &Instance{ID: id, Conns: conns, Dir: dir, Groups: groups}
}

// ===== 连接生命周期（ws.Server 回调） =====

// Registered 握手完成：目录登记归属；cookie 带 ws_manager 时执行房主转移，
// 让重连的房主不用带着全房间换房。转移不校验旧房主（既有策略，见 ws.ManagerCookie）。
func (g *Instance) Registered(ctx context.Context, socketID string, cookie map[string]string) {
	if err := g.Dir.RegisterOwner(ctx, socketID, g.ID); err != nil {
		logger.Errorf("[gateway] directory register failed sid=%s err=%v", socketID, err)
	}
	if room := cookie[ws.ManagerCookie]; room != "" {
		if err := g.Groups.TransferOwner(ctx, room, socketID); err != nil {
			logger.Errorf("[gateway] owner transfer failed group=%s sid=%s err=%v", room, socketID, err)
		} else {
			logger.Infof("[gateway] owner transfer group=%s -> sid=%s", room, socketID)
		}
	}
}

// Closed 连接结束：摘目录。注册表由 ws.Server 自己收尾；
// 没有等待期、不排干在途消息，排队中的消息直接丢弃。
func (g *Instance) Closed(ctx context.Context, socketID string) {
	if err := g.Dir.Unregister(ctx, socketID); err != nil {
		logger.Errorf("[gateway] directory unregister failed sid=%s err=%v", socketID, err)
	}
}

// ===== 总线分发 =====

// HandleBus 按消息类分发一条总线消息。未识别的类丢弃。
func (g *Instance) HandleBus(channel string, payload []byte) {
	_, class, ok := bus.ParseChannel(channel)
	if !ok {
		logger.Debugf("[gateway] drop message on unknown channel %q", channel)
		return
	}

	switch class.Kind {
	case bus.KindBroadcast:
		g.broadcastLocal(payload)
	case bus.KindSystem:
		env, err := bus.DecodeEnvelope(payload)
		if err != nil {
			logger.Warnf("[gateway] bad system envelope: %v", err)
			return
		}
		g.handleSystem(env)
	case bus.KindData:
		if class.Label != bus.DefaultDataClass {
			// 只投递缺省数据类，其它传输类型丢弃
			logger.Debugf("[gateway] drop data class %q", class.Label)
			return
		}
		env, err := bus.DecodeEnvelope(payload)
		if err != nil {
			logger.Warnf("[gateway] bad data envelope: %v", err)
			return
		}
		g.deliver(env)
	}
}

// ===== 系统消息：组状态机 =====

// handleSystem 处理组管理命令。每个用户发起的命令在所有分支（含出错）
// 都回发且只回发一次单播确认给发起方。
func (g *Instance) handleSystem(env *bus.Envelope) {
	ctx := context.Background()
	var returnMsg string

	switch env.MType {
	case EventAddGroup:
		err := g.Groups.Create(ctx, env.Group, env.From, env.ServerID)
		switch {
		case err == nil:
			returnMsg = "创建房间成功!"
		case errors.Is(err, storage.ErrGroupExists):
			returnMsg = "房间已经存在了,不能再创建了!请换个名字~~"
		default:
			logger.Errorf("[gateway] addgroup failed group=%s err=%v", env.Group, err)
			returnMsg = "操作失败,请稍后重试~"
		}
	case EventRmGroup:
		err := g.Groups.Delete(ctx, env.Group, env.From)
		switch {
		case err == nil:
			returnMsg = fmt.Sprintf("删除房间 %s 成功!", env.Group)
		case errors.Is(err, storage.ErrGroupNotFound):
			returnMsg = "当前房间不存在,无法删除~~"
		case errors.Is(err, storage.ErrNotOwner):
			returnMsg = "你不是该房间管理员,无法删除"
		default:
			logger.Errorf("[gateway] rmgroup failed group=%s err=%v", env.Group, err)
			returnMsg = "操作失败,请稍后重试~"
		}
	case EventJoinGroup:
		err := g.Groups.Join(ctx, env.Group, env.From, env.ServerID)
		switch {
		case err == nil:
			returnMsg = fmt.Sprintf("加入房间 %s 成功.", env.Group)
		case errors.Is(err, storage.ErrAlreadyMember):
			returnMsg = fmt.Sprintf("您已经在这个房间 %s 内了~~", env.Group)
		default:
			logger.Errorf("[gateway] joingroup failed group=%s err=%v", env.Group, err)
			returnMsg = "操作失败,请稍后重试~"
		}
	case EventOutGroup:
		if err := g.Groups.Leave(ctx, env.Group, env.From); err != nil {
			logger.Errorf("[gateway] outgroup failed group=%s err=%v", env.Group, err)
			returnMsg = "操作失败,请稍后重试~"
		} else {
			returnMsg = fmt.Sprintf("退出房间 %s 成功~", env.Group)
		}
	default:
		// 未识别的系统事件丢弃，不回复
		logger.Debugf("[gateway] drop system mtype %q", env.MType)
		return
	}

	g.replyOne(env.From, &bus.Envelope{
		From:  env.From,
		Msg:   returnMsg,
		MType: env.MType,
		Group: env.Group,
	})
}

// replyOne 单播一条确认给发起方。发起方刚好掉线就丢弃。
func (g *Instance) replyOne(socketID string, env *bus.Envelope) {
	body, err := env.Encode()
	if err != nil {
		logger.Errorf("[gateway] encode reply failed sid=%s err=%v", socketID, err)
		return
	}
	frame, err := ws.EncodeText(body)
	if err != nil || frame == nil {
		logger.Errorf("[gateway] frame reply failed sid=%s err=%v", socketID, err)
		return
	}
	if err := g.Conns.SendOne(socketID, frame); err != nil {
		logger.Infof("[gateway] reply dropped sid=%s err=%v", socketID, err)
	}
}

// ===== 投递 =====

// deliver 把信封投给 to 里本实例注册的每个 socket。
// 目标已失联时做兜底清理：摘注册表、摘目录、带组名的顺手清组成员，消息丢弃。
func (g *Instance) deliver(env *bus.Envelope) {
	body, err := env.Encode()
	if err != nil {
		logger.Errorf("[gateway] encode envelope failed err=%v", err)
		return
	}
	frame, err := ws.EncodeText(body)
	if err != nil || frame == nil {
		logger.Errorf("[gateway] frame envelope failed err=%v", err)
		return
	}

	ctx := context.Background()
	for _, sid := range env.To {
		err := g.Conns.SendOne(sid, frame)
		if err == nil {
			continue
		}
		if errors.Is(err, ws.ErrSocketNotFound) {
			logger.Infof("[gateway] stale target sid=%s group=%s", sid, env.Group)
			g.scrub(ctx, sid, env.Group)
			continue
		}
		// 写失败：连接已不可用，关掉并清理
		logger.Warnf("[gateway] write failed sid=%s err=%v", sid, err)
		g.Conns.Remove(sid)
		g.scrub(ctx, sid, env.Group)
	}
}

// scrub 清掉指向失效 socket 的共享状态
func (g *Instance) scrub(ctx context.Context, socketID, group string) {
	if err := g.Dir.Unregister(ctx, socketID); err != nil {
		logger.Errorf("[gateway] scrub directory sid=%s err=%v", socketID, err)
	}
	if group != "" {
		if err := g.Groups.Leave(ctx, group, socketID); err != nil {
			logger.Errorf("[gateway] scrub group=%s sid=%s err=%v", group, socketID, err)
		}
	}
}

// broadcastLocal 广播类：原始载荷打帧后写给本实例所有在线 socket
func (g *Instance) broadcastLocal(payload []byte) {
	frame, err := ws.EncodeText(payload)
	if err != nil || frame == nil {
		logger.Warnf("[gateway] frame broadcast failed err=%v", err)
		return
	}
	for _, sid := range g.Conns.Snapshot() {
		if err := g.Conns.SendOne(sid, frame); err != nil {
			logger.Infof("[gateway] broadcast skip sid=%s err=%v", sid, err)
		}
	}
}
