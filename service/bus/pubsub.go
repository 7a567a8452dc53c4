package bus

import (
	"context"

	"WPush/logger"
	"WPush/tools/safe"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Publisher 发布一条信封到指定频道。fire-and-forget：
// 存储只保证同频道按发布序投递给当前在线的订阅者，不落盘。
type Publisher interface {
	Publish(ctx context.Context, channel string, e *Envelope) error
}

// Receiver 收到一条总线消息（单 goroutine 串行回调，保持频道内顺序）
type Receiver func(channel string, payload []byte)

type RedisBus struct {
	rdb *redis.Client
	sub *redis.PubSub
}

func NewRedisBus(rdb *redis.Client) *RedisBus {
	return &RedisBus{rdb: rdb}
}

func (b *RedisBus) Publish(ctx context.Context, channel string, e *Envelope) error {
	body, err := e.Encode()
	if err != nil {
		return errors.Wrap(err, "encode envelope")
	}
	return b.rdb.Publish(ctx, channel, body).Err()
}

// Subscribe 订阅实例启动时需要的三个频道：
// 本实例数据类、本实例系统类、全局广播。
// 单 goroutine 串行消费，每条回调给 recv；空载荷按约定丢弃。
func (b *RedisBus) Subscribe(ctx context.Context, instanceID string, recv Receiver) error {
	b.sub = b.rdb.Subscribe(ctx,
		DataChannel(instanceID, ""),
		SystemChannel(instanceID),
		BroadcastChannel(),
	)
	// 确认订阅建立，失败在启动期暴露
	if _, err := b.sub.Receive(ctx); err != nil {
		return errors.Wrap(err, "bus subscribe")
	}

	ch := b.sub.Channel()
	safe.SafeGo(func() {
		for msg := range ch {
			if msg.Payload == "" || msg.Payload == "null" {
				continue
			}
			recv(msg.Channel, []byte(msg.Payload))
		}
		logger.Infof("[bus] subscription drained, instance=%s", instanceID)
	})
	return nil
}

func (b *RedisBus) Close() error {
	if b.sub != nil {
		return b.sub.Close()
	}
	return nil
}
