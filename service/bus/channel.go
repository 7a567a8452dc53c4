package bus

import "strings"

// 频道命名：<instanceID>#<class>，外加全局广播频道 all#broadcast。
// class 是封闭的三分变体，未识别的频道在解析处丢弃。

const (
	broadcastInstance = "all"
	classBroadcast    = "broadcast"
	classSystem       = "system"

	// DefaultDataClass 数据类缺省的消息传输类型
	DefaultDataClass = "text/plain"
)

type Kind int

const (
	KindBroadcast Kind = iota + 1
	KindSystem
	KindData
)

// Class 消息类。KindData 时 Label 携带传输类型（如 text/plain）。
type Class struct {
	Kind  Kind
	Label string
}

func Broadcast() Class { return Class{Kind: KindBroadcast} }
func System() Class    { return Class{Kind: KindSystem} }

func Data(label string) Class {
	if label == "" {
		label = DefaultDataClass
	}
	return Class{Kind: KindData, Label: label}
}

// BroadcastChannel 全局广播频道名
func BroadcastChannel() string { return broadcastInstance + "#" + classBroadcast }

// SystemChannel 实例的系统类频道名
func SystemChannel(instanceID string) string { return instanceID + "#" + classSystem }

// DataChannel 实例的数据类频道名，label 为空时取 text/plain
func DataChannel(instanceID, label string) string {
	if label == "" {
		label = DefaultDataClass
	}
	return instanceID + "#" + label
}

// ParseChannel 解析频道名。格式不对返回 ok=false，调用方丢弃。
func ParseChannel(channel string) (instanceID string, class Class, ok bool) {
	inst, label, found := strings.Cut(channel, "#")
	if !found || inst == "" || label == "" {
		return "", Class{}, false
	}
	switch label {
	case classBroadcast:
		return inst, Broadcast(), true
	case classSystem:
		return inst, System(), true
	default:
		return inst, Data(label), true
	}
}
