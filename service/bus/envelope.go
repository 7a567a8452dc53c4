package bus

import "encoding/json"

// IDList 兼容历史信封：to 字段可能是单个 socket 身份字符串，也可能是数组。
type IDList []string

func (l *IDList) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var one string
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		*l = IDList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

// Envelope 各实例之间经由总线传输的消息体。
// 路由由频道名决定，不再解析 to 做实例解析——发布方发布前已经解析完目标实例。
type Envelope struct {
	To       IDList `json:"to,omitempty"`       // 目标 socket 身份（接收实例本地投递用）
	Group    string `json:"group,omitempty"`    // 组播来源的组名
	Msg      string `json:"msg,omitempty"`      // 消息主体
	MType    string `json:"mtype,omitempty"`    // 应用级事件名（系统类时为管理命令）
	From     string `json:"from,omitempty"`     // 发起方 socket 身份
	ServerID string `json:"serverId,omitempty"` // 发起方所属实例（系统类携带）
}

func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

func DecodeEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
