package realtime

import "encoding/json"

// 事件名
const (
	EventSaveImage      = "save_image"
	EventNewImage       = "new_image"
	EventSaveImageError = "save_image_error"
	EventError          = "error"
)

// Envelope 出站消息 {"event": ..., "data": ...}
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// Inbound 入站消息，data 延迟解析
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ErrorPayload error / save_image_error 事件的 data
type ErrorPayload struct {
	Step    string `json:"step,omitempty"`
	Message string `json:"message"`
}

// Encode 编码消息
func Encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// Decode 解析入站消息
func Decode(raw []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return Inbound{}, err
	}
	return in, nil
}
