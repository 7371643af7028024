package feed

import (
	"errors"
	"fmt"
)

// Step 流水线步骤
type Step string

const (
	StepReceived  Step = "received"
	StepDecoded   Step = "decoded"
	StepCommitted Step = "committed"
	StepPersisted Step = "persisted"
	StepBroadcast Step = "broadcast"
	StepDone      Step = "done"
)

var (
	// ErrDecode 入站数据无法解析
	ErrDecode = errors.New("invalid save_image payload")

	// ErrStore 持久化失败
	ErrStore = errors.New("failed to store image")

	// ErrArtifact 图片文件写入失败
	ErrArtifact = errors.New("failed to write image file")

	// ErrBroadcast 出站事件无法编码
	ErrBroadcast = errors.New("failed to broadcast image")
)

// StepError 某一步骤失败
// errors.Is 对分类错误（ErrDecode 等）和底层原因都成立
type StepError struct {
	Step   Step
	ConnID string
	Kind   error
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("save_image failed at %s (conn %s): %v: %v", e.Step, e.ConnID, e.Kind, e.Err)
}

func (e *StepError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// ClientMessage 回送给提交者的说明，只有解析错误会带上原因
func (e *StepError) ClientMessage() string {
	if errors.Is(e.Kind, ErrDecode) && e.Err != nil {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return e.Kind.Error()
}
