package reactor

import "errors"

// 错误定义
var (
	// ErrBackendUnavailable 所有底层多路复用机制均初始化失败
	ErrBackendUnavailable = errors.New("no usable polling backend")
	// ErrInvalidDescriptor fd 非法
	ErrInvalidDescriptor = errors.New("invalid file descriptor")
	// ErrInvalidEvents 事件掩码为空或包含不可订阅的位
	ErrInvalidEvents = errors.New("invalid event mask")
	// ErrInvalidInterval 定时器间隔非法
	ErrInvalidInterval = errors.New("invalid timer interval")
	// ErrInvalidSignal 信号编号超出范围
	ErrInvalidSignal = errors.New("invalid signal number")
	// ErrNilCallback 回调为空
	ErrNilCallback = errors.New("callback is nil")
	// ErrAlreadyActive watcher 已在其他 loop 上激活
	ErrAlreadyActive = errors.New("watcher already active on another loop")
	// ErrNotActive 对未激活的 watcher 调用 Stop/Modify
	ErrNotActive = errors.New("watcher not active")
	// ErrLoopClosed loop 已关闭
	ErrLoopClosed = errors.New("loop closed")
)
