package reactor

// 默认配置
var (
	DefaultTaskQueueSize    = 1024
	DefaultSignalBufferSize = 64
)

// Options Loop 配置
type Options struct {
	// TaskQueueSize QueueInLoop 任务队列的初始容量
	TaskQueueSize int
	// SignalBufferSize 信号转发 channel 的缓冲大小
	SignalBufferSize int
}

// Option ...
type Option func(*Options)

func newOptions(opt ...Option) *Options {
	opts := Options{}

	for _, o := range opt {
		o(&opts)
	}

	if opts.TaskQueueSize <= 0 {
		opts.TaskQueueSize = DefaultTaskQueueSize
	}
	if opts.SignalBufferSize <= 0 {
		opts.SignalBufferSize = DefaultSignalBufferSize
	}

	return &opts
}

// TaskQueueSize 设置 QueueInLoop 任务队列初始容量
func TaskQueueSize(n int) Option {
	return func(o *Options) {
		o.TaskQueueSize = n
	}
}

// SignalBufferSize 设置信号转发 channel 缓冲大小
func SignalBufferSize(n int) Option {
	return func(o *Options) {
		o.SignalBufferSize = n
	}
}
