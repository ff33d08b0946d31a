package messaging

type consumeOptions struct {
	concurrency int
	autoAck     bool
	group       string
	queueGroup  string
}

// ConsumeOption configures a Consume call.
type ConsumeOption func(*consumeOptions)

func newConsumeOptions(opts ...ConsumeOption) consumeOptions {
	var co consumeOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&co)
		}
	}
	return co
}

func (o consumeOptions) workers() int {
	if o.concurrency <= 0 {
		return 1
	}
	return o.concurrency
}

// WithConcurrency sets how many handler goroutines process messages in parallel.
func WithConcurrency(n int) ConsumeOption {
	return func(o *consumeOptions) { o.concurrency = n }
}

// WithGroup sets the Kafka consumer group. Kafka requires one; instances that
// must each see every message need distinct groups.
func WithGroup(group string) ConsumeOption {
	return func(o *consumeOptions) { o.group = group }
}

// WithQueueGroup sets the NATS queue group. Empty means every subscriber
// receives every message.
func WithQueueGroup(queueGroup string) ConsumeOption {
	return func(o *consumeOptions) { o.queueGroup = queueGroup }
}

// WithAutoAck acks on a nil handler error and nacks otherwise.
func WithAutoAck(autoAck bool) ConsumeOption {
	return func(o *consumeOptions) { o.autoAck = autoAck }
}
