// Package events 把提交状态变更推到消息总线，单机用内存实现，多副本用 NATS。
package events

import "context"

type Message struct {
	Topic   string
	Payload []byte
}

type Broker interface {
	// publish
	Publish(ctx context.Context, topic string, payload []byte) error
	// 订阅，ctx 结束后通道关闭
	Subscribe(ctx context.Context, topics []string) (<-chan Message, error)
	// 关闭
	Close() error
}

const topicStatePrefix = "trade:state:"

// StateTopic 某个钱包的状态主题
func StateTopic(wallet string) string { return topicStatePrefix + wallet }
