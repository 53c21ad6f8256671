package market

import "sync"

// Publisher 一个轻量的变更通知器。
// 每个订阅者的通道容量为 1：已有未消费的通知时新的通知被合并，
// 消费者醒来后读取的是当时最新的状态，而不是中间状态的队列。
type Publisher struct {
	mu   sync.RWMutex
	subs []chan struct{}
}

func NewPublisher() *Publisher {
	return &Publisher{subs: make([]chan struct{}, 0)}
}

// Subscribe 返回一个合并后的变更信号通道。
func (p *Publisher) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	p.mu.Lock()
	p.subs = append(p.subs, ch)
	p.mu.Unlock()
	return ch
}

// Unsubscribe 移除订阅；通道不会被关闭，调用方停止读取即可。
func (p *Publisher) Unsubscribe(ch <-chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, c := range p.subs {
		if c == ch {
			p.subs = append(p.subs[:i], p.subs[i+1:]...)
			return
		}
	}
}

// Notify 非阻塞地通知所有订阅者。
func (p *Publisher) Notify() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, ch := range p.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (p *Publisher) Subscribers() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subs)
}
