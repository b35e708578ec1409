package collab

import (
	"context"
	"errors"
)

// SemaphoreControl 基于 channel 的计数信号量，
// 用来限制在途补丁提交数和 Kafka 并发发送数
type SemaphoreControl struct {
	ch chan struct{}
}

var DefaultMaxInflight = 100

func NewSemaphoreControl(max int) *SemaphoreControl {
	if max <= 0 {
		max = DefaultMaxInflight
	}
	return &SemaphoreControl{ch: make(chan struct{}, max)}
}

func (s *SemaphoreControl) Acquire(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return errors.New("Acquire Reach time limit")
	}
}

func (s *SemaphoreControl) Release() error {
	select {
	case <-s.ch:
		return nil
	default:
		return errors.New("Release Failed, semaphore is not acquired")
	}
}
