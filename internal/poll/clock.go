package poll

import "time"

// Clock 抽象时间源，测试时注入手动时钟，避免真实等待
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock 返回基于系统时间的时钟
func RealClock() Clock { return realClock{} }
