// Package clock 抽象时间操作，生产代码使用Real()，测试使用Fake()精确控制时间。
package clock

import "time"

type Clock interface {
	Now() time.Time

	// AfterFunc 在d之后调用f，返回的Timer可以取消尚未触发的调用
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	// Stop 阻止定时器触发，已触发或已停止时返回false
	Stop() bool
}

func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
