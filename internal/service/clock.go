package service

import (
	"time"

	"checkin-companion/internal/session"
)

// Clock 提供当前时间与研究所在时区的日期。
type Clock struct {
	Now      func() time.Time
	Location *time.Location
}

// NewClock 返回使用系统时间的 Clock。
func NewClock(loc *time.Location) Clock {
	return Clock{Now: time.Now, Location: loc}
}

func (c Clock) current() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// Today 返回当前的日期键，每次调用时重新计算。
func (c Clock) Today() string {
	return session.Today(c.current(), c.Location)
}
