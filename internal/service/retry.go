package service

import (
	"context"
	"errors"
	"time"

	"checkin-companion/internal/repository"

	"github.com/cenkalti/backoff/v5"
)

const writeAttempts = 3

// newBackOff 可在测试中替换以缩短等待。
var newBackOff = func() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = time.Second
	return b
}

// withRetry 对持久化写入做有限次数的指数退避重试。会话不存在不会重试。
func withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := op(ctx)
		if errors.Is(err, repository.ErrSessionNotFound) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(newBackOff()), backoff.WithMaxTries(writeAttempts))
	return err
}
