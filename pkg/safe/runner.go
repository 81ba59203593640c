package safe

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
	"teamtoken.com/pkg/logger"
)

// PanicHook 协程 panic 后的回调，用来把业务状态落到终态
type PanicHook func(ctx context.Context, r any)

// GoCtx 安全启动携带 context 的协程，日志里保留链路信息
func GoCtx(ctx context.Context, fn func(ctx context.Context), hooks ...PanicHook) {
	if ctx == nil {
		ctx = context.Background()
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				report(ctx, r)
				for _, h := range hooks {
					if h != nil {
						h(ctx, r)
					}
				}
			}
		}()

		fn(ctx)
	}()
}

// Call 同步执行 fn，panic 转成 error 返回
func Call(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			report(ctx, r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

func report(ctx context.Context, r any) {
	stack := string(debug.Stack())
	if logger.Log != nil {
		logger.Error(ctx, "🚨 GOROUTINE PANIC RECOVERED",
			zap.Any("panic", r),
			zap.String("stack", stack),
		)
		return
	}
	fmt.Printf("🚨 GOROUTINE PANIC: %v\nStack: %s\n", r, stack)
}
