package router

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	kit "diarybot/internal/transport"
	"diarybot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

// Chain wraps h so that m[0] runs first.
func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if d <= 0 {
				return next(ctx, req)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					l := log
					if !req.Logger.IsZero() {
						l = req.Logger
					}
					l.Error("panic recovered", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

func MWRequestLog() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			d := time.Since(start)
			switch {
			case err != nil:
				req.Logger.Warn("request failed", logx.Duration("dur", d), logx.Err(err))
			case d >= 750*time.Millisecond:
				req.Logger.Info("request ok", logx.Duration("dur", d))
			default:
				req.Logger.Debug("request ok", logx.Duration("dur", d))
			}
			return err
		}
	}
}

// MWErrorReply answers the user with text(err) when the handler fails.
// The error is still returned for logging.
func MWErrorReply(text func(error) string) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			err := next(ctx, req)
			if err == nil || text == nil {
				return err
			}
			if msg := text(err); msg != "" {
				sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
				defer cancel()
				_ = req.Reply(sctx, msg, nil)
			}
			return err
		}
	}
}

// MWAccess rejects requests the caller may not run. Rejections are
// answered directly and are not errors.
func MWAccess(level Access, isAdmin func(int64) bool, adapter kit.Adapter) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			switch level {
			case AccessAdmin:
				if !isAdmin(req.FromID) {
					return req.Reply(ctx, "⛔ Команда доступна только администраторам бота.", nil)
				}
			case AccessGroupAdmin:
				if !req.IsGroup {
					return req.Reply(ctx, "Эта команда работает только в группах.", nil)
				}
				if !isAdmin(req.FromID) && !chatAdmin(ctx, adapter, req) {
					return req.Reply(ctx, "⛔ Только администраторы группы могут настраивать рассылку.", nil)
				}
			}
			return next(ctx, req)
		}
	}
}

func chatAdmin(ctx context.Context, adapter kit.Adapter, req *Request) bool {
	ac, ok := adapter.(kit.ChatAdminChecker)
	if !ok {
		return false
	}
	yes, err := ac.IsChatAdmin(ctx, req.Chat.ChatID, req.FromID)
	if err != nil {
		req.Logger.Warn("chat admin check failed", logx.Err(err))
		return false
	}
	return yes
}
