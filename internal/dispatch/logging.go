package dispatch

import (
	"context"
	"time"

	"expensetracker/internal/log"
	"expensetracker/internal/result"
)

// failure is satisfied by every result.Result instantiation.
type failure interface {
	IsFailure() bool
	Kind() result.Kind
}

// Logging records one line per dispatch with the request kind, duration and
// outcome. The correlation id is picked up from ctx by the logger.
func Logging(logger *log.Logger) Middleware {
	logger = logger.WithComponent(log.ComponentDispatch)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req Request) (any, error) {
			start := time.Now()
			out, err := next(ctx, req)

			fields := []any{
				log.FieldRequestKind, req.Kind(),
				log.FieldDuration, time.Since(start).Milliseconds(),
			}
			switch {
			case err != nil:
				logger.ErrorContext(ctx, "Request failed", append(fields, log.FieldError, err.Error())...)
			case isFailure(out):
				logger.InfoContext(ctx, "Request rejected",
					append(fields, log.FieldFailureKind, string(out.(failure).Kind()))...)
			default:
				logger.DebugContext(ctx, "Request handled", fields...)
			}
			return out, err
		}
	}
}

func isFailure(out any) bool {
	f, ok := out.(failure)
	return ok && f.IsFailure()
}
