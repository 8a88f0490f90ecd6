package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// requestNote is shared between the logger and the handlers below it so the
// log line can name the caller resolved further down the chain.
type requestNote struct {
	userID string
}

type noteKey struct{}

func noteUser(ctx context.Context, id string) {
	if n, ok := ctx.Value(noteKey{}).(*requestNote); ok {
		n.userID = id
	}
}

// ZapRequestLogger is a middleware that logs requests using zap.
func ZapRequestLogger(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			note := &requestNote{}
			r = r.WithContext(context.WithValue(r.Context(), noteKey{}, note))

			defer func() {
				isDev := logger.Core().Enabled(zapcore.DebugLevel)

				fields := []zap.Field{
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("remote_ip", r.RemoteAddr),
				}

				if reqID := middleware.GetReqID(r.Context()); reqID != "" {
					fields = append(fields, zap.String("request_id", reqID))
				}
				if note.userID != "" {
					fields = append(fields, zap.String("user_id", note.userID))
				}

				if isDev {
					msg := fmt.Sprintf("%s %s %d %s",
						r.Method, r.URL.Path, ww.Status(), time.Since(start))
					logger.Info(msg, fields...)
				} else {
					logger.Info("request completed", fields...)
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
