package xslog

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/garrettladley/rally/internal/version"
	"github.com/garrettladley/rally/internal/xhttp"
)

const (
	keyError = "error"
)

func Error(err error) slog.Attr {
	return slog.String(keyError, err.Error())
}

func ErrorAny(err any) slog.Attr {
	return slog.Any(keyError, err)
}

func RequestID(requestID string) slog.Attr {
	const requestIDKey = "request_id"
	return slog.String(requestIDKey, requestID)
}

func Stack() slog.Attr {
	const stackKey = "stack"
	return slog.String(stackKey, string(debug.Stack()))
}

func HTTPStatus(status int) slog.Attr {
	const statusKey = "status"
	return slog.Int(statusKey, status)
}

func Duration(duration time.Duration) slog.Attr {
	const durationKey = "duration"
	return slog.Duration(durationKey, duration)
}

func Backoff(backoff time.Duration) slog.Attr {
	const backoffKey = "backoff"
	return slog.Duration(backoffKey, backoff)
}

func RequestMethod(r *http.Request) slog.Attr {
	const methodKey = "method"
	return slog.String(methodKey, r.Method)
}

func RequestPath(r *http.Request) slog.Attr {
	const pathKey = "path"
	return slog.String(pathKey, r.URL.Path)
}

func IP(ip string) slog.Attr {
	const ipKey = "ip"
	return slog.String(ipKey, ip)
}

func RequestIP(r *http.Request) slog.Attr {
	return IP(xhttp.GetRequestIP(r))
}

func Version() slog.Attr {
	const versionKey = "version"
	return slog.String(versionKey, version.Get())
}

func ClientVersion(clientVersion string) slog.Attr {
	const clientVersionKey = "client_version"
	return slog.String(clientVersionKey, clientVersion)
}

func Count(count int) slog.Attr {
	const countKey = "count"
	return slog.Int(countKey, count)
}

func SessionID(id string) slog.Attr {
	const sessionIDKey = "session_id"
	return slog.String(sessionIDKey, id)
}

func UserID(id string) slog.Attr {
	const userIDKey = "user_id"
	return slog.String(userIDKey, id)
}

func NotificationID(id string) slog.Attr {
	const notificationIDKey = "notification_id"
	return slog.String(notificationIDKey, id)
}

func Kind(kind string) slog.Attr {
	const kindKey = "kind"
	return slog.String(kindKey, kind)
}

func Type(t string) slog.Attr {
	const typeKey = "type"
	return slog.String(typeKey, t)
}

func Reason(reason string) slog.Attr {
	const reasonKey = "reason"
	return slog.String(reasonKey, reason)
}

func Attempt(n int) slog.Attr {
	const attemptKey = "attempt"
	return slog.Int(attemptKey, n)
}

func Hook(name string) slog.Attr {
	const hookKey = "hook"
	return slog.String(hookKey, name)
}

func Driver(name string) slog.Attr {
	const driverKey = "driver"
	return slog.String(driverKey, name)
}

func URL(u string) slog.Attr {
	const urlKey = "url"
	return slog.String(urlKey, u)
}
