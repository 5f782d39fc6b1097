package xhttp

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	XForwardedFor    = "X-Forwarded-For"
	XContentTypeOpts = "X-Content-Type-Options"
	XFrameOpts       = "X-Frame-Options"
	XXSSProtection   = "X-Xss-Protection"
	ReferrerPolicy   = "Referrer-Policy"
	CacheControl     = "Cache-Control"
	XRateLimitReason = "X-RateLimit-Reason"
	XRequestID       = "X-Request-ID"
	XClientSession   = "X-Client-Session-ID"
	XPublishKey      = "X-Publish-Key"
)

const (
	ContentType     = "Content-Type"
	ContentEncoding = "Content-Encoding"
	ContentLength   = "Content-Length"
	AcceptEncoding  = "Accept-Encoding"
	Vary            = "Vary"
	Authorization   = "Authorization"
	Upgrade         = "Upgrade"
)

const bearerPrefix = "Bearer "

func SetHeaderRequestID(w http.ResponseWriter, requestID string) {
	w.Header().Set(XRequestID, requestID)
}

func SetHeaderContentTypeApplicationJSON(w http.ResponseWriter) {
	const applicationJSON = "application/json"
	w.Header().Set(ContentType, applicationJSON)
}

func SetRequestHeaderContentTypeApplicationJSON(r *http.Request) {
	const applicationJSON = "application/json"
	r.Header.Set(ContentType, applicationJSON)
}

func SetHeaderRetryAfter(w http.ResponseWriter, retryAfter time.Duration) {
	const retryAfterHeader = "Retry-After"
	retryAfterSeconds := int(retryAfter.Seconds())
	w.Header().Set(retryAfterHeader, fmt.Sprintf("%d", retryAfterSeconds))
}

func GetRequestHeaderSessionID(r *http.Request) string {
	return r.Header.Get(XClientSession)
}

// BearerToken extracts the token from an Authorization: Bearer header.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get(Authorization)
	if len(h) < len(bearerPrefix) || !strings.EqualFold(h[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(h[len(bearerPrefix):])
	return token, token != ""
}

// IsWebSocketUpgrade reports whether r asks to switch to a websocket.
func IsWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get(Upgrade), "websocket")
}
