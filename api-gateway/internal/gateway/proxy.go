package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/novap2p/novap2p/shared/middleware"
)

// Headers carrying the caller identity resolved at the gateway.
const (
	HeaderUserID = "X-User-ID"
	HeaderRole   = "X-User-Role"
)

// proxyTo forwards the request unchanged to serviceURL. Responses are
// flushed as they arrive so change streams pass straight through.
func proxyTo(serviceURL string) (gin.HandlerFunc, error) {
	target, err := url.Parse(serviceURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("gateway: invalid service url %q", serviceURL)
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(target)
			r.SetXForwarded()
		},
		FlushInterval: -1,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if r.Context().Err() != nil {
				return
			}
			slog.WarnContext(r.Context(), "error proxying request", "target", serviceURL, "path", r.URL.Path, "error", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(gin.H{"message": "Service unavailable"})
		},
	}

	return func(c *gin.Context) {
		// Identity headers are only trusted when set here.
		c.Request.Header.Del(HeaderUserID)
		c.Request.Header.Del(HeaderRole)
		if userID, ok := middleware.GetUserID(c); ok {
			c.Request.Header.Set(HeaderUserID, userID)
			c.Request.Header.Set(HeaderRole, middleware.GetRole(c))
		}
		proxy.ServeHTTP(c.Writer, c.Request)
	}, nil
}
