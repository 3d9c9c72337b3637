package handler

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/GoPolymarket/logreplay/internal/pkg/logger"
	"github.com/gin-gonic/gin"
)

// NewUpstreamProxy forwards unmatched routes to upstream so any HTTP
// service can be recorded by placing this binary in front of it.
func NewUpstreamProxy(upstream string) (gin.HandlerFunc, error) {
	target, err := url.Parse(upstream)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid proxy upstream %q", upstream)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		req.Host = target.Host
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("upstream proxy error", "upstream", target.Host, "path", r.URL.Path, "error", err)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("Bad Gateway"))
	}

	return func(c *gin.Context) {
		proxy.ServeHTTP(c.Writer, c.Request)
	}, nil
}
