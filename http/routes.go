package http

import (
	"net/http"
	"sort"
	"strings"
	"time"
)

// Route 一条对外暴露的端点
type Route struct {
	Method      string
	Path        string
	Description string
	Handler     http.HandlerFunc
}

func (rt Route) String() string {
	return rt.Method + " " + rt.Path
}

// pattern ServeMux匹配模式，根路径只精确匹配
func (rt Route) pattern() string {
	if rt.Path == "/" {
		return rt.Method + " /{$}"
	}
	return rt.Method + " " + rt.Path
}

func (h *handlers) routeTable() []Route {
	return []Route{
		{http.MethodGet, "/", "service index", h.handleIndex},
		{http.MethodPost, "/process", "classify a wheat kernel (form or JSON)", h.handleWheatProcess},
		{http.MethodPost, "/predict", "predict wheat variety or car price, chosen by the model field or the fields present", h.handlePredict},
		{http.MethodGet, "/check", "health check", h.handleCheck},
		{http.MethodGet, "/debug", "diagnostics", h.handleDebug},
		{http.MethodGet, "/wheat", "wheat form description", h.handleWheatPage},
		{http.MethodPost, "/wheat/process", "classify a wheat kernel", h.handleWheatProcess},
		{http.MethodGet, "/car", "car form description", h.handleCarPage},
		{http.MethodPost, "/car/predict", "estimate a used car price", h.handleCarPredict},
		{http.MethodPost, "/reload", "reload all model artifacts", h.handleReload},
		{http.MethodGet, "/history", "recent predictions", h.handleHistory},
		{http.MethodGet, "/ws/predictions", "websocket stream of prediction events", h.handleEvents},
		{http.MethodGet, "/metrics", "prometheus metrics", h.handleMetrics},
	}
}

func (h *handlers) register(mux *http.ServeMux) {
	for _, rt := range h.routes {
		mux.Handle(rt.pattern(), h.instrument(rt.String(), rt.Handler))
	}
	mux.Handle("/", h.instrument("unmatched", h.handleUnmatched))
}

// instrument 记录每条路由的请求耗时
func (h *handlers) instrument(label string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := newResponseWriter(w)
		next(wrapped, r)
		h.deps.Metrics.ObserveRequest(r.Method, label, wrapped.statusCode, time.Since(start))
	})
}

func (h *handlers) endpoints() []string {
	out := make([]string, len(h.routes))
	for i, rt := range h.routes {
		out[i] = rt.String()
	}
	return out
}

// handleUnmatched 未知路径返回404，路径存在但方法不符返回405
func (h *handlers) handleUnmatched(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	var allowed []string
	for _, rt := range h.routes {
		if rt.Path == path {
			allowed = append(allowed, rt.Method)
			if rt.Method == http.MethodGet {
				allowed = append(allowed, http.MethodHead)
			}
		}
	}

	if len(allowed) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error":     "endpoint not found: " + r.URL.Path,
			"endpoints": h.endpoints(),
		})
		return
	}

	sort.Strings(allowed)
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeJSON(w, http.StatusMethodNotAllowed, map[string]interface{}{
		"error":     "method " + r.Method + " not allowed on " + path,
		"endpoints": h.endpoints(),
	})
}
