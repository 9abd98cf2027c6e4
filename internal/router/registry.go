// Package router keeps a small table of registered HTTP routes purely for
// the startup banner; actual dispatch is owned by the dispatcher (C8),
// which implements http.Handler directly and does its own internal routing.
package router

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/pterm/pterm"

	"github.com/nexbridge/sidecar/internal/logger"
)

type RouteInfo struct {
	Description string
	Method      string
	Order       int
}

type RouteRegistry struct {
	routes   map[string]RouteInfo
	logger   *logger.StyledLogger
	orderSeq int
}

func NewRouteRegistry(log *logger.StyledLogger) *RouteRegistry {
	return &RouteRegistry{
		routes: make(map[string]RouteInfo),
		logger: log,
	}
}

func (r *RouteRegistry) Register(route, method, description string) {
	r.routes[route] = RouteInfo{
		Description: description,
		Method:      method,
		Order:       r.orderSeq,
	}
	r.orderSeq++
}

// LogRoutesTable renders the registered routes as a pterm table, the way a
// startup banner would, before the single dispatcher handler takes over.
func (r *RouteRegistry) LogRoutesTable() {
	if len(r.routes) == 0 {
		return
	}

	type routeEntry struct {
		path   string
		method string
		desc   string
		order  int
	}

	entries := make([]routeEntry, 0, len(r.routes))
	for route, info := range r.routes {
		entries = append(entries, routeEntry{
			path:   route,
			method: info.Method,
			desc:   info.Description,
			order:  info.Order,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].order < entries[j].order
	})

	tableData := [][]string{
		{"ROUTE", "METHOD", "DESCRIPTION"},
	}
	for _, entry := range entries {
		tableData = append(tableData, []string{entry.path, entry.method, entry.desc})
	}

	r.logger.InfoWithCount("Registered web routes", len(entries))
	tableString, _ := pterm.DefaultTable.WithHasHeader().WithData(tableData).Srender()
	fmt.Print(tableString)
}

func (r *RouteRegistry) GetRoutes() map[string]RouteInfo {
	return r.routes
}

// DefaultRoutes describes the fixed surface ServeHTTP switches on, for the
// startup banner only — registering it twice with a real mux would be
// redundant since the dispatcher already owns all of these paths.
func DefaultRoutes() []struct {
	Path, Method, Description string
} {
	return []struct {
		Path, Method, Description string
	}{
		{"/health", http.MethodGet, "Liveness probe"},
		{"/metrics", http.MethodGet, "Prometheus-format metrics exposition"},
		{"/admin/health", http.MethodGet, "Per-endpoint health snapshot"},
		{"/admin/status", http.MethodGet, "Build/version status"},
		{"/admin/circuit-breakers", http.MethodGet, "Circuit breaker state snapshot"},
		{"/api/{service}/...", "*", "Proxied request, routed by path prefix"},
	}
}
