// Package health отдаёт состояние сервиса учёта и его зависимостей
// (хранилище, Redis, backlog outbox) для /healthz и /readyz.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// DefaultCheckTimeout ограничивает одну проверку.
const DefaultCheckTimeout = 2 * time.Second

// Check — результат проверки одного компонента.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	Optional   bool   `json:"optional,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response — тело /healthz.
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker проверяет один компонент.
type Checker interface {
	Check(ctx context.Context) Check
}

type component struct {
	name     string
	checker  Checker
	optional bool
}

// Handler запускает зарегистрированные проверки. Обязательный компонент
// при отказе делает сервис unhealthy, необязательный только degraded.
type Handler struct {
	mu         sync.RWMutex
	components []component
	version    string
	started    time.Time
	timeout    time.Duration
}

func NewHandler(version string) *Handler {
	return &Handler{
		version: version,
		started: time.Now(),
		timeout: DefaultCheckTimeout,
	}
}

// SetTimeout меняет таймаут одной проверки; неположительные значения игнорируются.
func (h *Handler) SetTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	h.mu.Lock()
	h.timeout = timeout
	h.mu.Unlock()
}

// RegisterChecker добавляет обязательный компонент.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.add(component{name: name, checker: checker})
}

// RegisterOptional добавляет компонент, без которого учёт продолжает работать.
func (h *Handler) RegisterOptional(name string, checker Checker) {
	h.add(component{name: name, checker: checker, optional: true})
}

// add заменяет компонент с тем же именем и держит список отсортированным.
func (h *Handler) add(c component) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.components = slices.DeleteFunc(h.components, func(existing component) bool { return existing.name == c.name })
	h.components = append(h.components, c)
	slices.SortFunc(h.components, func(a, b component) int { return strings.Compare(a.name, b.name) })
}

// Run проверяет компоненты параллельно, каждый со своим таймаутом.
func (h *Handler) Run(ctx context.Context) Response {
	h.mu.RLock()
	components := slices.Clone(h.components)
	timeout := h.timeout
	h.mu.RUnlock()

	results := make([]Check, len(components))
	var g errgroup.Group
	for i, c := range components {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			res := c.checker.Check(checkCtx)
			res.Name = c.name
			res.Optional = c.optional
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	checks := make(map[string]Check, len(results))
	for _, res := range results {
		checks[res.Name] = res
	}
	return Response{
		Status:        overall(results),
		Timestamp:     time.Now(),
		Checks:        checks,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	}
}

func overall(results []Check) Status {
	status := StatusHealthy
	for _, res := range results {
		switch {
		case res.Status == StatusHealthy:
		case !res.Optional && res.Status == StatusUnhealthy:
			return StatusUnhealthy
		default:
			status = StatusDegraded
		}
	}
	return status
}

// ServeHTTP отдаёт Response в JSON; 503 только для unhealthy.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := h.Run(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus(resp.Status))
	_ = json.NewEncoder(w).Encode(resp)
}

// ReadinessHandler отвечает 503, пока недоступен хотя бы один обязательный компонент.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	code := httpStatus(h.Run(r.Context()).Status)
	body := "ready"
	if code != http.StatusOK {
		body = "not ready"
	}
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

// LivenessHandler всегда отвечает 200.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func httpStatus(s Status) int {
	if s == StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

// SimpleChecker превращает функцию в Checker: ошибка означает unhealthy.
type SimpleChecker struct {
	name  string
	check func(ctx context.Context) error
}

func NewSimpleChecker(name string, check func(ctx context.Context) error) *SimpleChecker {
	return &SimpleChecker{name: name, check: check}
}

func (c *SimpleChecker) Check(ctx context.Context) Check {
	started := time.Now()
	err := c.check(ctx)

	res := Check{Name: c.name, Status: StatusHealthy, DurationMs: time.Since(started).Milliseconds()}
	if err != nil {
		res.Status = StatusUnhealthy
		res.Message = err.Error()
	}
	return res
}
