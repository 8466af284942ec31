// loadtest нагружает сервис учёта параллельными платежами по gRPC и
// после прогона сверяет итоговый долг каждого клиента с ожидаемым.
//
// Клиенты, товар и стартовые заказы создаются перед прогоном: клиенты и товар
// через HTTP API, заказы через gRPC.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	ledgerv1 "github.com/vladislavdragonenkov/muzbazar/proto/ledger/v1"
)

const (
	idempotencyHeader = "idempotency-key"
	defaultAmount     = int64(1000)

	// scenarioMethod — под этим именем учитывается сценарий целиком.
	scenarioMethod = "scenario"
)

type loadMode string

const (
	// modePay — платежи без order_id, распределяются по FIFO.
	modePay loadMode = "pay"
	// modePayOrder — адресные платежи по заказам клиента по кругу.
	modePayOrder loadMode = "pay-order"
	// modeMixed — каждый четвёртый сценарий доначисляет долг вместо оплаты.
	modeMixed loadMode = "mixed"
)

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modePay, modePayOrder, modeMixed:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

type config struct {
	addr            string
	httpAddr        string
	total           int
	concurrency     int
	connections     int
	timeout         time.Duration
	mode            loadMode
	clients         int
	ordersPerClient int
	amount          int64
	tag             string
	outputPath      string
	verify          bool
}

func parseConfig(args []string) (config, error) {
	var (
		cfg  config
		mode string
	)
	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.addr, "addr", "localhost:50051", "gRPC address of the ledger service")
	fs.StringVar(&cfg.httpAddr, "http", "http://localhost:9090", "HTTP API base URL for client and product registration")
	fs.IntVar(&cfg.total, "total", 400, "scenarios to run")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "scenarios in flight")
	fs.IntVar(&cfg.connections, "connections", 20, "gRPC connections shared by workers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-call timeout")
	fs.StringVar(&mode, "mode", string(modePay), "pay | pay-order | mixed")
	fs.IntVar(&cfg.clients, "clients", 4, "clients sharing the load")
	fs.IntVar(&cfg.ordersPerClient, "orders-per-client", 3, "orders with debt created per client")
	fs.Int64Var(&cfg.amount, "amount", defaultAmount, "amount of each payment or debt increase")
	fs.StringVar(&cfg.tag, "tag", "load", "prefix of generated ids")
	fs.StringVar(&cfg.outputPath, "output", "", "write the JSON report to this file")
	fs.BoolVar(&cfg.verify, "verify", true, "check final client debts")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	var err error
	if cfg.mode, err = parseMode(mode); err != nil {
		return config{}, err
	}
	cfg.httpAddr = strings.TrimRight(strings.TrimSpace(cfg.httpAddr), "/")
	cfg.tag = strings.TrimSpace(cfg.tag)

	positive := []struct {
		name  string
		value int64
	}{
		{"total", int64(cfg.total)},
		{"concurrency", int64(cfg.concurrency)},
		{"connections", int64(cfg.connections)},
		{"timeout", int64(cfg.timeout)},
		{"clients", int64(cfg.clients)},
		{"orders-per-client", int64(cfg.ordersPerClient)},
		{"amount", cfg.amount},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return config{}, fmt.Errorf("%s must be > 0", p.name)
		}
	}
	if cfg.tag == "" {
		return config{}, errors.New("tag is required")
	}
	if cfg.httpAddr == "" {
		return config{}, errors.New("http is required")
	}
	return cfg, nil
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(2)
	}

	result, err := run(context.Background(), cfg, os.Stdout)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}
	if result.FailedScenarios > 0 || len(result.Mismatches) > 0 {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config, out io.Writer) (report, error) {
	clients := make([]ledgerv1.LedgerServiceClient, cfg.connections)
	for i := range clients {
		conn, err := grpc.NewClient(cfg.addr,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			ledgerv1.DialOption(),
		)
		if err != nil {
			return report{}, fmt.Errorf("dial %s: %w", cfg.addr, err)
		}
		defer conn.Close()
		clients[i] = ledgerv1.NewLedgerServiceClient(conn)
	}

	runID := fmt.Sprintf("%d-%d", time.Now().UnixNano(), os.Getpid())
	seed := &httpSeeder{baseURL: cfg.httpAddr, client: &http.Client{Timeout: cfg.timeout}}
	fx, err := prepare(ctx, cfg, seed, clients[0], runID)
	if err != nil {
		return report{}, fmt.Errorf("prepare fixture: %w", err)
	}

	rec := newRecorder()
	startedAt := time.Now()

	var g errgroup.Group
	g.SetLimit(cfg.concurrency)
	for i := range cfg.total {
		client := clients[i%len(clients)]
		g.Go(func() error {
			// Ошибка сценария уже учтена в rec, прогон продолжается.
			_ = runScenario(client, cfg, fx, i, runID, rec)
			return nil
		})
	}
	_ = g.Wait()
	elapsed := time.Since(startedAt)

	var mismatches []string
	if cfg.verify {
		mismatches = verify(ctx, clients[0], cfg.timeout, fx, rec)
	}

	result := rec.report(startedAt, elapsed)
	result.Mismatches = mismatches
	result.Verified = cfg.verify && len(mismatches) == 0

	printReport(out, result, cfg)
	if cfg.outputPath != "" {
		if err := writeReport(cfg.outputPath, result); err != nil {
			return result, fmt.Errorf("write report: %w", err)
		}
	}
	return result, nil
}

// seeder регистрирует справочные данные, которых нет в gRPC API.
type seeder interface {
	RegisterClient(ctx context.Context, id, name string) error
	RegisterProduct(ctx context.Context, id string, price, stock int64) error
}

type httpSeeder struct {
	baseURL string
	client  *http.Client
}

func (s *httpSeeder) RegisterClient(ctx context.Context, id, name string) error {
	return s.post(ctx, "/api/v1/clients", map[string]any{"id": id, "name": name, "role": "client"})
}

func (s *httpSeeder) RegisterProduct(ctx context.Context, id string, price, stock int64) error {
	return s.post(ctx, "/api/v1/products", map[string]any{"id": id, "name": id, "sell_price": price, "stock": stock})
}

func (s *httpSeeder) post(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("POST %s: unexpected status %d", path, resp.StatusCode)
	}
	return nil
}

// fixture — подготовленные клиенты и ожидаемые долги.
type fixture struct {
	clientIDs []string
	orders    map[string][]string
	expected  map[string]*atomic.Int64
}

func (f *fixture) clientFor(index int) string {
	return f.clientIDs[index%len(f.clientIDs)]
}

func (f *fixture) orderFor(index int) (string, string) {
	clientID := f.clientFor(index)
	orders := f.orders[clientID]
	return clientID, orders[(index/len(f.clientIDs))%len(orders)]
}

// prepare создаёт клиентов и заказы с долгом, которого хватает на все сценарии.
func prepare(ctx context.Context, cfg config, seed seeder, client ledgerv1.LedgerServiceClient, runID string) (*fixture, error) {
	perClient := (cfg.total + cfg.clients - 1) / cfg.clients
	perOrder := (perClient + cfg.ordersPerClient - 1) / cfg.ordersPerClient
	qty := int64(perOrder + 1)

	productID := fmt.Sprintf("%s-product-%s", cfg.tag, runID)
	stock := qty * int64(cfg.clients*cfg.ordersPerClient)
	if err := seed.RegisterProduct(ctx, productID, cfg.amount, stock); err != nil {
		return nil, fmt.Errorf("register product: %w", err)
	}

	fx := &fixture{
		clientIDs: make([]string, 0, cfg.clients),
		orders:    make(map[string][]string, cfg.clients),
		expected:  make(map[string]*atomic.Int64, cfg.clients),
	}
	for i := range cfg.clients {
		clientID := fmt.Sprintf("%s-client-%s-%d", cfg.tag, runID, i)
		if err := seed.RegisterClient(ctx, clientID, fmt.Sprintf("Load client %d", i)); err != nil {
			return nil, fmt.Errorf("register client %s: %w", clientID, err)
		}

		debt := &atomic.Int64{}
		for j := range cfg.ordersPerClient {
			rpcCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
			rpcCtx = metadata.AppendToOutgoingContext(rpcCtx, idempotencyHeader, fmt.Sprintf("lt-order-%s-%d-%d", runID, i, j))
			resp, err := client.CreateOrder(rpcCtx, &ledgerv1.CreateOrderRequest{
				ClientID: clientID,
				Items:    []*ledgerv1.CreateOrderItem{{ProductID: productID, Quantity: qty}},
			})
			cancel()
			if err != nil {
				return nil, fmt.Errorf("create order for %s: %w", clientID, err)
			}
			if resp.Order == nil || resp.Order.GetID() == "" {
				return nil, errors.New("create response returned empty order id")
			}
			fx.orders[clientID] = append(fx.orders[clientID], resp.Order.GetID())
			debt.Add(resp.Order.GetDebt())
		}

		fx.clientIDs = append(fx.clientIDs, clientID)
		fx.expected[clientID] = debt
	}
	return fx, nil
}

// runScenario выполняет один платёж или доначисление и сдвигает ожидаемый долг.
func runScenario(client ledgerv1.LedgerServiceClient, cfg config, fx *fixture, index int, runID string, rec *recorder) (err error) {
	started := time.Now()
	defer func() { rec.observe(scenarioMethod, started, err) }()

	key := fmt.Sprintf("lt-%s-%s-%d", cfg.mode, runID, index)

	switch {
	case cfg.mode == modeMixed && index%4 == 3:
		clientID, orderID := fx.orderFor(index)
		if err = callIncreaseDebt(client, cfg.timeout, orderID, cfg.amount, key, rec); err == nil {
			fx.expected[clientID].Add(cfg.amount)
		}
	case cfg.mode == modePayOrder:
		clientID, orderID := fx.orderFor(index)
		req := &ledgerv1.ApplyPaymentRequest{ClientID: clientID, OrderID: orderID, Amount: cfg.amount, Notes: "load-test"}
		if err = callApplyPayment(client, cfg.timeout, req, key, rec); err == nil {
			fx.expected[clientID].Add(-cfg.amount)
		}
	default:
		clientID := fx.clientFor(index)
		req := &ledgerv1.ApplyPaymentRequest{ClientID: clientID, Amount: cfg.amount, Notes: "load-test"}
		if err = callApplyPayment(client, cfg.timeout, req, key, rec); err == nil {
			fx.expected[clientID].Add(-cfg.amount)
		}
	}
	return err
}

func callApplyPayment(client ledgerv1.LedgerServiceClient, timeout time.Duration, req *ledgerv1.ApplyPaymentRequest, key string, rec *recorder) error {
	started := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	resp, err := client.ApplyPayment(metadata.AppendToOutgoingContext(ctx, idempotencyHeader, key), req)
	if err == nil && resp.Applied != req.Amount {
		err = status.Errorf(codes.DataLoss, "applied %d of %d", resp.Applied, req.Amount)
	}
	rec.observe("ApplyPayment", started, err)
	return err
}

func callIncreaseDebt(client ledgerv1.LedgerServiceClient, timeout time.Duration, orderID string, amount int64, key string, rec *recorder) error {
	started := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	_, err := client.IncreaseDebt(metadata.AppendToOutgoingContext(ctx, idempotencyHeader, key), &ledgerv1.IncreaseDebtRequest{
		OrderID: orderID,
		Amount:  amount,
		Reason:  "load-test",
	})
	rec.observe("IncreaseDebt", started, err)
	return err
}

// verify сравнивает TotalDebt и сумму долгов по заказам с ожидаемыми значениями.
// Расхождение означает потерянное обновление.
func verify(ctx context.Context, client ledgerv1.LedgerServiceClient, timeout time.Duration, fx *fixture, rec *recorder) []string {
	var mismatches []string
	for _, clientID := range fx.clientIDs {
		want := fx.expected[clientID].Load()

		started := time.Now()
		rpcCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := client.GetClientSummary(rpcCtx, &ledgerv1.GetClientSummaryRequest{ClientID: clientID})
		cancel()
		rec.observe("GetClientSummary", started, err)

		switch {
		case err != nil:
			mismatches = append(mismatches, fmt.Sprintf("%s: summary failed: %v", clientID, err))
		case resp.Client == nil:
			mismatches = append(mismatches, fmt.Sprintf("%s: summary without client", clientID))
		case resp.Client.TotalDebt != want || resp.OrdersDebt != want:
			mismatches = append(mismatches, fmt.Sprintf("%s: total_debt=%d orders_debt=%d expected=%d",
				clientID, resp.Client.TotalDebt, resp.OrdersDebt, want))
		}
	}
	return mismatches
}

type sample struct {
	latency time.Duration
	code    codes.Code
}

// recorder собирает длительность и gRPC-код каждого вызова по методам.
type recorder struct {
	mu      sync.Mutex
	samples map[string][]sample
}

func newRecorder() *recorder {
	return &recorder{samples: make(map[string][]sample)}
}

func (r *recorder) observe(method string, started time.Time, err error) {
	r.add(method, sample{latency: time.Since(started), code: status.Code(err)})
}

func (r *recorder) add(method string, s sample) {
	r.mu.Lock()
	r.samples[method] = append(r.samples[method], s)
	r.mu.Unlock()
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
	Verified          bool                    `json:"verified"`
	Mismatches        []string                `json:"mismatches,omitempty"`
}

func summarize(samples []sample) methodReport {
	m := methodReport{Calls: int64(len(samples)), Codes: make(map[string]int64)}
	latencies := make([]time.Duration, len(samples))
	for i, s := range samples {
		if s.code == codes.OK {
			m.Success++
		} else {
			m.Failed++
		}
		m.Codes[s.code.String()]++
		latencies[i] = s.latency
	}
	m.ErrorRate = ratio(m.Failed, m.Calls)
	m.LatencyMs = latencyMs(latencies)
	return m
}

func (r *recorder) report(startedAt time.Time, elapsed time.Duration) report {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: elapsed.Seconds(),
		Methods:         make(map[string]methodReport, len(r.samples)),
	}
	for method, samples := range r.samples {
		out.Methods[method] = summarize(samples)
	}

	scenarios := out.Methods[scenarioMethod]
	out.TotalScenarios = scenarios.Calls
	out.SuccessScenarios = scenarios.Success
	out.FailedScenarios = scenarios.Failed
	out.ErrorRate = scenarios.ErrorRate
	out.ScenarioLatencyMs = scenarios.LatencyMs
	if elapsed > 0 {
		out.RPS = float64(out.TotalScenarios) / elapsed.Seconds()
	}
	return out
}

// latencyMs считает перцентили методом ближайшего ранга.
func latencyMs(latencies []time.Duration) latencySummary {
	if len(latencies) == 0 {
		return latencySummary{}
	}
	sorted := slices.Clone(latencies)
	slices.Sort(sorted)

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	rank := func(p float64) float64 {
		i := int(math.Ceil(p/100*float64(len(sorted)))) - 1
		return ms(sorted[max(i, 0)])
	}
	return latencySummary{
		Min: ms(sorted[0]),
		Max: ms(sorted[len(sorted)-1]),
		Avg: ms(sum / time.Duration(len(sorted))),
		P50: rank(50),
		P95: rank(95),
		P99: rank(99),
	}
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func ratio(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total)
}

func printReport(w io.Writer, r report, cfg config) {
	p := func(format string, args ...any) { _, _ = fmt.Fprintf(w, format, args...) }

	p("load test: mode=%s clients=%d scenarios=%d ok=%d failed=%d error_rate=%.4f\n",
		cfg.mode, cfg.clients, r.TotalScenarios, r.SuccessScenarios, r.FailedScenarios, r.ErrorRate)
	p("elapsed=%.2fs rps=%.2f\n", r.DurationSeconds, r.RPS)
	l := r.ScenarioLatencyMs
	p("scenario ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n", l.Min, l.Avg, l.P50, l.P95, l.P99, l.Max)

	for _, name := range slices.Sorted(maps.Keys(r.Methods)) {
		if name == scenarioMethod {
			continue
		}
		m := r.Methods[name]
		p("  %-16s calls=%d ok=%d failed=%d p95=%.2fms\n", name, m.Calls, m.Success, m.Failed, m.LatencyMs.P95)
	}

	switch {
	case !cfg.verify:
	case r.Verified:
		p("debt check: ok\n")
	default:
		p("debt check: %d mismatches\n", len(r.Mismatches))
		for _, m := range r.Mismatches {
			p("  %s\n", m)
		}
	}
}

// writeReport пишет отчёт в файл внутри текущего каталога.
func writeReport(path string, r report) error {
	clean := filepath.Clean(path)
	switch {
	case clean == "." || clean == string(filepath.Separator):
		return errors.New("output path must point to a file")
	case clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)):
		return fmt.Errorf("output path must stay inside the working directory: %s", path)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(clean, append(data, '\n'), 0o600)
}
