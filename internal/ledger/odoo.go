package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kolo/xmlrpc"
)

const (
	defaultTimeout = 10 * time.Second
	readBatchSize  = 100
)

// Config describes how to reach the ERP.
type Config struct {
	URL      string
	Database string
	Username string
	Password string
	Timeout  time.Duration
	Lang     string
}

func (c Config) configured() bool {
	return strings.TrimSpace(c.URL) != "" && c.Database != "" && c.Username != ""
}

type caller interface {
	Call(serviceMethod string, args interface{}, reply interface{}) error
}

// OdooClient talks to the ERP over its XML-RPC endpoints. It authenticates lazily and
// caches the session uid; every call is bounded by Config.Timeout and never retried.
type OdooClient struct {
	cfg     Config
	common  caller
	object  caller
	logger  *slog.Logger
	metrics *Metrics

	mu      sync.Mutex
	uid     int64
	offline atomic.Bool
}

// NewOdooClient builds a client. Missing configuration is not an error: the client
// then reports ErrNotConfigured on every call so callers run in degraded mode.
func NewOdooClient(cfg Config, logger *slog.Logger, metrics *Metrics) (*OdooClient, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Lang == "" {
		cfg.Lang = "es_PE"
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &OdooClient{cfg: cfg, logger: logger.With(slog.String("component", "ledger")), metrics: metrics}
	if !cfg.configured() {
		c.logger.Warn("ledger credentials missing, running without remote data")
		return c, nil
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: cfg.Timeout, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   cfg.Timeout,
		ResponseHeaderTimeout: cfg.Timeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   4,
	}
	base := strings.TrimRight(cfg.URL, "/")
	common, err := xmlrpc.NewClient(base+"/xmlrpc/2/common", transport)
	if err != nil {
		return nil, fmt.Errorf("ledger: common endpoint: %w", err)
	}
	object, err := xmlrpc.NewClient(base+"/xmlrpc/2/object", transport)
	if err != nil {
		return nil, fmt.Errorf("ledger: object endpoint: %w", err)
	}
	c.common = common
	c.object = object
	return c, nil
}

// Authenticate logs in and caches the uid. Subsequent calls reuse the cached session.
func (c *OdooClient) Authenticate(ctx context.Context) (int64, error) {
	if c == nil || c.common == nil {
		return 0, ErrNotConfigured
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.uid > 0 {
		return c.uid, nil
	}
	var reply any
	start := time.Now()
	err := c.invoke(ctx, c.common, "authenticate", []any{c.cfg.Database, c.cfg.Username, c.cfg.Password, map[string]any{}}, &reply)
	c.metrics.observe("session", "authenticate", err, time.Since(start))
	if err != nil {
		return 0, c.markOffline(err)
	}
	uid, ok := asInt(reply)
	if !ok || uid <= 0 {
		return 0, c.markOffline(fmt.Errorf("%w: authentication rejected for %s", ErrOffline, c.cfg.Username))
	}
	c.uid = uid
	return uid, nil
}

// Count returns the number of records matching domain.
func (c *OdooClient) Count(ctx context.Context, model string, domain Domain) (int, error) {
	var reply any
	if err := c.execute(ctx, model, "search_count", []any{normalize(domain)}, c.kwargs(nil), &reply); err != nil {
		return 0, err
	}
	n, ok := asInt(reply)
	if !ok {
		return 0, fmt.Errorf("ledger: %s.search_count: unexpected reply %T", model, reply)
	}
	return int(n), nil
}

// SearchRead returns the records matching domain projected onto opts.Fields.
func (c *OdooClient) SearchRead(ctx context.Context, model string, domain Domain, opts ReadOptions) ([]Record, error) {
	kw := c.kwargs(map[string]any{"fields": fieldList(opts.Fields)})
	if opts.Limit > 0 {
		kw["limit"] = opts.Limit
	}
	if opts.Offset > 0 {
		kw["offset"] = opts.Offset
	}
	if opts.Order != "" {
		kw["order"] = opts.Order
	}
	var reply any
	if err := c.execute(ctx, model, "search_read", []any{normalize(domain)}, kw, &reply); err != nil {
		return nil, err
	}
	return toRecords(reply), nil
}

// Read fetches records by id in batches.
func (c *OdooClient) Read(ctx context.Context, model string, ids []int64, fields []string) ([]Record, error) {
	ids = UniqueIDs(ids)
	out := make([]Record, 0, len(ids))
	for start := 0; start < len(ids); start += readBatchSize {
		end := start + readBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		var reply any
		kw := c.kwargs(map[string]any{"fields": fieldList(fields)})
		if err := c.execute(ctx, model, "read", []any{Int64s(ids[start:end])}, kw, &reply); err != nil {
			return nil, err
		}
		out = append(out, toRecords(reply)...)
	}
	return out, nil
}

// GroupBy groups records by a many2one field.
func (c *OdooClient) GroupBy(ctx context.Context, model string, domain Domain, field string) ([]Group, error) {
	var reply any
	args := []any{normalize(domain), []any{field}, []any{field}}
	if err := c.execute(ctx, model, "read_group", args, c.kwargs(map[string]any{"lazy": true}), &reply); err != nil {
		return nil, err
	}
	records := toRecords(reply)
	groups := make([]Group, 0, len(records))
	for _, rec := range records {
		rel, ok := rec.Relation(field)
		if !ok {
			continue
		}
		groups = append(groups, Group{Key: rel, Count: rec.Int(field + "_count")})
	}
	return groups, nil
}

func (c *OdooClient) execute(ctx context.Context, model, method string, args []any, kwargs map[string]any, reply any) error {
	if c == nil || c.object == nil {
		return ErrNotConfigured
	}
	uid, err := c.Authenticate(ctx)
	if err != nil {
		return err
	}
	start := time.Now()
	params := []any{c.cfg.Database, uid, c.cfg.Password, model, method, args, kwargs}
	err = c.invoke(ctx, c.object, "execute_kw", params, reply)
	c.metrics.observe(model, method, err, time.Since(start))
	if err != nil {
		if errors.Is(err, ErrOffline) || errors.Is(err, ErrTimeout) {
			return c.markOffline(fmt.Errorf("%s.%s: %w", model, method, err))
		}
		return fmt.Errorf("ledger: %s.%s: %w", model, method, err)
	}
	c.markOnline()
	return nil
}

// invoke runs the blocking RPC under the configured deadline.
func (c *OdooClient) invoke(ctx context.Context, rpc caller, method string, params []any, reply any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- rpc.Call(method, params, reply)
	}()
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ctx.Err()
	case err := <-done:
		return classify(err)
	}
}

func (c *OdooClient) kwargs(extra map[string]any) map[string]any {
	kw := map[string]any{"context": map[string]any{"lang": c.cfg.Lang}}
	for k, v := range extra {
		kw[k] = v
	}
	return kw
}

// Online reports whether the ledger is configured and the last call reached it.
func (c *OdooClient) Online() bool {
	return c != nil && c.common != nil && !c.offline.Load()
}

func (c *OdooClient) markOffline(err error) error {
	if c.offline.CompareAndSwap(false, true) {
		c.logger.Warn("ledger unreachable, serving degraded results", slog.Any("error", err))
	}
	return err
}

func (c *OdooClient) markOnline() {
	if c.offline.CompareAndSwap(true, false) {
		c.logger.Info("ledger reachable again")
	}
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var fault xmlrpc.FaultError
	if errors.As(err, &fault) {
		return fmt.Errorf("fault %d: %s", fault.Code, fault.String)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrOffline, err)
}

func normalize(domain Domain) Domain {
	if domain == nil {
		return Domain{}
	}
	return domain
}

func fieldList(fields []string) []any {
	return Strings(fields)
}

func toRecords(reply any) []Record {
	items, ok := reply.([]any)
	if !ok {
		return nil
	}
	out := make([]Record, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, Record(m))
		}
	}
	return out
}
