// Package bodies supplies the default business-logic hook for each of
// the 13 built-in recipes. In a full AutoCoder run these bodies are
// generated per-component by the external Prompt Service from a
// natural-language description; this package is the human-authored
// fallback the kernel ships so a Blueprint naming a built-in recipe can
// run standalone, and so the walking skeleton has something concrete to
// drive end-to-end. The generator is free to replace any one of these
// with a generated body — the shell only ever calls the Logic it is
// handed, never this package directly.
package bodies

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/autocoder/kernel/internal/primitive"
	"github.com/autocoder/kernel/internal/shell"
	"github.com/autocoder/kernel/internal/state"
	"github.com/autocoder/kernel/internal/telemetry"
	"github.com/autocoder/kernel/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Deps bundles the external collaborators a handful of recipe bodies
// need. Every field is optional; a body that does not use a dependency
// ignores a nil/zero value.
type Deps struct {
	State    state.Adapter
	Logger   zerolog.Logger
	Counters CounterSink // recipient for the MetricsCollector recipe's business counters
	Metrics  *telemetry.Registry
}

// CounterSink is the narrow surface the MetricsCollector recipe body
// writes business counters to — deliberately not the kernel's own
// telemetry.Registry, so a recipe's business metrics stay distinct from
// the capability kernel's per-item observability.
type CounterSink interface {
	Inc(name string, fields map[string]any)
}

// Build dispatches to the default Logic for a named built-in recipe.
// componentName scopes any persisted state to this component instance.
func Build(recipeName, componentName string, cfg map[string]any, deps Deps) (shell.Logic, error) {
	switch recipeName {
	case "Store":
		return NewStoreLogic(componentName, cfg, deps), nil
	case "Controller":
		return NewControllerLogic(cfg), nil
	case "APIEndpoint":
		return NewAPIEndpointLogic(componentName, cfg, deps), nil
	case "MessageQueue":
		return NewMessageQueueLogic(cfg), nil
	case "Aggregator":
		return NewAggregatorLogic(cfg), nil
	case "Filter":
		return NewFilterLogic(cfg), nil
	case "Router":
		return NewRouterLogic(cfg), nil
	case "Cache":
		return NewCacheLogic(cfg), nil
	case "Validator":
		return NewValidatorLogic(cfg), nil
	case "Logger":
		return NewLoggerLogic(componentName, cfg, deps), nil
	case "MetricsCollector":
		return NewMetricsCollectorLogic(cfg, deps), nil
	case "WebSocket":
		return NewWebSocketLogic(cfg), nil
	case "StreamProcessor":
		return NewStreamProcessorLogic(cfg), nil
	default:
		return shell.Logic{}, fmt.Errorf("bodies: no default body for recipe %q", recipeName)
	}
}

// ── config field helpers, matching internal/capability/build.go's style ──

func stringField(cfg map[string]any, key, def string) string {
	if v, ok := cfg[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}

func intField(cfg map[string]any, key string, def int) int {
	if v, ok := cfg[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		}
	}
	return def
}

func durationMsField(cfg map[string]any, key string, def time.Duration) time.Duration {
	ms := intField(cfg, key, -1)
	if ms < 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func stringSliceField(cfg map[string]any, key string) []string {
	v, ok := cfg[key]
	if !ok {
		return nil
	}
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

// ── Store: idempotent persist-and-forward (Transformer, require_output=true) ──

// NewStoreLogic persists each message keyed by cfg["key_field"] (default
// "id") before re-emitting it unchanged.
// It stores directly through the StateAdapter SPI rather than the
// per-component StateCapability wrapper, keying each record as
// "<component>:<record id>" so the adapter's one-row-per-key table
// (internal/state.SQLiteAdapter's component_state table) ends up with
// one row per record.
func NewStoreLogic(componentName string, cfg map[string]any, deps Deps) shell.Logic {
	keyField := stringField(cfg, "key_field", "id")
	return shell.Logic{
		Transform: primitive.TransformFunc(func(ctx context.Context, msg models.Message) (models.Message, bool, error) {
			if deps.State == nil {
				return msg, true, fmt.Errorf("store %s: no state adapter configured", componentName)
			}
			key := recordKey(componentName, keyField, msg)
			blob, err := encodeFields(msg.Fields)
			if err != nil {
				return msg, true, fmt.Errorf("store %s: encode %q: %w", componentName, key, err)
			}
			// Idempotent: writing the same key twice overwrites, it never
			// duplicates or errors (ON CONFLICT DO UPDATE in the SQLite
			// adapter).
			if err := deps.State.Save(ctx, key, blob); err != nil {
				return msg, true, fmt.Errorf("store %s: save %q: %w", componentName, key, err)
			}
			return msg, true, nil
		}),
	}
}

func recordKey(component, keyField string, msg models.Message) string {
	id := fmt.Sprintf("%v", msg.Fields[keyField])
	if id == "" || id == "<nil>" {
		id = msg.ID
	}
	return component + ":" + id
}

func encodeFields(fields map[string]any) ([]byte, error) {
	return json.Marshal(fields)
}

// ── Controller: route by an action field (Splitter) ──

// NewControllerLogic emits to "matched" when cfg["action_field"]
// (default "action") equals one of cfg["actions"], else "unmatched".
func NewControllerLogic(cfg map[string]any) shell.Logic {
	actionField := stringField(cfg, "action_field", "action")
	actions := stringSliceField(cfg, "actions")
	return shell.Logic{
		Split: primitive.SplitFunc(func(ctx context.Context, msg models.Message) (map[string]models.Message, error) {
			action, _ := msg.Fields[actionField].(string)
			if matchesAny(action, actions) {
				return map[string]models.Message{"matched": msg}, nil
			}
			return map[string]models.Message{"unmatched": msg}, nil
		}),
	}
}

func matchesAny(value string, candidates []string) bool {
	if len(candidates) == 0 {
		// No allow-list configured: anything non-empty is a match.
		return value != ""
	}
	for _, c := range candidates {
		if c == value {
			return true
		}
	}
	return false
}

// ── APIEndpoint: HTTP ingress (Source) ──

// NewAPIEndpointLogic runs an HTTP server for the component's lifetime,
// translating each POST into a message emitted on "out". emit's
// backpressure behavior (block / bounded timeout / drop, per the OUT
// port's overflow policy) determines the HTTP response: a successful
// emit answers 202 (configurable to 200 via cfg["accept_status"]), a
// bounded timeout answers 503 with Retry-After.
func NewAPIEndpointLogic(componentName string, cfg map[string]any, deps Deps) shell.Logic {
	addr := stringField(cfg, "listen_addr", ":0")
	path := stringField(cfg, "path", "/ingest")
	acceptStatus := intField(cfg, "accept_status", http.StatusAccepted)
	retryAfterSec := intField(cfg, "retry_after_seconds", 1)

	return shell.Logic{
		Produce: primitive.ProduceFunc(func(ctx context.Context, emit func(string, models.Message) error) error {
			router := chi.NewRouter()
			router.Post(path, func(w http.ResponseWriter, r *http.Request) {
				fields, err := decodeJSONBody(r)
				if err != nil {
					w.WriteHeader(http.StatusBadRequest)
					return
				}
				msg := models.Message{ID: fmt.Sprintf("%v", fields["id"]), Fields: fields}
				if err := emit("out", msg); err != nil {
					if deps.Metrics != nil {
						deps.Metrics.Ingress503.WithLabelValues(componentName).Inc()
					}
					w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
				w.WriteHeader(acceptStatus)
			})

			srv := &http.Server{Addr: addr, Handler: router}
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
				deps.Logger.Info().Str("component", componentName).Msg("api endpoint drained")
				return nil
			case err := <-errCh:
				if err != nil && err != http.ErrServerClosed {
					return fmt.Errorf("apiendpoint %s: %w", componentName, err)
				}
				return nil
			}
		}),
	}
}

// ── MessageQueue: FIFO pass-through with a dequeue timestamp (Transformer) ──

// NewMessageQueueLogic re-emits each message annotated with the instant
// it left the queue; ordering itself is
// the channel's job, not this hook's.
func NewMessageQueueLogic(cfg map[string]any) shell.Logic {
	return shell.Logic{
		Transform: primitive.TransformFunc(func(ctx context.Context, msg models.Message) (models.Message, bool, error) {
			out := msg.Clone()
			out.Fields["dequeued_at"] = time.Now().UTC().Format(time.RFC3339Nano)
			return out, true, nil
		}),
	}
}

// ── Aggregator: windowed sum/count (Merger) ──

// NewAggregatorLogic accumulates cfg["window_size"] (default 10) arrivals
// across all input ports and emits one aggregate message carrying the
// sum of cfg["sum_field"] (default "value") and the window's count.
// Per-port input order is
// preserved by the shell's fairness scheduler; this hook only folds
// whatever arrives, in arrival order, never reordering.
func NewAggregatorLogic(cfg map[string]any) shell.Logic {
	windowSize := intField(cfg, "window_size", 10)
	sumField := stringField(cfg, "sum_field", "value")

	var mu sync.Mutex
	var sum float64
	var count int

	return shell.Logic{
		Merge: primitive.MergeFunc(func(ctx context.Context, fromPort string, msg models.Message) ([]models.Message, error) {
			mu.Lock()
			defer mu.Unlock()
			if v, ok := numeric(msg.Fields[sumField]); ok {
				sum += v
			}
			count++
			if count < windowSize {
				return nil, nil
			}
			aggregate := models.Message{
				ID: fmt.Sprintf("window-%d", time.Now().UnixNano()),
				Fields: map[string]any{
					"sum":   sum,
					"count": count,
				},
			}
			sum, count = 0, 0
			return []models.Message{aggregate}, nil
		}),
	}
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// ── Filter: drop on predicate, never error (Transformer, require_output=false) ──

// NewFilterLogic keeps a message only when cfg["field"] equals
// cfg["equals"]; with no predicate configured every message passes.
// Filtered-out items are a drop, never an error.
func NewFilterLogic(cfg map[string]any) shell.Logic {
	field := stringField(cfg, "field", "")
	equals := stringField(cfg, "equals", "")
	return shell.Logic{
		Transform: primitive.TransformFunc(func(ctx context.Context, msg models.Message) (models.Message, bool, error) {
			if field == "" {
				return msg, true, nil
			}
			value := fmt.Sprintf("%v", msg.Fields[field])
			return msg, value == equals, nil
		}),
	}
}

// ── Router: first matching rule, else default (Splitter) ──

// RouteRule is one Router rule: emit to "matched" when Field equals
// Equals.
type RouteRule struct {
	Field  string
	Equals string
}

// NewRouterLogic emits to "matched" on the first configured rule that
// matches, else "default". cfg carries
// rules as cfg["rules"] = []map[string]any{{"field": ..., "equals": ...}}.
func NewRouterLogic(cfg map[string]any) shell.Logic {
	rules := routeRulesFromConfig(cfg)
	return shell.Logic{
		Split: primitive.SplitFunc(func(ctx context.Context, msg models.Message) (map[string]models.Message, error) {
			for _, rule := range rules {
				if fmt.Sprintf("%v", msg.Fields[rule.Field]) == rule.Equals {
					return map[string]models.Message{"matched": msg}, nil
				}
			}
			return map[string]models.Message{"default": msg}, nil
		}),
	}
}

func routeRulesFromConfig(cfg map[string]any) []RouteRule {
	raw, ok := cfg["rules"]
	if !ok {
		return nil
	}
	// YAML decodes a rules list as []any of map[string]any; tests and
	// programmatic config may hand the typed shape directly.
	var list []map[string]any
	switch l := raw.(type) {
	case []map[string]any:
		list = l
	case []any:
		for _, e := range l {
			if m, ok := e.(map[string]any); ok {
				list = append(list, m)
			}
		}
	default:
		return nil
	}
	rules := make([]RouteRule, 0, len(list))
	for _, r := range list {
		field, _ := r["field"].(string)
		equals, _ := r["equals"].(string)
		if field == "" {
			continue
		}
		rules = append(rules, RouteRule{Field: field, Equals: equals})
	}
	return rules
}

// ── Cache: TTL/size-bounded lookup (Transformer) ──

// NewCacheLogic answers a lookup from an in-memory, TTL/size-bounded
// cache keyed by cfg["key_field"] (default "key"); cfg["ttl_ms"] bounds
// entry lifetime and cfg["max_size"] bounds eviction by oldest-write.
// A lookup miss still produces a result
// (hit=false) rather than a drop — callers distinguish hit from miss in
// the payload, not via the kernel's drop path.
func NewCacheLogic(cfg map[string]any) shell.Logic {
	keyField := stringField(cfg, "key_field", "key")
	ttl := durationMsField(cfg, "ttl_ms", 60*time.Second)
	maxSize := intField(cfg, "max_size", 1000)

	type entry struct {
		value     any
		writtenAt time.Time
	}
	var mu sync.Mutex
	store := map[string]entry{}
	order := []string{}

	return shell.Logic{
		Transform: primitive.TransformFunc(func(ctx context.Context, msg models.Message) (models.Message, bool, error) {
			key := fmt.Sprintf("%v", msg.Fields[keyField])
			mu.Lock()
			defer mu.Unlock()

			if e, ok := store[key]; ok {
				if time.Since(e.writtenAt) <= ttl {
					out := msg.Clone()
					out.Fields["hit"] = true
					out.Fields["value"] = e.value
					return out, true, nil
				}
				delete(store, key)
			}

			if value, ok := msg.Fields["value"]; ok {
				if len(order) >= maxSize {
					oldest := order[0]
					order = order[1:]
					delete(store, oldest)
				}
				store[key] = entry{value: value, writtenAt: time.Now()}
				order = append(order, key)
			}

			out := msg.Clone()
			out.Fields["hit"] = false
			return out, true, nil
		}),
	}
}

// ── Validator: drop messages missing required fields (Transformer, require_output=false) ──

// NewValidatorLogic drops any message missing one of
// cfg["required_fields"].
func NewValidatorLogic(cfg map[string]any) shell.Logic {
	required := stringSliceField(cfg, "required_fields")
	return shell.Logic{
		Transform: primitive.TransformFunc(func(ctx context.Context, msg models.Message) (models.Message, bool, error) {
			for _, field := range required {
				if _, ok := msg.Fields[field]; !ok {
					return msg, false, nil
				}
			}
			return msg, true, nil
		}),
	}
}

// ── Logger: structured log sink (Sink) ──

// NewLoggerLogic writes one structured log line per message, at warn
// level when cfg["level"] is "warn" and at info level for any other
// value (default "info").
func NewLoggerLogic(componentName string, cfg map[string]any, deps Deps) shell.Logic {
	level := stringField(cfg, "level", "info")
	return shell.Logic{
		Consume: primitive.ConsumeFunc(func(ctx context.Context, port string, msg models.Message) error {
			event := deps.Logger.Info()
			if level == "warn" {
				event = deps.Logger.Warn()
			}
			event.Str("component", componentName).Str("port", port).Str("message_id", msg.ID).Msg("logger recipe received message")
			return nil
		}),
	}
}

// ── MetricsCollector recipe: forwards business counters (Sink) ──

// NewMetricsCollectorLogic increments cfg["counter_name"] (default the
// message's "name" field) on the injected CounterSink for every
// message. The MetricsCollector recipe is a business-metric sink,
// distinct from the always-on capability kernel MetricsCollector of
// the same name.
func NewMetricsCollectorLogic(cfg map[string]any, deps Deps) shell.Logic {
	fixedName := stringField(cfg, "counter_name", "")
	return shell.Logic{
		Consume: primitive.ConsumeFunc(func(ctx context.Context, port string, msg models.Message) error {
			if deps.Counters == nil {
				return nil
			}
			name := fixedName
			if name == "" {
				name, _ = msg.Fields["name"].(string)
			}
			if name == "" {
				name = "unnamed"
			}
			deps.Counters.Inc(name, msg.Fields)
			return nil
		}),
	}
}

// ── WebSocket: periodic heartbeat source (Source) ──

// NewWebSocketLogic emits a heartbeat frame every
// cfg["heartbeat_interval_ms"] (default 30000) until shutdown. A
// generated implementation would also
// accept inbound frames from a real socket; that transport is out of
// this kernel's scope, so the reference body only exercises the
// heartbeat half of the contract.
func NewWebSocketLogic(cfg map[string]any) shell.Logic {
	interval := durationMsField(cfg, "heartbeat_interval_ms", 30*time.Second)
	return shell.Logic{
		Produce: primitive.ProduceFunc(func(ctx context.Context, emit func(string, models.Message) error) error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case t := <-ticker.C:
					msg := models.Message{ID: fmt.Sprintf("hb-%d", t.UnixNano()), Fields: map[string]any{"type": "heartbeat"}}
					if err := emit("inbound", msg); err != nil {
						return err
					}
				}
			}
		}),
	}
}

// ── StreamProcessor: rolling window transform (Transformer) ──

// NewStreamProcessorLogic annotates each item with the rolling average
// of cfg["field"] (default "value") over the last cfg["window_size"]
// (default 5) items. Unlike
// Aggregator it stays 1-in/1-out: every item is forwarded, carrying the
// window state rather than being withheld until a batch completes.
func NewStreamProcessorLogic(cfg map[string]any) shell.Logic {
	field := stringField(cfg, "field", "value")
	windowSize := intField(cfg, "window_size", 5)

	var mu sync.Mutex
	window := make([]float64, 0, windowSize)

	return shell.Logic{
		Transform: primitive.TransformFunc(func(ctx context.Context, msg models.Message) (models.Message, bool, error) {
			out := msg.Clone()
			if v, ok := numeric(msg.Fields[field]); ok {
				mu.Lock()
				window = append(window, v)
				if len(window) > windowSize {
					window = window[1:]
				}
				sum := 0.0
				for _, w := range window {
					sum += w
				}
				out.Fields["window_avg"] = sum / float64(len(window))
				mu.Unlock()
			}
			return out, true, nil
		}),
	}
}

// decodeJSONBody reads and decodes an HTTP request body as a flat JSON
// object, the payload shape every built-in recipe schema expects.
func decodeJSONBody(r *http.Request) (map[string]any, error) {
	defer r.Body.Close()
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}
