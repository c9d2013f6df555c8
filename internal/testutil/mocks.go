// Package testutil provides shared test utilities and mocks for unit testing.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"sync"

	"github.com/fluxbase-eu/advancedsearch/internal/pubsub"
	"github.com/fluxbase-eu/advancedsearch/internal/query"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrMockNoRows is returned by MockRow when it holds no values.
var ErrMockNoRows = pgx.ErrNoRows

// =============================================================================
// Database
// =============================================================================

// MockRows implements pgx.Rows over in-memory values.
type MockRows struct {
	Data   [][]interface{}
	ErrVal error
	pos    int
	closed bool
}

// NewMockRows creates rows returning data in order.
func NewMockRows(data ...[]interface{}) *MockRows {
	return &MockRows{Data: data}
}

func (r *MockRows) Close() { r.closed = true }
func (r *MockRows) Err() error { return r.ErrVal }
func (r *MockRows) CommandTag() pgconn.CommandTag { return pgconn.NewCommandTag("SELECT " + strconv.Itoa(len(r.Data))) }
func (r *MockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *MockRows) RawValues() [][]byte { return nil }
func (r *MockRows) Conn() *pgx.Conn { return nil }

// Closed reports whether Close was called.
func (r *MockRows) Closed() bool { return r.closed }

func (r *MockRows) Next() bool {
	if r.closed || r.pos >= len(r.Data) {
		r.closed = true
		return false
	}
	r.pos++
	return true
}

func (r *MockRows) Scan(dest ...interface{}) error {
	if r.pos == 0 || r.pos > len(r.Data) {
		return errors.New("scan called without a current row")
	}
	return scanInto(r.Data[r.pos-1], dest)
}

func (r *MockRows) Values() ([]interface{}, error) {
	if r.pos == 0 || r.pos > len(r.Data) {
		return nil, errors.New("values called without a current row")
	}
	return r.Data[r.pos-1], nil
}

// MockRow implements pgx.Row.
type MockRow struct {
	Values []interface{}
	ErrVal error
}

func (r *MockRow) Scan(dest ...interface{}) error {
	if r.ErrVal != nil {
		return r.ErrVal
	}
	if r.Values == nil {
		return ErrMockNoRows
	}
	return scanInto(r.Values, dest)
}

// scanInto assigns src values to destination pointers, converting between
// compatible kinds the way the pgx codecs would.
func scanInto(src []interface{}, dest []interface{}) error {
	if len(src) != len(dest) {
		return fmt.Errorf("scan: %d values into %d destinations", len(src), len(dest))
	}
	for i, d := range dest {
		dv := reflect.ValueOf(d)
		if dv.Kind() != reflect.Ptr || dv.IsNil() {
			return fmt.Errorf("scan: destination %d is not a pointer", i)
		}
		target := dv.Elem()
		if src[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		sv := reflect.ValueOf(src[i])
		switch {
		case sv.Type().AssignableTo(target.Type()):
			target.Set(sv)
		case target.Kind() == reflect.Ptr && sv.Type().AssignableTo(target.Type().Elem()):
			p := reflect.New(target.Type().Elem())
			p.Elem().Set(sv)
			target.Set(p)
		case sv.Type().ConvertibleTo(target.Type()) && sv.Kind() != reflect.String && target.Kind() != reflect.String:
			target.Set(sv.Convert(target.Type()))
		default:
			return fmt.Errorf("scan: cannot assign %T to %s", src[i], target.Type())
		}
	}
	return nil
}

// ExecutorCall records one statement sent to a MockExecutor.
type ExecutorCall struct {
	Method string
	SQL    string
	Args   []interface{}
}

// MockExecutor implements database.Executor with per-method callbacks.
type MockExecutor struct {
	mu    sync.Mutex
	calls []ExecutorCall

	OnQuery    func(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	OnQueryRow func(ctx context.Context, sql string, args ...interface{}) pgx.Row
	OnExec     func(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	OnHealth   func(ctx context.Context) error
}

func (m *MockExecutor) record(method, sql string, args []interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, ExecutorCall{Method: method, SQL: sql, Args: args})
}

// Calls returns the recorded statements.
func (m *MockExecutor) Calls() []ExecutorCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ExecutorCall, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockExecutor) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	m.record("Query", sql, args)
	if m.OnQuery != nil {
		return m.OnQuery(ctx, sql, args...)
	}
	return NewMockRows(), nil
}

func (m *MockExecutor) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	m.record("QueryRow", sql, args)
	if m.OnQueryRow != nil {
		return m.OnQueryRow(ctx, sql, args...)
	}
	return &MockRow{}
}

func (m *MockExecutor) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	m.record("Exec", sql, args)
	if m.OnExec != nil {
		return m.OnExec(ctx, sql, args...)
	}
	return pgconn.NewCommandTag("UPDATE 0"), nil
}

func (m *MockExecutor) Health(ctx context.Context) error {
	if m.OnHealth != nil {
		return m.OnHealth(ctx)
	}
	return nil
}

// =============================================================================
// PubSub
// =============================================================================

// MockPubSub implements pubsub.PubSub and records published messages.
type MockPubSub struct {
	mu          sync.Mutex
	published   []pubsub.Message
	subscribers map[string][]chan pubsub.Message

	PublishErr   error
	SubscribeErr error
}

// NewMockPubSub creates an empty MockPubSub.
func NewMockPubSub() *MockPubSub {
	return &MockPubSub{subscribers: make(map[string][]chan pubsub.Message)}
}

func (m *MockPubSub) Publish(_ context.Context, channel string, payload []byte) error {
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := pubsub.Message{Channel: channel, Payload: payload}
	m.published = append(m.published, msg)
	for _, ch := range m.subscribers[channel] {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

func (m *MockPubSub) Subscribe(_ context.Context, channel string) (<-chan pubsub.Message, error) {
	if m.SubscribeErr != nil {
		return nil, m.SubscribeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan pubsub.Message, 16)
	m.subscribers[channel] = append(m.subscribers[channel], ch)
	return ch, nil
}

func (m *MockPubSub) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, subs := range m.subscribers {
		for _, ch := range subs {
			close(ch)
		}
	}
	m.subscribers = make(map[string][]chan pubsub.Message)
	return nil
}

// Published returns the messages sent so far.
func (m *MockPubSub) Published() []pubsub.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]pubsub.Message, len(m.published))
	copy(out, m.published)
	return out
}

// =============================================================================
// Search collaborators
// =============================================================================

// MockResolver resolves property terms from a fixed map.
type MockResolver struct {
	Terms map[string]int
	Err   error
}

// NewMockResolver creates a resolver knowing terms.
func NewMockResolver(terms map[string]int) *MockResolver {
	return &MockResolver{Terms: terms}
}

// PropertyIDs resolves terms and numeric ids. Unknown references are
// skipped.
func (m *MockResolver) PropertyIDs(_ context.Context, refs []string) ([]int, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	known := make(map[int]bool, len(m.Terms))
	for _, id := range m.Terms {
		known[id] = true
	}

	seen := map[int]bool{}
	var ids []int
	for _, ref := range refs {
		id, ok := m.Terms[ref]
		if !ok {
			n, err := strconv.Atoi(ref)
			if err != nil || !known[n] {
				continue
			}
			id = n
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

// SubSearchCall records one sub-query execution.
type SubSearchCall struct {
	ResourceType string
	Query        query.Raw
}

// MockSubSearcher returns canned ids for sub-queries.
type MockSubSearcher struct {
	mu    sync.Mutex
	calls []SubSearchCall

	IDs []int
	Err error

	OnSearchIDs func(ctx context.Context, resourceType string, q query.Raw) ([]int, error)
}

func (m *MockSubSearcher) SearchIDs(ctx context.Context, resourceType string, q query.Raw) ([]int, error) {
	m.mu.Lock()
	m.calls = append(m.calls, SubSearchCall{ResourceType: resourceType, Query: q})
	m.mu.Unlock()

	if m.OnSearchIDs != nil {
		return m.OnSearchIDs(ctx, resourceType, q)
	}
	return m.IDs, m.Err
}

// Calls returns the recorded sub-query executions.
func (m *MockSubSearcher) Calls() []SubSearchCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SubSearchCall, len(m.calls))
	copy(out, m.calls)
	return out
}
