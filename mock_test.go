package leakybucket

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
)

// testTime is a fake time used for testing.
type testTime struct {
	mu  sync.Mutex
	cur time.Time
}

// newTestTime builds a fake clock starting at start.
func newTestTime(start time.Time) *testTime {
	return &testTime{cur: start}
}

// Now returns the current fake time.
func (tt *testTime) Now() time.Time {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	return tt.cur
}

// advance moves the fake time by dur. A negative dur simulates a clock regression.
func (tt *testTime) advance(dur time.Duration) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.cur = tt.cur.Add(dur)
}

// steppingTime returns a reading step later than the previous one on every
// call, so the order of readings is the order in which callers reached the clock.
type steppingTime struct {
	mu       sync.Mutex
	cur      time.Time
	step     time.Duration
	readings []time.Time
}

func newSteppingTime(start time.Time, step time.Duration) *steppingTime {
	return &steppingTime{cur: start, step: step}
}

func (st *steppingTime) Now() time.Time {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.cur = st.cur.Add(st.step)
	st.readings = append(st.readings, st.cur)
	return st.cur
}

func (st *steppingTime) taken() []time.Time {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]time.Time(nil), st.readings...)
}

var errMockDown = errors.New("mock redis unavailable")

// newMockClient implements the Client interface entirely in-memory.
func newMockClient() *mockClient {
	return &mockClient{store: make(map[string]map[string]string)}
}

// mockClient simulates the Lua script logic for tests without Redis backend.
// Like Redis it runs one script at a time.
type mockClient struct {
	mu    sync.Mutex
	store map[string]map[string]string
	down  bool
	ttls  map[string]int64
}

func (m *mockClient) DoCmd(rcv interface{}, cmd, key string, args ...interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return errMockDown
	}
	switch strings.ToUpper(cmd) {
	case "DEL":
		delete(m.store, key)
	case "PING":
		// no-op
	case "HMGET":
		out, ok := rcv.(*[]string)
		if !ok {
			return fmt.Errorf("unexpected receiver type %T", rcv)
		}
		vals := make([]string, len(args))
		for i, f := range args {
			vals[i] = m.store[key][fmt.Sprint(f)]
		}
		*out = vals
	default:
		return fmt.Errorf("mock: unsupported command %s", cmd)
	}
	return nil
}

func (m *mockClient) EvalScript(rcv interface{}, script string, keys []string, args ...interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return errMockDown
	}
	if script != leakScriptSrc {
		return fmt.Errorf("mock: unknown script")
	}
	result, err := m.eval(keys[0], args...)
	if err != nil {
		return err
	}
	out, ok := rcv.(*[]interface{})
	if !ok {
		return fmt.Errorf("unexpected receiver type %T", rcv)
	}
	*out = result
	return nil
}

func (m *mockClient) Close() error        { return nil }
func (m *mockClient) NumActiveConns() int { return 0 }

func (m *mockClient) setDown(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down = down
}

func (m *mockClient) eval(key string, args ...interface{}) ([]interface{}, error) {
	if len(args) < 4 {
		return nil, fmt.Errorf("not enough args")
	}

	parse := func(v interface{}) (float64, error) {
		return strconv.ParseFloat(fmt.Sprint(v), 64)
	}

	rate, err := parse(args[0])
	if err != nil {
		return nil, err
	}
	capacity, err := parse(args[1])
	if err != nil {
		return nil, err
	}
	now, err := parse(args[2])
	if err != nil {
		return nil, err
	}
	ttl, err := strconv.ParseInt(fmt.Sprint(args[3]), 10, 64)
	if err != nil {
		return nil, err
	}

	level, last := 0.0, now
	if h, ok := m.store[key]; ok {
		level, _ = strconv.ParseFloat(h["level"], 64)
		last, _ = strconv.ParseFloat(h["last"], 64)
	}

	elapsed := now - last
	if elapsed < 0 {
		elapsed = 0
	} else {
		last = now
	}

	level = math.Max(0, level-elapsed*rate)
	var allowed int64
	if level < capacity {
		level++
		allowed = 1
	}

	m.store[key] = map[string]string{
		"level": strconv.FormatFloat(level, 'g', 17, 64),
		"last":  strconv.FormatFloat(last, 'g', 17, 64),
	}
	if m.ttls == nil {
		m.ttls = make(map[string]int64)
	}
	m.ttls[key] = ttl

	return []interface{}{allowed, []byte(strconv.FormatFloat(level, 'g', 17, 64))}, nil
}
