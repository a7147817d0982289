package module

import (
	"context"
	"errors"
	"harnsnode/pkg/datatype"
	"harnsnode/pkg/runtime"
	"harnsnode/pkg/runtime/constant"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []runtime.ChangeEvent
}

func (r *recorder) Notify(ev runtime.ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) Events() []runtime.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]runtime.ChangeEvent(nil), r.events...)
}

// fakeHardware stands in for a device reached through accessors.
type fakeHardware struct {
	mu       sync.Mutex
	value    interface{}
	readErr  error
	writeErr error
	writes   []interface{}
	adjust   func(interface{}) interface{}
	reads    int
}

func (h *fakeHardware) read(ctx context.Context, m *Module) (interface{}, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reads++
	if h.readErr != nil {
		return nil, h.readErr
	}
	return h.value, nil
}

func (h *fakeHardware) write(ctx context.Context, m *Module, v interface{}) (interface{}, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writes = append(h.writes, v)
	if h.writeErr != nil {
		return nil, h.writeErr
	}
	if h.adjust != nil {
		return h.adjust(v), nil
	}
	return nil, nil
}

func newTestModule(t *testing.T, hw *fakeHardware, rec *recorder) *Module {
	t.Helper()
	class, err := NewClass("test.Level", "level meter",
		Readable("level", datatype.NewFloatRange(0, 100, datatype.WithUnit("%"))),
		WithParameters(
			&Parameter{Name: "length", DataType: datatype.NewFloatRange(0, 2000, datatype.WithUnit("mm")), Access: constant.AccessModeReadWrite, Persistent: true},
			&Parameter{Name: "offset", DataType: datatype.NewFloatRange(-10, 10), Access: constant.AccessModeReadWrite},
			&Parameter{Name: "counter", DataType: datatype.NewIntRange(0, 1000, ""), Update: constant.UpdateAlways},
			&Parameter{Name: "secret", DataType: datatype.NewString(0, 0), Internal: true},
		),
		WithReader(ParamValue, hw.read),
		WithWriter("length", hw.write),
	)
	require.NoError(t, err)
	m, err := New(runtime.ModuleDescriptor{Name: "helev"}, class, nil, rec)
	require.NoError(t, err)
	return m
}

func TestReadThroughAccessor(t *testing.T) {
	hw := &fakeHardware{value: 57.3}
	rec := &recorder{}
	m := newTestModule(t, hw, rec)
	// default pollinterval is cached at construction
	require.Len(t, rec.Events(), 1)

	v, err := m.Read(context.Background(), ParamValue)
	require.NoError(t, err)
	assert.Equal(t, 57.3, v.Value)
	assert.False(t, v.Timestamp.IsZero())

	events := rec.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "helev", events[1].Module)
	assert.Equal(t, ParamValue, events[1].Parameter)
	assert.Equal(t, 57.3, events[1].Value)
	assert.Equal(t, v.Timestamp, events[1].Timestamp)

	// unchanged value refreshes the timestamp only
	time.Sleep(time.Millisecond)
	again, err := m.Read(context.Background(), ParamValue)
	require.NoError(t, err)
	assert.True(t, again.Timestamp.After(v.Timestamp))
	assert.Len(t, rec.Events(), 2)

	hw.value = 58.0
	_, err = m.Read(context.Background(), ParamValue)
	require.NoError(t, err)
	assert.Len(t, rec.Events(), 3)
}

func TestReadFailureKeepsCache(t *testing.T) {
	hw := &fakeHardware{value: 10.0}
	rec := &recorder{}
	m := newTestModule(t, hw, rec)
	_, err := m.Read(context.Background(), ParamValue)
	require.NoError(t, err)

	boom := errors.New("boom")
	hw.readErr = boom
	_, err = m.Read(context.Background(), ParamValue)
	assert.ErrorIs(t, err, boom)
	cached, ok := m.Cached(ParamValue)
	require.True(t, ok)
	assert.Equal(t, 10.0, cached.Value)

	hw.readErr = nil
	hw.value = 500.0
	_, err = m.Read(context.Background(), ParamValue)
	assert.ErrorIs(t, err, constant.ErrValidation)
	cached, _ = m.Cached(ParamValue)
	assert.Equal(t, 10.0, cached.Value)
	assert.Len(t, rec.Events(), 2)
}

func TestCacheOnlyReadAndWrite(t *testing.T) {
	rec := &recorder{}
	m := newTestModule(t, &fakeHardware{}, rec)

	_, err := m.Read(context.Background(), "offset")
	assert.ErrorIs(t, err, constant.ErrNotInitialized)

	w, err := m.Write(context.Background(), "offset", 2)
	require.NoError(t, err)
	assert.Equal(t, 2.0, w.Value)

	r, err := m.Read(context.Background(), "offset")
	require.NoError(t, err)
	assert.Equal(t, w, r)

	_, err = m.Write(context.Background(), "offset", 2.0)
	require.NoError(t, err)
	events := rec.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "offset", events[1].Parameter)
}

func TestWriteThroughAccessor(t *testing.T) {
	hw := &fakeHardware{adjust: func(v interface{}) interface{} { return v.(float64) - 0.5 }}
	rec := &recorder{}
	m := newTestModule(t, hw, rec)

	v, err := m.Write(context.Background(), "length", 500)
	require.NoError(t, err)
	assert.Equal(t, 499.5, v.Value)
	assert.Equal(t, []interface{}{500.0}, hw.writes)
	assert.Equal(t, map[string]interface{}{"length": 499.5}, m.Persistent())
}

func TestWriteValidationNeverReachesHardware(t *testing.T) {
	hw := &fakeHardware{}
	rec := &recorder{}
	m := newTestModule(t, hw, rec)

	_, err := m.Write(context.Background(), "length", 5000)
	assert.ErrorIs(t, err, constant.ErrValidation)
	assert.Empty(t, hw.writes)
	_, ok := m.Cached("length")
	assert.False(t, ok)
	assert.Len(t, rec.Events(), 1)
}

func TestWriteFailureKeepsCache(t *testing.T) {
	hw := &fakeHardware{}
	m := newTestModule(t, hw, &recorder{})
	_, err := m.Write(context.Background(), "length", 100)
	require.NoError(t, err)

	hw.writeErr = constant.ErrTimeout
	_, err = m.Write(context.Background(), "length", 200)
	assert.ErrorIs(t, err, constant.ErrTimeout)
	v, _ := m.Cached("length")
	assert.Equal(t, 100.0, v.Value)
}

func TestWriteRules(t *testing.T) {
	m := newTestModule(t, &fakeHardware{}, &recorder{})

	_, err := m.Write(context.Background(), ParamValue, 1)
	assert.ErrorIs(t, err, constant.ErrReadOnly)
	_, err = m.Write(context.Background(), "nope", 1)
	assert.ErrorIs(t, err, constant.ErrParameterNotFound)
}

func TestUpdateAlwaysNotifies(t *testing.T) {
	rec := &recorder{}
	m := newTestModule(t, &fakeHardware{}, rec)
	for i := 0; i < 3; i++ {
		_, err := m.Update("counter", 7)
		require.NoError(t, err)
	}
	assert.Len(t, rec.Events(), 4)
}

func TestInternalParameterEvents(t *testing.T) {
	rec := &recorder{}
	m := newTestModule(t, &fakeHardware{}, rec)
	_, err := m.Update("secret", "x")
	require.NoError(t, err)
	events := rec.Events()
	assert.True(t, events[len(events)-1].Internal)
	assert.NotContains(t, m.Meta().Parameters, "secret")
}

func TestSetStatus(t *testing.T) {
	m := newTestModule(t, &fakeHardware{}, &recorder{})
	require.NoError(t, m.SetStatus(constant.ERROR, "no sensor"))
	v, err := m.Read(context.Background(), ParamStatus)
	require.NoError(t, err)
	assert.Equal(t, datatype.StatusValue{Code: constant.ERROR, Text: "no sensor"}, v.Value)

	assert.ErrorIs(t, m.SetStatus(constant.BUSY, "moving"), constant.ErrValidation)
}

func TestInitialize(t *testing.T) {
	hw := &fakeHardware{}
	m := newTestModule(t, hw, &recorder{})

	err := m.Initialize(context.Background(), map[string]interface{}{"length": 5000, "offset": 1, "bogus": 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, constant.ErrValidation)
	assert.ErrorIs(t, err, constant.ErrParameterNotFound)
	_, ok := m.Cached("offset")
	assert.False(t, ok)

	err = m.Initialize(context.Background(), map[string]interface{}{"length": 500, "counter": 3, "pollinterval": 1})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{500.0}, hw.writes)
	v, _ := m.Cached("counter")
	assert.Equal(t, int64(3), v.Value)
	assert.Equal(t, time.Second, m.PollInterval())
}

func TestInitializeRetriesUnreachableValues(t *testing.T) {
	tests := []struct {
		name        string
		writeErr    error
		wantPending []string
	}{
		{name: "connection lost", writeErr: constant.ErrConnection, wantPending: []string{"length"}},
		{name: "no reply", writeErr: constant.ErrTimeout, wantPending: []string{"length"}},
		{name: "rejected by device", writeErr: constant.ErrProtocol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hw := &fakeHardware{value: 1.0, writeErr: tt.writeErr}
			m := newTestModule(t, hw, &recorder{})
			require.NoError(t, m.Initialize(context.Background(), map[string]interface{}{"length": 500}))
			assert.Equal(t, tt.wantPending, m.Pending())
			_, ok := m.Cached("length")
			assert.False(t, ok)
			if len(tt.wantPending) == 0 {
				return
			}

			err := m.Poll(context.Background())
			assert.ErrorIs(t, err, tt.writeErr)
			assert.Equal(t, 0, hw.reads)

			hw.writeErr = nil
			require.NoError(t, m.Poll(context.Background()))
			assert.Empty(t, m.Pending())
			assert.Equal(t, []interface{}{500.0, 500.0, 500.0}, hw.writes)
			assert.Equal(t, 1, hw.reads)
			assert.Equal(t, map[string]interface{}{"length": 500.0}, m.Persistent())
		})
	}
}

func TestWriteSupersedesPendingValue(t *testing.T) {
	hw := &fakeHardware{value: 1.0, writeErr: constant.ErrTimeout}
	m := newTestModule(t, hw, &recorder{})
	require.NoError(t, m.Initialize(context.Background(), map[string]interface{}{"length": 500}))
	require.Equal(t, []string{"length"}, m.Pending())

	hw.writeErr = nil
	_, err := m.Write(context.Background(), "length", 700)
	require.NoError(t, err)
	assert.Empty(t, m.Pending())

	require.NoError(t, m.Poll(context.Background()))
	assert.Equal(t, []interface{}{500.0, 700.0}, hw.writes)
	v, _ := m.Cached("length")
	assert.Equal(t, 700.0, v.Value)
}

func TestPollAndRun(t *testing.T) {
	hw := &fakeHardware{value: 1.0}
	m := newTestModule(t, hw, &recorder{})
	require.NoError(t, m.Poll(context.Background()))
	assert.Equal(t, 1, hw.reads)
	assert.Equal(t, 5*time.Second, m.PollInterval())

	_, err := m.Write(context.Background(), ParamPollInterval, 0.1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()
	assert.Eventually(t, func() bool {
		hw.mu.Lock()
		defer hw.mu.Unlock()
		return hw.reads >= 3
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done
}

func TestNewClassRejectsBadTables(t *testing.T) {
	noop := func(ctx context.Context, m *Module, v interface{}) (interface{}, error) { return nil, nil }
	read := func(ctx context.Context, m *Module) (interface{}, error) { return nil, nil }

	_, err := NewClass("bad", "", Readable("v", datatype.NewFloatRange(0, 1)), WithWriter(ParamValue, noop))
	assert.Error(t, err)

	_, err = NewClass("bad", "", WithReader("ghost", read))
	assert.Error(t, err)

	_, err = NewClass("bad", "", Readable("v", datatype.NewFloatRange(0, 1)),
		WithStatusMap(MustStatusMapper(map[int]StatusEntry{0: {Code: constant.BUSY, Text: "moving"}})))
	assert.Error(t, err)

	_, err = NewClass("bad", "", WithParameters(&Parameter{Name: "x", DataType: datatype.Bool{}}, &Parameter{Name: "x", DataType: datatype.Bool{}}))
	assert.Error(t, err)

	c, err := NewClass("good", "", Drivable("v", datatype.NewFloatRange(0, 1), datatype.NewFloatRange(0, 1)),
		WithStatusMap(MustStatusMapper(map[int]StatusEntry{0: {Code: constant.BUSY, Text: "moving"}})))
	require.NoError(t, err)
	_, ok := c.Parameter(ParamTarget)
	assert.True(t, ok)

	plain, err := NewClass("plain", "")
	require.NoError(t, err)
	_, ok = plain.Parameter(ParamStatus)
	assert.True(t, ok)
}

func TestStatusMapper(t *testing.T) {
	sm := MustStatusMapper(map[int]StatusEntry{
		0: {Code: constant.IDLE, Text: "sensor ok"},
		5: {Code: constant.DISABLED, Text: "disabled"},
	})
	v, err := sm.Lookup(5)
	require.NoError(t, err)
	assert.Equal(t, datatype.StatusValue{Code: constant.DISABLED, Text: "disabled"}, v)

	_, err = sm.Lookup(9)
	assert.ErrorIs(t, err, constant.ErrUnmappedStatus)

	type pair struct{ a, b int }
	tuples := MustStatusMapper(map[pair]StatusEntry{{1, 2}: {Code: constant.WARN, Text: "low"}})
	_, err = tuples.Lookup(pair{1, 2})
	assert.NoError(t, err)

	_, err = NewStatusMapper(map[int]StatusEntry{0: {Code: constant.StatusCode(7)}})
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	c := MustClass("a.B", "")
	r := NewRegistry(c)
	got, err := r.Get("a.B")
	require.NoError(t, err)
	assert.Same(t, c, got)
	_, err = r.Get("x")
	assert.ErrorIs(t, err, constant.ErrClassNotFound)
	assert.Error(t, r.Register(c))
	assert.Equal(t, []string{"a.B"}, r.IDs())
}
