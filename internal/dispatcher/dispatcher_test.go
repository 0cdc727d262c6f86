package dispatcher

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingLogger keeps "LEVEL: msg" lines.
type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) add(level, msg string, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf("%s: %s %v", level, msg, kv))
}

func (l *recordingLogger) Debug(msg string, kv ...any) { l.add("DEBUG", msg, kv) }
func (l *recordingLogger) Info(msg string, kv ...any)  { l.add("INFO", msg, kv) }
func (l *recordingLogger) Error(msg string, kv ...any) { l.add("ERROR", msg, kv) }

func (l *recordingLogger) count(prefix string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, line := range l.lines {
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}
	return n
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *recordingLogger) {
	t.Helper()
	logger := &recordingLogger{}
	d, err := New(logger)
	require.NoError(t, err)
	return d, logger
}

// gate blocks handlers until opened.
func gate() (HandlerFunc, func()) {
	ch := make(chan struct{})
	var once sync.Once
	return func(Event) (any, error) {
			<-ch
			return nil, nil
		}, func() {
			once.Do(func() { close(ch) })
		}
}

func TestDispatch_SyncReturnsResult(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got Event
	d.Register(":SUBJECT:", func(e Event) (any, error) {
		got = e
		return "registered", nil
	})

	result, err := d.Dispatch(Event{Command: ":SUBJECT:", Args: []string{"7", "Ravi"}, Source: "http"})
	require.NoError(t, err)
	assert.Equal(t, "registered", result)
	assert.Equal(t, []string{"7", "Ravi"}, got.Args)
	assert.Equal(t, "http", got.Source)
	assert.False(t, got.Timestamp.IsZero(), "dispatch stamps the receive time")
}

func TestDispatch_KeepsGivenTimestamp(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ts := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)

	var got time.Time
	d.Register(":PROCESS:", func(e Event) (any, error) {
		got = e.Timestamp
		return nil, nil
	})
	_, err := d.Dispatch(Event{Command: ":PROCESS:", Timestamp: ts})
	require.NoError(t, err)
	assert.Equal(t, ts, got)
}

func TestDispatch_UnknownCommand(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Register(":SUBJECT:", func(Event) (any, error) { return nil, nil })

	_, err := d.Dispatch(Event{Command: ":RECORD:"})
	assert.ErrorIs(t, err, ErrUnknownCommand)
	assert.True(t, d.HasHandler(":SUBJECT:"))
	assert.False(t, d.HasHandler(":RECORD:"))
}

func TestBuffered_HandlesAsync(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var handled atomic.Int32
	d.Register(":POINT:", func(Event) (any, error) {
		handled.Add(1)
		return nil, nil
	}, Buffered(100))

	for i := 0; i < 3; i++ {
		result, err := d.Dispatch(Event{Command: ":POINT:"})
		require.NoError(t, err)
		assert.Equal(t, "queued", result)
	}
	d.Close()
	assert.Equal(t, int32(3), handled.Load())
}

func TestBuffered_DropsWhenFull(t *testing.T) {
	d, _ := newTestDispatcher(t)
	h, open := gate()
	defer open()
	d.Register(":POINT:", h, Buffered(2))

	// one in the worker, two in the queue
	_, _ = d.Dispatch(Event{Command: ":POINT:"})
	require.Eventually(t, func() bool { return d.QueueLengths()[":POINT:"] == 0 }, time.Second, time.Millisecond)
	_, _ = d.Dispatch(Event{Command: ":POINT:"})
	_, _ = d.Dispatch(Event{Command: ":POINT:"})

	_, err := d.Dispatch(Event{Command: ":POINT:"})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestBuffered_BlockingWaits(t *testing.T) {
	d, _ := newTestDispatcher(t)
	h, open := gate()
	d.Register(":POINT:", h, Buffered(1), Blocking())

	_, _ = d.Dispatch(Event{Command: ":POINT:"})
	require.Eventually(t, func() bool { return d.QueueLengths()[":POINT:"] == 0 }, time.Second, time.Millisecond)
	_, _ = d.Dispatch(Event{Command: ":POINT:"})

	done := make(chan struct{})
	go func() {
		_, _ = d.Dispatch(Event{Command: ":POINT:"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("dispatch should block on a full queue")
	case <-time.After(50 * time.Millisecond):
	}
	open()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch did not resume after the worker drained")
	}
}

func TestBuffered_ErrorIsLogged(t *testing.T) {
	d, logger := newTestDispatcher(t)
	d.Register(":POINT:", func(Event) (any, error) {
		return nil, errors.New("subject 9 not found")
	}, Buffered(1))

	_, err := d.Dispatch(Event{Command: ":POINT:", Source: "gateway"})
	require.NoError(t, err, "buffered failures are not returned to the sender")
	d.Close()

	assert.Equal(t, 1, logger.count("ERROR: buffered event failed"))
}

func TestLogged(t *testing.T) {
	d, logger := newTestDispatcher(t)
	d.Register(":SUBJECT:", func(Event) (any, error) { return "ok", nil }, Logged())
	d.Register(":PROCESS:", func(Event) (any, error) { return nil, errors.New("bad day") }, Logged())

	_, err := d.Dispatch(Event{Command: ":SUBJECT:", Args: []string{"1", "A"}})
	require.NoError(t, err)
	assert.Equal(t, 1, logger.count("DEBUG: handling event"))
	assert.Equal(t, 1, logger.count("DEBUG: event complete"))

	_, err = d.Dispatch(Event{Command: ":PROCESS:"})
	require.Error(t, err)
	assert.Equal(t, 1, logger.count("ERROR: event failed"))
}

func TestLogged_Buffered(t *testing.T) {
	d, logger := newTestDispatcher(t)
	d.Register(":POINT:", func(Event) (any, error) { return nil, nil }, Buffered(10), Logged())

	result, err := d.Dispatch(Event{Command: ":POINT:"})
	require.NoError(t, err)
	assert.Equal(t, "queued", result)
	d.Close()

	assert.Equal(t, 2, logger.count("DEBUG:"), "logging wraps the enqueue, not the worker")
}

func TestQueueLengths(t *testing.T) {
	d, _ := newTestDispatcher(t)
	h, open := gate()
	defer open()
	d.Register(":POINT:", h, Buffered(10))
	d.Register(":SUBJECT:", func(Event) (any, error) { return nil, nil })

	_, _ = d.Dispatch(Event{Command: ":POINT:"})
	require.Eventually(t, func() bool { return d.QueueLengths()[":POINT:"] == 0 }, time.Second, time.Millisecond)
	_, _ = d.Dispatch(Event{Command: ":POINT:"})
	_, _ = d.Dispatch(Event{Command: ":POINT:"})

	lengths := d.QueueLengths()
	assert.Equal(t, 2, lengths[":POINT:"])
	_, ok := lengths[":SUBJECT:"]
	assert.False(t, ok, "unbuffered commands have no queue")
}

func TestClose_DrainsQueue(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var handled atomic.Int32
	d.Register(":POINT:", func(Event) (any, error) {
		time.Sleep(time.Millisecond)
		handled.Add(1)
		return nil, nil
	}, Buffered(50), Blocking())

	for i := 0; i < 20; i++ {
		_, err := d.Dispatch(Event{Command: ":POINT:"})
		require.NoError(t, err)
	}
	d.Close()
	assert.Equal(t, int32(20), handled.Load())

	_, err := d.Dispatch(Event{Command: ":POINT:"})
	assert.ErrorIs(t, err, ErrClosed)
	d.Close()
}

func TestMinArgs_RejectsBeforeQueueing(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var handled atomic.Int32
	d.Register(":POINT:", func(Event) (any, error) {
		handled.Add(1)
		return nil, nil
	}, Buffered(4), MinArgs(3))

	_, err := d.Dispatch(Event{Command: ":POINT:", Args: []string{"7", "2024-03-14T09:00:00Z"}})
	assert.ErrorIs(t, err, ErrTooFewArgs)
	_, err = d.Dispatch(Event{Command: ":POINT:", Args: []string{"7", "2024-03-14T09:00:00Z", "1,1"}})
	require.NoError(t, err)

	d.Close()
	assert.Equal(t, int32(1), handled.Load())
}

func TestSharded_KeepsPerSubjectOrder(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var mu sync.Mutex
	seen := map[string][]string{}
	d.Register(":POINT:", func(e Event) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		seen[e.Args[0]] = append(seen[e.Args[0]], e.Args[1])
		return nil, nil
	}, Buffered(64), Blocking(), Sharded(4, FirstArg))

	subjects := []string{"1", "2", "3", "4", "5"}
	for i := 0; i < 20; i++ {
		for _, s := range subjects {
			_, err := d.Dispatch(Event{Command: ":POINT:", Args: []string{s, fmt.Sprint(i)}})
			require.NoError(t, err)
		}
	}
	d.Close()

	for _, s := range subjects {
		want := make([]string, 20)
		for i := range want {
			want[i] = fmt.Sprint(i)
		}
		assert.Equal(t, want, seen[s], "subject %s", s)
	}
}

func TestShardOf(t *testing.T) {
	assert.Equal(t, 0, shardOf("anything", 1))
	a := shardOf("42", 8)
	assert.Equal(t, a, shardOf("42", 8))
	assert.GreaterOrEqual(t, a, 0)
	assert.Less(t, a, 8)

	assert.Equal(t, "", FirstArg(Event{}))
	assert.Equal(t, "7", FirstArg(Event{Args: []string{"7", "x"}}))
}
