package container

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-mirror-go/infrastructure/logger"
)

type fakeComponent struct {
	name     string
	startErr error
	stopErr  error
	events   *[]string
	running  bool
}

func (f *fakeComponent) Name() string { return f.name }

func (f *fakeComponent) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	*f.events = append(*f.events, "start:"+f.name)
	return nil
}

func (f *fakeComponent) Stop() error {
	f.running = false
	*f.events = append(*f.events, "stop:"+f.name)
	return f.stopErr
}

func (f *fakeComponent) Health() error {
	if !f.running {
		return errors.New("down")
	}
	return nil
}

func TestLifecycleManagerOrder(t *testing.T) {
	var events []string
	m := NewLifecycleManager()
	m.Register(&fakeComponent{name: "a", events: &events})
	m.Register(&fakeComponent{name: "b", events: &events})

	require.NoError(t, m.StartAll(context.Background()))
	require.NoError(t, m.CheckHealth())
	require.NoError(t, m.StopAll())
	assert.Equal(t, []string{"start:a", "start:b", "stop:b", "stop:a"}, events)
	assert.Equal(t, []string{"a", "b"}, m.Names())
}

func TestLifecycleManagerRollback(t *testing.T) {
	var events []string
	m := NewLifecycleManager()
	m.Register(&fakeComponent{name: "a", events: &events})
	m.Register(&fakeComponent{name: "b", events: &events, startErr: errors.New("boom")})
	m.Register(&fakeComponent{name: "c", events: &events})

	err := m.StartAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start b failed")
	assert.Equal(t, []string{"start:a", "stop:a"}, events)
}

func TestLifecycleManagerStopCollectsErrors(t *testing.T) {
	var events []string
	m := NewLifecycleManager()
	m.Register(&fakeComponent{name: "a", events: &events, stopErr: errors.New("a failed")})
	m.Register(&fakeComponent{name: "b", events: &events, stopErr: errors.New("b failed")})
	require.NoError(t, m.StartAll(context.Background()))

	err := m.StopAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a failed")
	assert.Contains(t, err.Error(), "b failed")
}

func TestRunnerComponent(t *testing.T) {
	started := make(chan struct{})
	r := &runnerComponent{
		name:   "loop",
		logger: logger.NewNop(),
		run: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
	}
	assert.Error(t, r.Health())
	require.NoError(t, r.Start(context.Background()))
	<-started
	assert.NoError(t, r.Health())
	require.NoError(t, r.Stop())
	assert.Error(t, r.Health())
	// 重复 Stop 无副作用
	require.NoError(t, r.Stop())
}

func TestRunnerComponentReportsFailure(t *testing.T) {
	r := &runnerComponent{
		name:   "broken",
		logger: logger.NewNop(),
		run:    func(ctx context.Context) error { return errors.New("fatal") },
	}
	require.NoError(t, r.Start(context.Background()))
	require.Eventually(t, func() bool { return r.Health() != nil }, time.Second, 5*time.Millisecond)
	assert.EqualError(t, r.Health(), "fatal")
}

func TestHTTPServerComponent(t *testing.T) {
	h := &httpServerComponent{
		name: "probe",
		addr: "127.0.0.1:0",
		handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("ok"))
		}),
		logger: logger.NewNop(),
	}
	assert.Error(t, h.Health())
	require.NoError(t, h.Start(context.Background()))
	require.NoError(t, h.Health())

	resp, err := http.Get("http://" + h.Addr() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	require.NoError(t, h.Stop())
	assert.Error(t, h.Health())
}
