package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T, srv *httpService) (context.CancelFunc, <-chan error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	require.Eventually(t, func() bool { return srv.boundAddr() != "" }, 2*time.Second, 10*time.Millisecond)
	return cancel, errCh
}

func TestService_ServesRegisteredRoutes(t *testing.T) {
	srv := New(Config{Host: "127.0.0.1"}, nil).(*httpService)
	srv.RegisterHTTPHandler("/ping", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "pong")
	}))

	cancel, errCh := startTestServer(t, srv)
	defer cancel()

	resp, err := http.Get("http://" + srv.boundAddr() + "/ping")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Equal(t, "pong", string(body))
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))

	require.NoError(t, srv.Stop(context.Background()))
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop in time")
	}
}

func TestService_StartTwice(t *testing.T) {
	srv := New(Config{Host: "127.0.0.1"}, nil).(*httpService)
	cancel, _ := startTestServer(t, srv)
	defer cancel()
	defer srv.Stop(context.Background())

	assert.ErrorIs(t, srv.Start(context.Background()), errAlreadyStarted)
}

func TestService_PortInUse(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	port := l.Addr().(*net.TCPAddr).Port
	srv := New(Config{Host: "127.0.0.1", HTTPPort: port}, nil)

	err = srv.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), strconv.Itoa(port))
}

func TestService_StopBeforeStart(t *testing.T) {
	srv := New(Config{}, nil)
	assert.NoError(t, srv.Stop(context.Background()))
}

func TestService_ContextCancelReturns(t *testing.T) {
	srv := New(Config{Host: "127.0.0.1"}, nil).(*httpService)
	cancel, errCh := startTestServer(t, srv)
	defer srv.Stop(context.Background())

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
