package robot

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-linefollower/pkg/steering"
)

func TestHTTPSink_Send(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()
		w.Write([]byte("OK\n"))
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL+"/", 200*time.Millisecond)
	for _, c := range steering.All() {
		resp, err := sink.Send(context.Background(), c)
		if err != nil {
			t.Fatalf("Send(%s): %v", c, err)
		}
		if resp != "OK" {
			t.Errorf("Send(%s) = %q, want OK", c, resp)
		}
	}

	want := []string{"GET /forward", "GET /left", "GET /right", "GET /stop"}
	mu.Lock()
	defer mu.Unlock()
	if len(paths) != len(want) {
		t.Fatalf("paths = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("path %d = %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestHTTPSink_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "motor fault", http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL, 200*time.Millisecond)
	_, err := sink.Send(context.Background(), steering.Left)

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.StatusCode != 500 || !se.IsServerError() {
		t.Errorf("StatusCode = %d", se.StatusCode)
	}
	if se.Command != steering.Left || se.Body != "motor fault" {
		t.Errorf("StatusError = %+v", se)
	}
}

func TestHTTPSink_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	sink := NewHTTPSink(srv.URL, 50*time.Millisecond)
	start := time.Now()
	_, err := sink.Send(context.Background(), steering.Forward)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Errorf("Send took %v, timeout not enforced", elapsed)
	}
}

func TestHTTPSink_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	sink := NewHTTPSink("http://"+addr, 100*time.Millisecond)
	if _, err := sink.Send(context.Background(), steering.Stop); err == nil {
		t.Error("expected error for closed port")
	}
}

func TestHTTPSink_InvalidCommand(t *testing.T) {
	sink := NewHTTPSink("http://127.0.0.1:1", 100*time.Millisecond)
	if _, err := sink.Send(context.Background(), "jump"); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("err = %v, want ErrUnknownCommand", err)
	}
}
