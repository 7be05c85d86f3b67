package netmon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type fakeProber struct {
	mu     sync.Mutex
	online bool
}

func (p *fakeProber) Probe(_ context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

func (p *fakeProber) set(online bool) {
	p.mu.Lock()
	p.online = online
	p.mu.Unlock()
}

func TestCallbacksFireOncePerTransition(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{online: true}
	m := New(prober, time.Hour, nil)

	var mu sync.Mutex
	var offline, online int
	m.OnOffline(func() { mu.Lock(); offline++; mu.Unlock() })
	m.OnOnline(func() { mu.Lock(); online++; mu.Unlock() })

	// Drive checks directly; the ticker interval is irrelevant here.
	ctx := context.Background()
	m.check(ctx)
	m.check(ctx)
	mu.Lock()
	if offline != 0 || online != 0 {
		mu.Unlock()
		t.Fatalf("no transition yet, got offline=%d online=%d", offline, online)
	}
	mu.Unlock()

	prober.set(false)
	m.check(ctx)
	m.check(ctx)
	mu.Lock()
	if offline != 1 {
		mu.Unlock()
		t.Fatalf("expected one offline callback, got %d", offline)
	}
	mu.Unlock()
	if m.Online() {
		t.Fatal("monitor should report offline")
	}

	prober.set(true)
	m.check(ctx)
	mu.Lock()
	defer mu.Unlock()
	if online != 1 {
		t.Fatalf("expected one online callback, got %d", online)
	}
}

func TestStartPollsAndStops(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{online: false}
	m := New(prober, time.Millisecond, nil)

	offlineCh := make(chan struct{}, 1)
	m.OnOffline(func() {
		select {
		case offlineCh <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	select {
	case <-offlineCh:
	case <-time.After(2 * time.Second):
		t.Fatal("offline transition never observed")
	}
	m.Stop()
}

func TestHTTPProberAnyResponseIsOnline(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewHTTPProber(srv.URL, time.Second)
	if !p.Probe(context.Background()) {
		t.Fatal("a reachable endpoint counts as online even on 5xx")
	}
}

func TestHTTPProberTransportFailureIsOffline(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	srv.Close()

	p := NewHTTPProber(srv.URL, 200*time.Millisecond)
	if p.Probe(context.Background()) {
		t.Fatal("unreachable endpoint must count as offline")
	}
}
