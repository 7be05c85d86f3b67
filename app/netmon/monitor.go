package netmon

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Prober answers one connectivity question: can we reach the outside world
// right now?
type Prober interface {
	Probe(ctx context.Context) bool
}

// HTTPProber checks reachability with a HEAD request against a stable URL
// (usually the delivery provider's endpoint). Any response, even an error
// status, proves connectivity; only transport failures count as offline.
type HTTPProber struct {
	url    string
	client *http.Client
}

func NewHTTPProber(url string, timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProber{url: url, client: &http.Client{Timeout: timeout}}
}

func (p *HTTPProber) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return true
}

// Monitor polls a Prober and notifies listeners on connectivity
// transitions. It is a policy layer above per-task retry handling: a fully
// offline device should pause its runs rather than burn retry budget on
// sends that cannot reach the provider.
type Monitor struct {
	prober   Prober
	interval time.Duration
	log      *logrus.Entry

	mu        sync.Mutex
	online    bool
	onOffline []func()
	onOnline  []func()

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func New(prober Prober, interval time.Duration, log *logrus.Entry) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Monitor{
		prober:   prober,
		interval: interval,
		log:      log,
		online:   true,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// OnOffline registers a callback fired once per loss-of-connectivity
// transition.
func (m *Monitor) OnOffline(fn func()) {
	m.mu.Lock()
	m.onOffline = append(m.onOffline, fn)
	m.mu.Unlock()
}

// OnOnline registers a callback fired once per restored-connectivity
// transition.
func (m *Monitor) OnOnline(fn func()) {
	m.mu.Lock()
	m.onOnline = append(m.onOnline, fn)
	m.mu.Unlock()
}

// Online reports the last observed connectivity state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Start launches the polling loop until Stop or context cancellation.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		defer close(m.doneCh)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.check(ctx)
			}
		}
	}()
}

// Stop terminates the polling loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	<-m.doneCh
}

func (m *Monitor) check(ctx context.Context) {
	online := m.prober.Probe(ctx)

	m.mu.Lock()
	changed := online != m.online
	m.online = online
	var callbacks []func()
	if changed {
		if online {
			callbacks = append(callbacks, m.onOnline...)
		} else {
			callbacks = append(callbacks, m.onOffline...)
		}
	}
	m.mu.Unlock()

	if !changed {
		return
	}
	if online {
		m.log.Info("connectivity restored")
	} else {
		m.log.Warn("connectivity lost")
	}
	for _, fn := range callbacks {
		fn()
	}
}
