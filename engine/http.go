package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"
)

const httpChunkSize = 32 * 1024

// httpTransfer downloads one file from a list of mirror uris on its own
// goroutine, falling back to the next uri on failure.
type httpTransfer struct {
	uris     []string
	path     string
	client   *http.Client
	limiters []*rate.Limiter

	completed atomic.Int64
	total     atomic.Int64
	current   atomic.Int32

	cancel  context.CancelFunc
	done    chan struct{}
	errCode int
	err     error
}

// proxyFunc parses the all-proxy option. An empty or malformed value
// yields nil, meaning direct connections.
func proxyFunc(proxy string) func(*http.Request) (*url.URL, error) {
	if proxy == "" {
		return nil
	}
	u, err := url.Parse(proxy)
	if err != nil || u.Host == "" {
		log.Printf("[HTTP] ignoring bad proxy %s: %v", proxy, err)
		return nil
	}
	return http.ProxyURL(u)
}

func newHTTPClient(proxy string) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if p := proxyFunc(proxy); p != nil {
		tr.Proxy = p
	}
	return &http.Client{Transport: tr}
}

func startHTTP(d *download, client *http.Client, limiters ...*rate.Limiter) *httpTransfer {
	ctx, cancel := context.WithCancel(context.Background())
	t := &httpTransfer{
		uris:     d.uris,
		path:     d.path(),
		client:   client,
		limiters: limiters,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	t.completed.Store(d.completedLength)
	t.total.Store(d.totalLength)
	go t.run(ctx)
	return t
}

func (t *httpTransfer) run(ctx context.Context) {
	defer close(t.done)
	for i, uri := range t.uris {
		t.current.Store(int32(i))
		code, err := t.fetch(ctx, uri)
		if err == nil {
			t.errCode, t.err = 0, nil
			return
		}
		t.errCode, t.err = code, err
		if ctx.Err() != nil {
			return
		}
		log.Printf("[HTTP] %s failed: %s", uri, err)
	}
}

func (t *httpTransfer) fetch(ctx context.Context, uri string) (int, error) {
	if err := mkdir(filepath.Dir(t.path)); err != nil {
		return errCodeCreateFile, err
	}
	offset := t.completed.Load()
	if st, err := os.Stat(t.path); err != nil || st.Size() < offset {
		offset = 0
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return errCodeBadResponse, err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return errCodeNetwork, err
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	var total int64 = -1
	switch resp.StatusCode {
	case http.StatusPartialContent:
		flags |= os.O_APPEND
		if resp.ContentLength >= 0 {
			total = offset + resp.ContentLength
		}
	case http.StatusOK:
		flags |= os.O_TRUNC
		offset = 0
		total = resp.ContentLength
	case http.StatusNotFound:
		return errCodeNotFound, fmt.Errorf("%s: %s", uri, resp.Status)
	default:
		return errCodeBadResponse, fmt.Errorf("%s: unexpected status %s", uri, resp.Status)
	}
	t.completed.Store(offset)
	if total >= 0 {
		t.total.Store(total)
	}

	f, err := os.OpenFile(t.path, flags, 0644)
	if err != nil {
		return errCodeCreateFile, err
	}
	defer f.Close()

	buf := make([]byte, httpChunkSize)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			for _, l := range t.limiters {
				if err := waitN(ctx, l, n); err != nil {
					return errCodeNetwork, err
				}
			}
			if _, err := f.Write(buf[:n]); err != nil {
				return errCodeCreateFile, err
			}
			t.completed.Add(int64(n))
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return errCodeNetwork, rerr
		}
	}
	if total < 0 {
		t.total.Store(t.completed.Load())
	}
	return 0, nil
}

func (t *httpTransfer) stop() {
	t.cancel()
	<-t.done
}

func (t *httpTransfer) finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (d *download) startHTTP(client *http.Client, overall *rate.Limiter) {
	d.http = startHTTP(d, client, overall, d.limiter)
	log.Printf("[HTTP] started %s %s", d.gid, d.path())
}

func (d *download) pollHTTP(now time.Time) pollResult {
	t := d.http
	if t == nil {
		return pollFailed
	}
	if total := t.total.Load(); total > 0 {
		d.totalLength = total
	}
	d.updateRates(now, t.completed.Load(), 0)
	if !t.finished() {
		return pollRunning
	}
	d.totalLength = t.total.Load()
	d.completedLength = t.completed.Load()
	d.http = nil
	d.resetRates()
	if t.err != nil {
		d.errorCode = t.errCode
		log.Printf("[HTTP] %s failed with code %d: %s", d.gid, d.errorCode, t.err)
		return pollFailed
	}
	log.Printf("[HTTP] %s completed %s", d.gid, humanize.Bytes(uint64(d.completedLength)))
	return pollDone
}
