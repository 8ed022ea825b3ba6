package offline

import (
	"errors"
	"io"
	"net/http"

	appLog "festplan/internal/log"
)

// hop-by-hop headers are not copied from upstream responses.
var hopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

// ServeHTTP exposes Fetch as an http.Handler so the worker can front the
// application shell.
func (w *Worker) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	resp, err := w.Fetch(r.Context(), r)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, ErrNoShell) {
			status = http.StatusServiceUnavailable
		}
		appLog.Error("offline worker: fetch failed", err, "path", r.URL.Path)
		http.Error(rw, "offline and the app shell is not cached", status)
		return
	}
	defer resp.Body.Close()

	for k, vs := range resp.Header {
		for _, v := range vs {
			rw.Header().Add(k, v)
		}
	}
	for _, h := range hopHeaders {
		rw.Header().Del(h)
	}
	rw.Header().Set("X-Festplan-Worker", w.cfg.Version)
	rw.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(rw, resp.Body); err != nil {
		appLog.Warn("offline worker: copy response failed", err, "path", r.URL.Path)
	}
}
