// Package audit provides an async, buffered writer for admin-action audit
// log entries (SPEC_FULL §4.8), adapted from the teacher's buffered audit
// writer. Entries are keyed by account id rather than tenant schema, since
// this engine partitions by account_id in one schema instead of
// schema-per-tenant.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/tx-stripe/stripe-sync-engine/internal/store"
)

// Entry represents a single audit log entry to be written.
type Entry struct {
	AccountID string
	Action    string
	Detail    json.RawMessage
	IPAddress *netip.Addr
	UserAgent *string
}

// Writer is an async, buffered audit log writer. Entries are sent to an
// internal channel and flushed by a background goroutine.
type Writer struct {
	store   *store.Store
	logger  *slog.Logger
	entries chan Entry
	wg      sync.WaitGroup
}

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// NewWriter creates an audit Writer. Call Start to begin processing entries.
func NewWriter(s *store.Store, logger *slog.Logger) *Writer {
	return &Writer{
		store:   s,
		logger:  logger,
		entries: make(chan Entry, bufferSize),
	}
}

// Start begins the background goroutine that flushes audit entries to the
// database and returns immediately. The goroutine exits when the context is
// cancelled and all pending entries are flushed.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close waits for all pending entries to be flushed.
func (w *Writer) Close() {
	close(w.entries)
	w.wg.Wait()
}

// Log enqueues an audit entry for async writing. It never blocks the
// caller; if the buffer is full the entry is dropped and a warning is
// logged.
func (w *Writer) Log(entry Entry) {
	select {
	case w.entries <- entry:
	default:
		w.logger.Warn("audit log buffer full, dropping entry",
			"action", entry.Action, "account_id", entry.AccountID)
	}
}

// LogFromRequest is a convenience method that extracts IP and user agent
// from the request, then enqueues the entry for accountID/action.
func (w *Writer) LogFromRequest(r *http.Request, accountID, action string, detail json.RawMessage) {
	entry := Entry{AccountID: accountID, Action: action, Detail: detail}

	ip := clientIP(r)
	if ip.IsValid() {
		entry.IPAddress = &ip
	}

	if ua := r.Header.Get("User-Agent"); ua != "" {
		entry.UserAgent = &ua
	}

	w.Log(entry)
}

// run is the background loop that drains the entries channel.
func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case entry, ok := <-w.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

// flush writes a batch of entries to the database.
func (w *Writer) flush(entries []Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, e := range entries {
		detail := e.Detail
		if detail == nil {
			detail = json.RawMessage(`{}`)
		}
		if err := w.store.InsertAuditEntry(ctx, e.AccountID, e.Action, withRequestMeta(detail, e)); err != nil {
			w.logger.Error("writing audit log entry", "error", err, "action", e.Action, "account_id", e.AccountID)
		}
	}
}

func withRequestMeta(detail json.RawMessage, e Entry) json.RawMessage {
	if e.IPAddress == nil && e.UserAgent == nil {
		return detail
	}

	var m map[string]any
	if err := json.Unmarshal(detail, &m); err != nil || m == nil {
		m = map[string]any{}
	}
	if e.IPAddress != nil {
		m["_ip"] = e.IPAddress.String()
	}
	if e.UserAgent != nil {
		m["_user_agent"] = *e.UserAgent
	}
	b, err := json.Marshal(m)
	if err != nil {
		return detail
	}
	return b
}

// clientIP extracts the client IP address from the request, preferring
// X-Forwarded-For and X-Real-IP headers over RemoteAddr.
func clientIP(r *http.Request) netip.Addr {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		if addr, err := netip.ParseAddr(strings.TrimSpace(parts[0])); err == nil {
			return addr
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if addr, err := netip.ParseAddr(strings.TrimSpace(xri)); err == nil {
			return addr
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, _ := netip.ParseAddr(host)
	return addr
}
