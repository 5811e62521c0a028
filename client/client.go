// Package client wraps the obmm session with logging, tracing, and
// metric hooks for applications that want instrumented transactions
// without building the plumbing themselves.
package client

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rocketbitz/obmm-go/obmm"
	"github.com/rocketbitz/obmm-go/topology"
)

// ErrClosed indicates the client has already been closed.
var ErrClosed = errors.New("obmm client: closed")

// Config controls Open behaviour for the high-level Client.
type Config struct {
	// DevicePath overrides the control device path.
	DevicePath string
	// SysRoot overrides the sysfs directory scanned for bus
	// controllers. Intended for tests.
	SysRoot string
	// Node names this host in telemetry attributes.
	Node string

	Logger           Logger
	StructuredLogger StructuredLogger
	Tracer           Tracer
	Metrics          MetricHook
}

// Transactor is the session surface the client instruments. A
// *obmm.Session satisfies it.
type Transactor interface {
	DevicePath() string
	Resolver() *topology.Resolver
	Export(lengths []uint64, flags obmm.ExportFlag, desc *obmm.MemDesc) (obmm.MemID, error)
	ExportAddr(pid int, va uintptr, length uint64, flags obmm.ExportFlag, desc *obmm.MemDesc) (obmm.MemID, error)
	Unexport(id obmm.MemID, flags obmm.UnexportFlag) error
	Import(desc *obmm.MemDesc, flags obmm.ImportFlag, baseDist, numaHint int) (obmm.MemID, int, error)
	Unimport(id obmm.MemID, flags obmm.ImportFlag) error
	DeclarePreimport(info *obmm.PreimportDesc, flags obmm.ImportFlag) error
	UndeclarePreimport(info *obmm.PreimportDesc, flags obmm.ImportFlag) error
	QueryMemIDByPA(pa uint64) (obmm.MemID, uint64, error)
	QueryPAByMemID(id obmm.MemID, offset uint64) (uint64, error)
	SetOwnership(fd int, start, end uint64, prot obmm.Protection) error
}

// Client instruments every memory-manager transaction with the
// configured logging, tracing, and metric hooks.
type Client struct {
	cfg     Config
	session Transactor
	closed  atomic.Bool

	logger           Logger
	structuredLogger StructuredLogger
	tracer           Tracer
	metrics          MetricHook
	stats            clientStats
}

// Logger provides structured debug logging hooks for the client.
type Logger interface {
	Debugf(format string, args ...any)
}

// StructuredLogger emits key/value pairs for structured logging backends.
type StructuredLogger interface {
	Debugw(msg string, keyvals ...any)
}

// TraceAttribute represents a tracing attribute attached to transaction spans.
type TraceAttribute struct {
	Key   string
	Value any
}

// Tracer starts spans that wrap individual transactions.
type Tracer interface {
	StartSpan(name string, attrs ...TraceAttribute) Span
}

// Span records transaction lifecycle, events, and errors for tracing systems.
type Span interface {
	End(err error)
	AddEvent(name string, attrs ...TraceAttribute)
	RecordError(err error)
}

// MetricHook captures transaction telemetry events.
type MetricHook interface {
	TransactionCompleted(attrs map[string]string)
	TransactionFailed(err error, attrs map[string]string)
}

// Stats contains counters for client operations.
type Stats struct {
	Exports    uint64
	Imports    uint64
	Preimports uint64
	Queries    uint64
	Updates    uint64
	Failures   uint64
}

type clientStats struct {
	exports    atomic.Uint64
	imports    atomic.Uint64
	preimports atomic.Uint64
	queries    atomic.Uint64
	updates    atomic.Uint64
	failures   atomic.Uint64
}

// Open prepares an instrumented client over the configured control
// device. The device is not touched until the first transaction.
func Open(cfg Config) *Client {
	session := obmm.NewSession(obmm.Config{DevicePath: cfg.DevicePath, SysRoot: cfg.SysRoot})
	return newClient(cfg, session)
}

func newClient(cfg Config, session Transactor) *Client {
	structured := cfg.StructuredLogger
	if structured == nil {
		if logger, ok := cfg.Logger.(StructuredLogger); ok {
			structured = logger
		}
	}
	return &Client{
		cfg:              cfg,
		session:          session,
		logger:           cfg.Logger,
		structuredLogger: structured,
		tracer:           cfg.Tracer,
		metrics:          cfg.Metrics,
	}
}

// Close marks the client closed. The underlying device handle has
// process lifetime and stays open.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.closed.Store(true)
	return nil
}

// DevicePath reports the control device the client talks to.
func (c *Client) DevicePath() string {
	if c == nil || c.session == nil {
		return ""
	}
	return c.session.DevicePath()
}

// Controllers enumerates the populated bus-controller slots.
func (c *Client) Controllers() ([]topology.Controller, error) {
	if err := c.ensureOpen(); err != nil {
		return nil, err
	}
	return c.session.Resolver().List()
}

// Export allocates and exports memory split across local NUMA nodes.
func (c *Client) Export(lengths []uint64, flags obmm.ExportFlag, desc *obmm.MemDesc) (obmm.MemID, error) {
	var id obmm.MemID
	err := c.instrument("export", &c.stats.exports, func() error {
		var err error
		id, err = c.session.Export(lengths, flags, desc)
		return err
	})
	return id, err
}

// ExportAddr pins and exports a VA range of the given process.
func (c *Client) ExportAddr(pid int, va uintptr, length uint64, flags obmm.ExportFlag, desc *obmm.MemDesc) (obmm.MemID, error) {
	var id obmm.MemID
	err := c.instrument("export_addr", &c.stats.exports, func() error {
		var err error
		id, err = c.session.ExportAddr(pid, va, length, flags, desc)
		return err
	})
	return id, err
}

// Unexport tears down an export transaction.
func (c *Client) Unexport(id obmm.MemID, flags obmm.UnexportFlag) error {
	return c.instrument("unexport", &c.stats.exports, func() error {
		return c.session.Unexport(id, flags)
	})
}

// Import attaches to a remotely exported region.
func (c *Client) Import(desc *obmm.MemDesc, flags obmm.ImportFlag, baseDist, numaHint int) (obmm.MemID, int, error) {
	var id obmm.MemID
	numa := obmm.NUMANone
	err := c.instrument("import", &c.stats.imports, func() error {
		var err error
		id, numa, err = c.session.Import(desc, flags, baseDist, numaHint)
		return err
	})
	return id, numa, err
}

// Unimport detaches an imported region.
func (c *Client) Unimport(id obmm.MemID, flags obmm.ImportFlag) error {
	return c.instrument("unimport", &c.stats.imports, func() error {
		return c.session.Unimport(id, flags)
	})
}

// DeclarePreimport reserves physical memory for a future import.
func (c *Client) DeclarePreimport(info *obmm.PreimportDesc, flags obmm.ImportFlag) error {
	return c.instrument("preimport", &c.stats.preimports, func() error {
		return c.session.DeclarePreimport(info, flags)
	})
}

// UndeclarePreimport drops a preimport reservation.
func (c *Client) UndeclarePreimport(info *obmm.PreimportDesc, flags obmm.ImportFlag) error {
	return c.instrument("unpreimport", &c.stats.preimports, func() error {
		return c.session.UndeclarePreimport(info, flags)
	})
}

// QueryMemIDByPA resolves a physical address to its export transaction.
func (c *Client) QueryMemIDByPA(pa uint64) (obmm.MemID, uint64, error) {
	var id obmm.MemID
	var offset uint64
	err := c.instrument("query_memid", &c.stats.queries, func() error {
		var err error
		id, offset, err = c.session.QueryMemIDByPA(pa)
		return err
	})
	return id, offset, err
}

// QueryPAByMemID resolves an export transaction and offset back to a
// physical address.
func (c *Client) QueryPAByMemID(id obmm.MemID, offset uint64) (uint64, error) {
	var pa uint64
	err := c.instrument("query_pa", &c.stats.queries, func() error {
		var err error
		pa, err = c.session.QueryPAByMemID(id, offset)
		return err
	})
	return pa, err
}

// SetOwnership rewrites the page state of a range on a memory device.
func (c *Client) SetOwnership(fd int, start, end uint64, prot obmm.Protection) error {
	return c.instrument("update_range", &c.stats.updates, func() error {
		return c.session.SetOwnership(fd, start, end, prot)
	})
}

// Stats returns a snapshot of client counters.
func (c *Client) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	return Stats{
		Exports:    c.stats.exports.Load(),
		Imports:    c.stats.imports.Load(),
		Preimports: c.stats.preimports.Load(),
		Queries:    c.stats.queries.Load(),
		Updates:    c.stats.updates.Load(),
		Failures:   c.stats.failures.Load(),
	}
}

func (c *Client) ensureOpen() error {
	if c == nil || c.session == nil {
		return ErrClosed
	}
	if c.closed.Load() {
		return ErrClosed
	}
	return nil
}

// instrument runs one transaction inside a span, updates counters, and
// emits the log and metric events for its outcome.
func (c *Client) instrument(op string, counter *atomic.Uint64, fn func() error) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}

	span := c.startSpan(op)
	err := fn()

	status := "ok"
	fields := []logField{logKV("operation", op), logKV("status", status)}
	if err != nil {
		status = "error"
		fields[1] = logKV("status", status)
		fields = append(fields, logKV("error", err))
		c.stats.failures.Add(1)
		spanRecordError(span, err)
	} else {
		counter.Add(1)
	}

	eventName := "transaction"
	if err != nil {
		eventName = "transaction_error"
	}
	c.logEvent(eventName, fields...)
	spanAddEvent(span, eventName, fields...)
	c.metricTransaction(op, status, err)
	c.finishSpan(span, err)
	return err
}

const (
	labelOperation = "operation"
	labelDevice    = "device"
	labelNode      = "node"
	labelStatus    = "status"
)

func (c *Client) metricAttrs(op, status string) map[string]string {
	attrs := make(map[string]string, 4)
	attrs[labelOperation] = op
	attrs[labelDevice] = c.session.DevicePath()
	if c.cfg.Node != "" {
		attrs[labelNode] = c.cfg.Node
	}
	attrs[labelStatus] = status
	return attrs
}

func (c *Client) metricTransaction(op, status string, err error) {
	if c == nil || c.metrics == nil {
		return
	}
	attrs := c.metricAttrs(op, status)
	if err != nil {
		c.metrics.TransactionFailed(err, attrs)
		return
	}
	c.metrics.TransactionCompleted(attrs)
}

type logField struct {
	key   string
	value any
}

func logKV(key string, value any) logField {
	return logField{key: key, value: value}
}

func (c *Client) logEvent(event string, fields ...logField) {
	if c == nil {
		return
	}
	if c.structuredLogger != nil {
		kv := make([]any, 0, len(fields)*2+2)
		kv = append(kv, "event", event)
		for _, field := range fields {
			if field.key == "" {
				continue
			}
			kv = append(kv, field.key, field.value)
		}
		c.structuredLogger.Debugw("obmm client", kv...)
		return
	}
	if c.logger == nil {
		return
	}
	var b strings.Builder
	b.WriteString(event)
	for _, field := range fields {
		if field.key == "" {
			continue
		}
		b.WriteString(" ")
		b.WriteString(field.key)
		b.WriteString("=")
		b.WriteString(fmt.Sprint(field.value))
	}
	c.logger.Debugf("client %s", b.String())
}

func (c *Client) startSpan(op string) Span {
	if c == nil || c.tracer == nil {
		return nil
	}
	attrs := []TraceAttribute{
		{Key: "component", Value: "obmm-client"},
		{Key: labelOperation, Value: op},
		{Key: labelDevice, Value: c.session.DevicePath()},
	}
	if c.cfg.Node != "" {
		attrs = append(attrs, TraceAttribute{Key: labelNode, Value: c.cfg.Node})
	}
	return c.tracer.StartSpan("obmm-client-transaction", attrs...)
}

func (c *Client) finishSpan(span Span, err error) {
	if span == nil {
		return
	}
	span.End(err)
}

func spanAddEvent(span Span, name string, fields ...logField) {
	if span == nil {
		return
	}
	span.AddEvent(name, attributesFromFields(fields...)...)
}

func spanRecordError(span Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
}

func attributesFromFields(fields ...logField) []TraceAttribute {
	if len(fields) == 0 {
		return nil
	}
	attrs := make([]TraceAttribute, 0, len(fields))
	for _, field := range fields {
		if field.key == "" {
			continue
		}
		attrs = append(attrs, TraceAttribute{Key: field.key, Value: field.value})
	}
	return attrs
}
