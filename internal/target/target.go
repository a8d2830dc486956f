// Package target implements the message-dispatch and batching core: it reads
// Singer messages one line at a time, tracks per-stream schemas and staging
// buffers, decides when a batch is flushed to the sink, and emits the final
// checkpoint.
//
// The dispatch loop is single-threaded by design: all per-stream state
// transitions for one message (validate, stage, maybe-flush) complete before
// the next line is read. That ordering is what makes the duplicate-key flush
// rule and the batch-size threshold deterministic, and it gives implicit
// backpressure since a slow bulk load blocks the reader. The only concurrency
// is the end-of-input flush, where each remaining non-empty buffer belongs to
// exactly one flush goroutine.
package target

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/siilats/target-postgres/internal/config"
	"github.com/siilats/target-postgres/internal/message"
	"github.com/siilats/target-postgres/internal/metrics"
	"github.com/siilats/target-postgres/internal/precision"
	"github.com/siilats/target-postgres/internal/schema"
	"github.com/siilats/target-postgres/internal/sink"
)

// maxLineBytes bounds a single input line. Records with wide nested payloads
// can get large; 32 MiB is far beyond anything seen in practice.
const maxLineBytes = 32 << 20

// newSinkFn is a seam for tests; production code always goes through the
// sink factory registry.
var newSinkFn sink.Factory = sink.New

// stream is the per-stream context: everything created by a SCHEMA message
// and mutated by that stream's RECORDs.
type stream struct {
	name          string
	keyProperties []string
	validator     *schema.Validator
	sink          sink.Sink
	buf           *buffer

	// running totals for progress logging
	totalRows   int64
	batches     int64
	lastFlushTS time.Time
}

// Target owns the dispatch loop state: the stream map, the shared precision
// context, and the pending checkpoint.
type Target struct {
	cfg     config.Config
	pc      *precision.Context
	emitter *Emitter
	streams map[string]*stream

	// state is the most recent STATE value not yet superseded; replaced
	// wholesale, emitted once after end-of-input when all buffers have
	// flushed.
	state json.RawMessage
}

// New builds a Target. Checkpoints are emitted to out; all logging goes to
// the standard logger.
func New(cfg config.Config, out io.Writer) *Target {
	return &Target{
		cfg:     cfg,
		pc:      precision.NewContext(),
		emitter: NewEmitter(out),
		streams: map[string]*stream{},
	}
}

// Run consumes messages from in until end-of-input, then flushes every
// non-empty buffer and emits the outstanding checkpoint. Any error is fatal:
// the run stops where it is, without flushing partially-staged data, so an
// emitted checkpoint always corresponds to durably loaded rows.
func (t *Target) Run(ctx context.Context, in io.Reader) error {
	defer t.closeAll()

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for sc.Scan() {
		line := sc.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		msg, err := message.Parse(line)
		if err != nil {
			log.Printf("unable to parse line: %s", line)
			return err
		}
		metrics.RecordMessage(t.cfg.Job, string(msg.Type))

		switch msg.Type {
		case message.KindSchema:
			err = t.handleSchema(ctx, msg)
		case message.KindRecord:
			err = t.handleRecord(ctx, msg)
		case message.KindState:
			log.Printf("setting state to %s", msg.Value)
			t.state = msg.Value
		case message.KindActivateVersion:
			log.Printf("ACTIVATE_VERSION message for stream %q", msg.Stream)
		}
		if err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	if err := t.flushAll(ctx); err != nil {
		return err
	}
	return t.emitter.Emit(t.state)
}

// handleSchema declares (or redeclares) a stream: calibrate precision,
// compile the validator, open a fresh sink handle, ensure the destination
// object, and reset the stream's staging state. A redeclared stream's staged
// rows are dropped; the upstream resends from its last checkpoint.
func (t *Target) handleSchema(ctx context.Context, msg *message.Message) error {
	var doc any
	if err := json.Unmarshal(msg.Schema, &doc); err != nil {
		return message.Protocolf("SCHEMA for stream %q carries invalid schema document: %v", msg.Stream, err)
	}
	before := t.pc.Current()
	precision.Calibrate(t.pc, doc)
	if cur := t.pc.Current(); cur > before {
		log.Printf("setting decimal precision to %d", cur)
	}

	validator, err := schema.Compile(msg.Stream, msg.Schema, t.pc)
	if err != nil {
		return err
	}

	decl := sink.Decl{Stream: msg.Stream, Schema: msg.Schema, KeyProperties: msg.KeyProperties}
	snk, err := newSinkFn(ctx, t.cfg, decl, t.pc)
	if err != nil {
		return &sink.Error{Op: "open", Stream: msg.Stream, Err: err}
	}
	if err := snk.EnsureSchema(ctx); err != nil {
		_ = snk.Close()
		return &sink.Error{Op: "ensure-schema", Stream: msg.Stream, Err: err}
	}

	buf, err := newBuffer()
	if err != nil {
		_ = snk.Close()
		return err
	}

	if old, ok := t.streams[msg.Stream]; ok {
		old.buf.discard()
		_ = old.sink.Close()
	}
	t.streams[msg.Stream] = &stream{
		name:          msg.Stream,
		keyProperties: msg.KeyProperties,
		validator:     validator,
		sink:          snk,
		buf:           buf,
		lastFlushTS:   time.Now(),
	}
	return nil
}

// handleRecord validates, dedups, stages, and maybe flushes one record. The
// stream must already be declared; nothing is mutated otherwise.
func (t *Target) handleRecord(ctx context.Context, msg *message.Message) error {
	s, ok := t.streams[msg.Stream]
	if !ok {
		return message.Protocolf("a record for stream %q was encountered before a corresponding schema", msg.Stream)
	}

	if err := s.validator.Validate(msg.Record); err != nil {
		return err
	}

	key, err := s.sink.PrimaryKeyString(msg.Record)
	if err != nil {
		return &schema.ValidationError{Stream: msg.Stream, Err: err}
	}

	// A key already staged in this batch means the bulk load would carry two
	// conflicting rows for one primary key, which the merge cannot resolve.
	// Load what is staged first; the new record opens a fresh batch.
	if key != "" && s.buf.seen(key) {
		if err := t.flush(ctx, s); err != nil {
			return err
		}
	}

	line, err := s.sink.SerializeRecord(msg.Record)
	if err != nil {
		return &schema.ValidationError{Stream: msg.Stream, Err: err}
	}
	if err := s.buf.appendLine(line); err != nil {
		return err
	}
	if key != "" {
		s.buf.markSeen(key)
	}
	metrics.RecordRows(t.cfg.Job, s.name, "staged", 1)

	if s.buf.rowCount >= t.cfg.BatchSize {
		return t.flush(ctx, s)
	}
	return nil
}

// flush hands the staged block to the sink's bulk load and then resets the
// stream's staging state in one step. No-op on an empty buffer. Once the
// bulk load returns, those rows are durable as far as this process is
// concerned.
func (t *Target) flush(ctx context.Context, s *stream) error {
	if s.buf.rowCount == 0 {
		return nil
	}
	rows := s.buf.rowCount

	r, err := s.buf.startLoad()
	if err != nil {
		return err
	}

	start := time.Now()
	err = s.sink.BulkLoad(ctx, r, rows)
	metrics.RecordBatch(t.cfg.Job, s.name, err, time.Since(start))
	if err != nil {
		return &sink.Error{Op: "bulk-load", Stream: s.name, Err: err}
	}
	metrics.RecordRows(t.cfg.Job, s.name, "loaded", int64(rows))

	s.batches++
	s.totalRows += int64(rows)
	now := time.Now()
	sinceLast := now.Sub(s.lastFlushTS)
	rps := float64(0)
	if sinceLast > 0 {
		rps = float64(rows) / sinceLast.Seconds()
	}
	log.Printf(
		"stream %s batch #%d: rps=%.0f loaded=%d total_loaded=%d since_last=%s",
		s.name, s.batches, rps, rows, s.totalRows, sinceLast.Truncate(time.Millisecond),
	)
	s.lastFlushTS = now

	return s.buf.reset()
}

// flushAll flushes every non-empty buffer at end-of-input. Streams are
// independent, so flushes run in parallel; each stream's context is owned by
// its flush goroutine for the duration.
func (t *Target) flushAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range t.streams {
		if s.buf.rowCount == 0 {
			continue
		}
		s := s
		g.Go(func() error { return t.flush(ctx, s) })
	}
	return g.Wait()
}

// closeAll releases every stream's sink handle and staging file.
func (t *Target) closeAll() {
	for _, s := range t.streams {
		s.buf.discard()
		_ = s.sink.Close()
	}
}
