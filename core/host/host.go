package host

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"lukechampine.com/blake3"

	yserrors "yieldsplit/core/errors"
	"yieldsplit/core/events"
	"yieldsplit/core/state"
	"yieldsplit/core/types"
	"yieldsplit/crypto"
	"yieldsplit/storage"
)

const instrumentationName = "yieldsplit/core/host"

var (
	errNilDatabase = errors.New("host: database required")
	errNilFunc     = errors.New("host: transaction function required")

	hostNamespace = []byte("host")
	sequenceKey   = state.Key("sequence")
)

// Receipt describes a committed transaction.
type Receipt struct {
	Hash      [32]byte
	Sequence  uint64
	Timestamp uint64
	Signers   []crypto.Address
	Events    []events.Event
}

// HashHex returns the receipt digest in hex.
func (r *Receipt) HashHex() string {
	if r == nil {
		return ""
	}
	return hex.EncodeToString(r.Hash[:])
}

// Option configures a Host.
type Option func(*Host)

// WithClock overrides the wall clock.
func WithClock(clock Clock) Option {
	return func(h *Host) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithEmitter sets the destination of committed events.
func WithEmitter(emitter events.Emitter) Option {
	return func(h *Host) {
		if emitter != nil {
			h.emitter = emitter
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// Host runs transactions against a database one at a time. Each transaction
// either commits every write it made or none of them.
type Host struct {
	mu      sync.Mutex
	db      storage.Database
	clock   Clock
	emitter events.Emitter
	logger  *slog.Logger

	tracer  trace.Tracer
	txTotal metric.Int64Counter
}

// New constructs a host over db.
func New(db storage.Database, opts ...Option) (*Host, error) {
	if db == nil {
		return nil, errNilDatabase
	}
	h := &Host{
		db:      db,
		clock:   SystemClock{},
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		tracer:  otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(h)
	}
	counter, err := otel.Meter(instrumentationName).Int64Counter(
		"yieldsplit.host.transactions",
		metric.WithDescription("Transactions executed by the host, by outcome."),
	)
	if err != nil {
		return nil, fmt.Errorf("host: create counter: %w", err)
	}
	h.txTotal = counter
	return h, nil
}

// Now returns the host clock's current time.
func (h *Host) Now() time.Time {
	return h.clock.Now()
}

// Execute runs fn as a single atomic transaction authorized by signers.
func (h *Host) Execute(ctx context.Context, signers []crypto.Address, fn func(*Env) error) (*Receipt, error) {
	if fn == nil {
		return nil, errNilFunc
	}
	for _, signer := range signers {
		if signer.IsZero() || signer.IsComponent() {
			return nil, fmt.Errorf("host: signer %q: %w", signer, yserrors.ErrUnauthorized)
		}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx, span := h.tracer.Start(ctx, "host.execute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.Int("signers", len(signers))),
	)
	defer span.End()

	tx := &transaction{
		ctx:       ctx,
		journal:   state.NewJournal(h.db),
		timestamp: unixSeconds(h.clock.Now()),
		signers:   append([]crypto.Address(nil), signers...),
	}
	if err := run(&Env{tx: tx}, fn); err != nil {
		tx.journal.Discard()
		span.RecordError(err)
		h.txTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", yserrors.Label(err))))
		h.logger.Debug("transaction aborted", slog.String("error", err.Error()))
		return nil, err
	}

	store := state.NewStore(tx.journal, hostNamespace)
	seq, err := store.Uint64(sequenceKey)
	if err != nil {
		tx.journal.Discard()
		return nil, fmt.Errorf("host: read sequence: %w", err)
	}
	seq++
	if err := store.SetUint64(sequenceKey, seq); err != nil {
		tx.journal.Discard()
		return nil, fmt.Errorf("host: write sequence: %w", err)
	}

	receipt := &Receipt{
		Sequence:  seq,
		Timestamp: tx.timestamp,
		Signers:   tx.signers,
		Events:    tx.events,
	}
	hash, err := receiptHash(receipt)
	if err != nil {
		tx.journal.Discard()
		return nil, err
	}
	receipt.Hash = hash

	if err := tx.journal.Commit(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("host: commit: %w", err)
	}
	h.txTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "ok")))
	span.SetAttributes(attribute.Int("events", len(receipt.Events)), attribute.Int64("sequence", int64(seq)))
	h.logger.Debug("transaction committed",
		slog.Uint64("sequence", seq),
		slog.Int("events", len(receipt.Events)),
		slog.String("hash", receipt.HashHex()),
	)
	for _, ev := range receipt.Events {
		h.emitter.Emit(ev)
	}
	return receipt, nil
}

// View runs fn against the current state and discards every write it makes.
func (h *Host) View(ctx context.Context, fn func(*Env) error) error {
	if fn == nil {
		return errNilFunc
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	tx := &transaction{
		ctx:       ctx,
		journal:   state.NewJournal(h.db),
		timestamp: unixSeconds(h.clock.Now()),
		readOnly:  true,
	}
	defer tx.journal.Discard()
	return run(&Env{tx: tx}, fn)
}

// Sequence returns the number of committed transactions.
func (h *Host) Sequence() (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return state.NewStore(h.db, hostNamespace).Uint64(sequenceKey)
}

func run(env *Env, fn func(*Env) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("host: transaction panicked: %v", r)
		}
	}()
	if ctxErr := env.tx.ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fn(env)
}

type receiptEvent struct {
	Type       string
	Attributes []types.Attribute
}

type receiptPayload struct {
	Sequence  uint64
	Timestamp uint64
	Signers   []string
	Events    []receiptEvent
}

func receiptHash(r *Receipt) ([32]byte, error) {
	payload := receiptPayload{Sequence: r.Sequence, Timestamp: r.Timestamp}
	for _, signer := range r.Signers {
		payload.Signers = append(payload.Signers, signer.String())
	}
	for _, ev := range r.Events {
		rendered := ev.Event()
		payload.Events = append(payload.Events, receiptEvent{Type: rendered.Type, Attributes: rendered.Pairs()})
	}
	encoded, err := rlp.EncodeToBytes(payload)
	if err != nil {
		return [32]byte{}, fmt.Errorf("host: encode receipt: %w", err)
	}
	return blake3.Sum256(encoded), nil
}

func unixSeconds(t time.Time) uint64 {
	if t.Unix() < 0 {
		return 0
	}
	return uint64(t.Unix())
}
