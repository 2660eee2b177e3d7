package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KafClaw/agentcore/internal/audit"
)

// DefaultTimeout bounds how long a tool call stays suspended waiting for a
// human.
const DefaultTimeout = 300 * time.Second

// Terminal statuses for an approval request.
const (
	StatusApproved  = "approved"
	StatusDenied    = "denied"
	StatusTimeout   = "timeout"
	StatusCancelled = "cancelled"
)

// ErrTimeout means no human answered before the deadline.
var ErrTimeout = errors.New("approval timed out")

// ErrCancelled means the surrounding operation was cancelled while waiting.
var ErrCancelled = errors.New("approval cancelled")

// ErrDenied means a human refused the tool call.
var ErrDenied = errors.New("approval denied")

// Notifier pushes approval requests to an external surface. Implementations
// must not block on user input; the decision comes back through Respond.
type Notifier interface {
	NotifyRequest(ctx context.Context, req Request, suggestion string) error
	NotifyResolved(ctx context.Context, requestID, status string) error
}

// Decision is a human's answer to a pending request. AlwaysAllow marks an
// approval the recorder should remember permanently for this tool.
type Decision struct {
	Approved    bool
	AlwaysAllow bool
}

// Gate suspends tool execution until a human responds, times out, or the
// caller gives up. Safe for concurrent use.
type Gate struct {
	mu       sync.Mutex
	pending  map[string]chan Decision
	store    *audit.Store
	notifier Notifier
	timeout  time.Duration
	logger   *slog.Logger
}

// GateOptions configures a Gate. Store and Notifier may be nil.
type GateOptions struct {
	Store    *audit.Store
	Notifier Notifier
	Timeout  time.Duration
	Logger   *slog.Logger
}

// NewGate creates an approval gate. Pending requests left in the store by a
// previous process are marked timed out.
func NewGate(opts GateOptions) *Gate {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	g := &Gate{
		pending:  make(map[string]chan Decision),
		store:    opts.Store,
		notifier: opts.Notifier,
		timeout:  opts.Timeout,
		logger:   opts.Logger,
	}
	g.cleanupStale()
	return g
}

// cleanupStale marks store-pending approvals from a dead process as timeout.
func (g *Gate) cleanupStale() {
	if g.store == nil {
		return
	}
	stale, err := g.store.PendingApprovals()
	if err != nil {
		return
	}
	for _, rec := range stale {
		_ = g.store.ResolveApproval(rec.ApprovalID, StatusTimeout)
	}
	if len(stale) > 0 {
		g.logger.Info("expired stale approvals from previous run", "count", len(stale))
	}
}

// Timeout returns how long Wait blocks before giving up.
func (g *Gate) Timeout() time.Duration { return g.timeout }

// Create registers a new approval request, persists it, pushes it to the
// notifier and returns its ID. The caller then blocks in Wait.
func (g *Gate) Create(ctx context.Context, req Request, suggestion, traceID, sessionID string) string {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	ch := make(chan Decision, 1)
	g.mu.Lock()
	g.pending[req.RequestID] = ch
	g.mu.Unlock()

	if g.store != nil {
		argsJSON, _ := json.Marshal(req.Args)
		_ = g.store.InsertApproval(&audit.ApprovalRecord{
			ApprovalID: req.RequestID,
			TraceID:    traceID,
			SessionID:  sessionID,
			Tool:       req.ToolName,
			RiskLevel:  string(req.RiskLevel),
			ArgsJSON:   string(argsJSON),
		})
	}
	if g.notifier != nil {
		if err := g.notifier.NotifyRequest(ctx, req, suggestion); err != nil {
			g.logger.Warn("approval notification failed", "request_id", req.RequestID, "error", err)
		}
	}
	return req.RequestID
}

// Wait blocks until the request resolves. The gate's timeout applies on top
// of any deadline already on ctx. Returns ErrDenied, ErrTimeout or
// ErrCancelled for the non-approved outcomes; the Decision carries the
// human's always-allow choice on approval.
func (g *Gate) Wait(ctx context.Context, requestID string) (Decision, error) {
	g.mu.Lock()
	ch, ok := g.pending[requestID]
	g.mu.Unlock()
	if !ok {
		return Decision{}, fmt.Errorf("no pending approval: %s", requestID)
	}

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case dec := <-ch:
		if dec.Approved {
			g.resolve(ctx, requestID, StatusApproved)
			return dec, nil
		}
		g.resolve(ctx, requestID, StatusDenied)
		return dec, ErrDenied
	case <-timer.C:
		g.resolve(ctx, requestID, StatusTimeout)
		return Decision{}, ErrTimeout
	case <-ctx.Done():
		g.resolve(context.Background(), requestID, StatusCancelled)
		return Decision{}, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	}
}

// Respond delivers a decision for a pending request. The send is
// non-blocking: the channel is buffered, and a second response to the same
// request is dropped on the floor.
func (g *Gate) Respond(requestID string, dec Decision) error {
	g.mu.Lock()
	ch, ok := g.pending[requestID]
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("no pending approval: %s", requestID)
	}
	select {
	case ch <- dec:
	default:
	}
	return nil
}

// Pending lists the IDs of requests still awaiting a decision.
func (g *Gate) Pending() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.pending))
	for id := range g.pending {
		out = append(out, id)
	}
	return out
}

func (g *Gate) resolve(ctx context.Context, requestID, status string) {
	g.mu.Lock()
	delete(g.pending, requestID)
	g.mu.Unlock()

	if g.store != nil {
		_ = g.store.ResolveApproval(requestID, status)
	}
	if g.notifier != nil {
		_ = g.notifier.NotifyResolved(ctx, requestID, status)
	}
}
