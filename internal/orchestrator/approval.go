package orchestrator

import (
	"context"
	"errors"

	"github.com/aristath/autopilot/internal/recovery"
)

// ErrApprovalClosed is returned for requests made after the handler stopped.
var ErrApprovalClosed = errors.New("approval channel closed")

type approvalRequest struct {
	req        recovery.Request
	responseCh chan approvalAnswer
}

type approvalAnswer struct {
	approved bool
	err      error
}

// ApprovalChannel serializes approval prompts from concurrent callers onto
// a single handler goroutine, so only one prompt is on screen at a time.
// It implements recovery.Approver.
type ApprovalChannel struct {
	requests chan approvalRequest
	approver recovery.Approver
	done     chan struct{}
}

// NewApprovalChannel creates a channel that forwards requests to approver.
// bufferSize should be at least the number of concurrent callers.
func NewApprovalChannel(bufferSize int, approver recovery.Approver) *ApprovalChannel {
	if approver == nil {
		approver = recovery.StaticApprover(false)
	}
	return &ApprovalChannel{
		requests: make(chan approvalRequest, bufferSize),
		approver: approver,
		done:     make(chan struct{}),
	}
}

// Start launches the handler goroutine. It runs until ctx is cancelled.
func (c *ApprovalChannel) Start(ctx context.Context) {
	go c.handle(ctx)
}

func (c *ApprovalChannel) handle(ctx context.Context) {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			return
		case r := <-c.requests:
			approved, err := c.approver.Approve(ctx, r.req)
			if ctx.Err() != nil {
				r.responseCh <- approvalAnswer{err: ctx.Err()}
				return
			}
			r.responseCh <- approvalAnswer{approved: approved, err: err}
		}
	}
}

// Approve queues req and waits for the handler's decision.
func (c *ApprovalChannel) Approve(ctx context.Context, req recovery.Request) (bool, error) {
	// Buffered so the handler never blocks on an abandoned request
	responseCh := make(chan approvalAnswer, 1)

	select {
	case c.requests <- approvalRequest{req: req, responseCh: responseCh}:
	case <-c.done:
		return false, ErrApprovalClosed
	case <-ctx.Done():
		return false, ctx.Err()
	}

	select {
	case answer := <-responseCh:
		return answer.approved, answer.err
	case <-c.done:
		// The handler may have answered just before exiting
		select {
		case answer := <-responseCh:
			return answer.approved, answer.err
		default:
			return false, ErrApprovalClosed
		}
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Stop blocks until the handler goroutine has exited.
func (c *ApprovalChannel) Stop() {
	<-c.done
}
