package simulator

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/michaelpento.lv/arbengine/rpc"
	"github.com/michaelpento.lv/arbengine/types"
)

// SimulationResult represents the result of a static call
type SimulationResult struct {
	Success      bool
	RevertReason string
	Error        error
}

// Simulator runs the exact call that would be submitted against the latest
// state without broadcasting it
type Simulator struct {
	timeout time.Duration
}

// NewSimulator creates a new simulator. A zero timeout relies on ctx alone.
func NewSimulator(timeout time.Duration) *Simulator {
	return &Simulator{
		timeout: timeout,
	}
}

// Simulate executes msg as a static call. A revert is reported in the result;
// the error is only set when the node could not be asked at all.
func (s *Simulator) Simulate(ctx context.Context, c rpc.Client, msg ethereum.CallMsg) (*SimulationResult, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	_, err := c.CallContract(ctx, msg, nil)
	if err == nil {
		return &SimulationResult{Success: true}, nil
	}
	if errors.Is(err, types.ErrTransientRPC) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nil, err
	}

	return &SimulationResult{
		Success:      false,
		RevertReason: rpc.RevertReason(err),
		Error:        err,
	}, nil
}
