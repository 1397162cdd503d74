// Package probe filters host lists down to reachable hosts using one
// lightweight ICMP-echo subprocess per host.
package probe

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codexnull/allssh/internal/errdefs"
	"github.com/codexnull/allssh/internal/logging"
)

// MaxProbes is the hard cap on concurrent probe subprocesses per call.
// Exceeding it is fatal, not retryable.
const MaxProbes = 32

// DefaultTimeout is the per-probe timeout, single attempt.
const DefaultTimeout = 1 * time.Second

// Prober runs reachability probes as bounded parallel subprocesses.
type Prober struct {
	Command string        // probe binary, defaults to ping
	Timeout time.Duration // per-probe timeout, defaults to DefaultTimeout
	Logger  *logging.Logger

	// ArgvFunc overrides the probe argument vector, used by tests to
	// substitute a fake probe.
	ArgvFunc func(host string) []string
}

// NewProber creates a prober with the default ping invocation.
func NewProber(logger *logging.Logger) *Prober {
	return &Prober{
		Command: "ping",
		Timeout: DefaultTimeout,
		Logger:  logger,
	}
}

func (p *Prober) argv(host string) []string {
	if p.ArgvFunc != nil {
		return p.ArgvFunc(host)
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	secs := int(timeout / time.Second)
	if secs < 1 {
		secs = 1
	}
	// One packet, one attempt.
	return []string{p.Command, "-c", "1", "-W", fmt.Sprintf("%d", secs), host}
}

// FilterReachable returns the order-preserving subset of hosts whose
// probe subprocess exits zero. All probes run concurrently; the call
// blocks until every spawned probe has been reaped.
func (p *Prober) FilterReachable(ctx context.Context, hosts []string) ([]string, error) {
	if len(hosts) > MaxProbes {
		return nil, &errdefs.FenceExceeded{Requested: len(hosts), Limit: MaxProbes}
	}
	if len(hosts) == 0 {
		return nil, nil
	}

	start := time.Now()
	alive := make([]bool, len(hosts))

	g, gctx := errgroup.WithContext(ctx)
	for i, host := range hosts {
		i, host := i, host
		g.Go(func() error {
			argv := p.argv(host)
			cmd := exec.CommandContext(gctx, argv[0], argv[1:]...)
			alive[i] = cmd.Run() == nil
			return nil
		})
	}
	// Probes report reachability through the alive slice, never an
	// error, so Wait only reaps the children.
	_ = g.Wait()

	var reachable []string
	for i, host := range hosts {
		if alive[i] {
			reachable = append(reachable, host)
		}
	}

	if p.Logger != nil {
		p.Logger.LogProbe(len(hosts), len(reachable), time.Since(start))
	}
	return reachable, nil
}
