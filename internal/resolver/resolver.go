// Package resolver turns a host spec string into the concrete, ordered
// host list a run targets.
package resolver

import (
	"context"
	"math/rand"
	"strings"

	"github.com/codexnull/allssh/internal/errdefs"
	"github.com/codexnull/allssh/internal/groups"
	"github.com/codexnull/allssh/internal/hostspec"
	"github.com/codexnull/allssh/internal/logging"
	"github.com/codexnull/allssh/internal/probe"
)

// Options controls deduplication and ordering of the resolved list.
type Options struct {
	Dedup     bool // drop later duplicates, keeping first occurrence
	KeepOrder bool // preserve spec order instead of natural host order
	Pick      int  // random sample size; > 0 forces Dedup on
}

// Resolver combines the expander, the group store and the liveness
// filter. Create one per run and thread it through explicitly.
type Resolver struct {
	Store  *groups.Store
	Prober *probe.Prober
	Logger *logging.Logger
}

// New creates a resolver over the given group store and prober.
func New(store *groups.Store, prober *probe.Prober, logger *logging.Logger) *Resolver {
	return &Resolver{Store: store, Prober: prober, Logger: logger}
}

// Resolve expands spec into the final host list. Duplicates survive when
// dedup is off; each surviving entry is one command occurrence.
func (r *Resolver) Resolve(ctx context.Context, spec string, opts Options) ([]string, error) {
	var hosts []string

	for _, piece := range hostspec.SplitSpec(spec) {
		if strings.HasPrefix(piece, "@") {
			expanded, err := r.resolveGroup(ctx, piece)
			if err != nil {
				return nil, err
			}
			hosts = append(hosts, expanded...)
			continue
		}

		expanded, err := hostspec.ExpandToken(hostspec.ParseToken(piece))
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, expanded...)
	}

	// A random pick must never run the command twice on one host.
	if opts.Pick > 0 {
		opts.Dedup = true
	}
	if opts.Dedup {
		hosts = dedup(hosts)
	}
	if opts.Pick > 0 && opts.Pick < len(hosts) {
		hosts = sample(hosts, opts.Pick)
	}
	if !opts.KeepOrder {
		hostspec.SortNatural(hosts)
	}

	if len(hosts) == 0 {
		return nil, &errdefs.EmptyResolution{Spec: spec}
	}

	if r.Logger != nil {
		r.Logger.LogResolve(spec, len(hosts))
	}
	return hosts, nil
}

// resolveGroup expands an @group or @group:subset piece. An undefined
// group contributes no hosts but does not abort the resolution.
func (r *Resolver) resolveGroup(ctx context.Context, piece string) ([]string, error) {
	ref := strings.TrimPrefix(piece, "@")
	name, subset, _ := strings.Cut(ref, ":")

	group, ok, err := r.Store.Lookup(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		if r.Logger != nil {
			r.Logger.LogUndefinedGroup(name)
		}
		return nil, nil
	}

	members := group.Hosts()
	switch strings.ToUpper(subset) {
	case "", "ALL":
		return members, nil
	case "UP":
		return r.Prober.FilterReachable(ctx, members)
	default:
		return nil, &errdefs.InvalidSubset{Group: name, Subset: subset}
	}
}

// dedup drops later duplicates, preserving first-occurrence order.
func dedup(hosts []string) []string {
	seen := make(map[string]bool, len(hosts))
	out := hosts[:0]
	for _, h := range hosts {
		if seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	return out
}

// sample picks n hosts uniformly without replacement, preserving the
// relative order of the survivors.
func sample(hosts []string, n int) []string {
	chosen := make(map[int]bool, n)
	for len(chosen) < n {
		chosen[rand.Intn(len(hosts))] = true
	}
	out := make([]string, 0, n)
	for i, h := range hosts {
		if chosen[i] {
			out = append(out, h)
		}
	}
	return out
}

// Occurrences counts how many times each host appears in the resolved
// list. With dedup enabled every count is 1.
func Occurrences(hosts []string) map[string]int {
	counts := make(map[string]int, len(hosts))
	for _, h := range hosts {
		counts[h]++
	}
	return counts
}
