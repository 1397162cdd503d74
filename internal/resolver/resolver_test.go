package resolver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codexnull/allssh/internal/errdefs"
	"github.com/codexnull/allssh/internal/groups"
	"github.com/codexnull/allssh/internal/probe"
)

func newTestResolver(t *testing.T, groupFile string, down ...string) *Resolver {
	t.Helper()

	path := ""
	if groupFile != "" {
		path = filepath.Join(t.TempDir(), "groups")
		require.NoError(t, os.WriteFile(path, []byte(groupFile), 0o644))
	}

	unreachable := make(map[string]bool, len(down))
	for _, h := range down {
		unreachable[h] = true
	}
	prober := probe.NewProber(nil)
	prober.ArgvFunc = func(host string) []string {
		if unreachable[host] {
			return []string{"/bin/sh", "-c", "exit 1"}
		}
		return []string{"/bin/sh", "-c", "exit 0"}
	}

	return New(groups.NewStore(path, nil), prober, nil)
}

func TestResolveRanges(t *testing.T) {
	r := newTestResolver(t, "")

	hosts, err := r.Resolve(context.Background(), "foo1,3,5-7i", Options{Dedup: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"foo1i", "foo3i", "foo5i", "foo6i", "foo7i"}, hosts)
}

func TestResolveNaturalOrder(t *testing.T) {
	r := newTestResolver(t, "")

	hosts, err := r.Resolve(context.Background(), "foo10,bar2,foo2", Options{Dedup: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"bar2", "foo2", "foo10"}, hosts)
}

func TestResolveKeepOrder(t *testing.T) {
	r := newTestResolver(t, "")

	hosts, err := r.Resolve(context.Background(), "foo10,bar2,foo2", Options{Dedup: true, KeepOrder: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"foo10", "bar2", "foo2"}, hosts)
}

func TestResolveDedup(t *testing.T) {
	r := newTestResolver(t, "")

	hosts, err := r.Resolve(context.Background(), "a,b,a", Options{Dedup: true, KeepOrder: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, hosts)
	assert.Equal(t, 1, Occurrences(hosts)["a"])
}

func TestResolveDupsPreserved(t *testing.T) {
	r := newTestResolver(t, "")

	hosts, err := r.Resolve(context.Background(), "a,b,a", Options{KeepOrder: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "a"}, hosts)
	assert.Equal(t, 2, Occurrences(hosts)["a"])
}

func TestResolveGroup(t *testing.T) {
	r := newTestResolver(t, "[WEB]\nweb2\nweb1\n")

	hosts, err := r.Resolve(context.Background(), "@web", Options{Dedup: true, KeepOrder: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"web2", "web1"}, hosts)
}

func TestResolveGroupSubsetAll(t *testing.T) {
	r := newTestResolver(t, "[WEB]\nweb1\nweb2\n")

	hosts, err := r.Resolve(context.Background(), "@WEB:ALL", Options{Dedup: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"web1", "web2"}, hosts)
}

func TestResolveGroupSubsetUp(t *testing.T) {
	r := newTestResolver(t, "[WEB]\nweb1\nweb2\nweb3\n", "web2")

	hosts, err := r.Resolve(context.Background(), "@WEB:UP", Options{Dedup: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"web1", "web3"}, hosts)
}

func TestResolveInvalidSubset(t *testing.T) {
	r := newTestResolver(t, "[WEB]\nweb1\n")

	_, err := r.Resolve(context.Background(), "@WEB:DOWN", Options{Dedup: true})
	var is *errdefs.InvalidSubset
	require.ErrorAs(t, err, &is)
	assert.Equal(t, "WEB", is.Group)
	assert.Equal(t, "DOWN", is.Subset)
}

func TestResolveUndefinedGroupContinues(t *testing.T) {
	r := newTestResolver(t, "[WEB]\nweb1\n")

	// The undefined group contributes nothing but resolution continues.
	hosts, err := r.Resolve(context.Background(), "@NOPE,web9", Options{Dedup: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"web9"}, hosts)
}

func TestResolveEmpty(t *testing.T) {
	r := newTestResolver(t, "")

	_, err := r.Resolve(context.Background(), "@NOPE", Options{Dedup: true})
	var er *errdefs.EmptyResolution
	require.ErrorAs(t, err, &er)
}

func TestResolveMalformedRange(t *testing.T) {
	r := newTestResolver(t, "")

	_, err := r.Resolve(context.Background(), "foo9-1", Options{Dedup: true})
	var mr *errdefs.MalformedRange
	require.ErrorAs(t, err, &mr)
}

func TestResolvePickForcesDedup(t *testing.T) {
	r := newTestResolver(t, "")

	hosts, err := r.Resolve(context.Background(), "a,b,a,b", Options{Dedup: false, Pick: 2, KeepOrder: true})
	require.NoError(t, err)
	assert.Len(t, hosts, 2)
	assert.NotEqual(t, hosts[0], hosts[1])
}

func TestResolvePickSubset(t *testing.T) {
	r := newTestResolver(t, "")

	hosts, err := r.Resolve(context.Background(), "h1-9", Options{Dedup: true, Pick: 3})
	require.NoError(t, err)
	assert.Len(t, hosts, 3)
	for _, h := range hosts {
		assert.Regexp(t, "^h[1-9]$", h)
	}
}

func TestResolveIdempotent(t *testing.T) {
	r := newTestResolver(t, "[WEB]\nweb3\nweb1\n")

	first, err := r.Resolve(context.Background(), "@WEB,db1-3", Options{Dedup: true})
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), "@WEB,db1-3", Options{Dedup: true})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
