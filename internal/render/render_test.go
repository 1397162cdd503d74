package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codexnull/allssh/internal/executor"
)

func job(host string, seq int, exitCode int, elapsed time.Duration, output ...string) *executor.Job {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	return &executor.Job{
		Host:     host,
		Seq:      seq,
		Output:   output,
		ExitCode: exitCode,
		Start:    start,
		End:      start.Add(elapsed),
	}
}

func TestComputeMetrics(t *testing.T) {
	jobs := []*executor.Job{
		job("web1", 0, 0, 1500*time.Millisecond, "one line"),
		job("longhost10", 1, 127, 12*time.Second, "a", "b"),
	}

	m := ComputeMetrics(jobs)
	assert.Equal(t, len("longhost10"), m.HostWidth)
	assert.Equal(t, len("127"), m.CodeWidth)
	assert.Equal(t, len("12.0"), m.ElapsedWidth)
	assert.True(t, m.AnyMultiline)
	assert.True(t, m.AnyNonzero)
}

func TestComputeMetricsAllClean(t *testing.T) {
	m := ComputeMetrics([]*executor.Job{job("h1", 0, 0, time.Second, "x")})
	assert.False(t, m.AnyMultiline)
	assert.False(t, m.AnyNonzero)
}

func TestRenderInline(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, Options{Order: CompletionOrder, Format: FormatText, ShowCodes: CodesNever, Width: 80})

	res := &executor.RunResult{Completed: []*executor.Job{
		job("web1", 0, 0, time.Second, "up 3 days"),
		job("db10", 1, 0, time.Second, "up 9 days"),
	}}
	require.NoError(t, r.RenderRun(res, nil))

	assert.Equal(t, "web1 : up 3 days\ndb10 : up 9 days\n", buf.String())
}

func TestRenderInlineCodesAuto(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, Options{Order: CompletionOrder, Format: FormatText, ShowCodes: CodesAuto, Width: 80})

	// One nonzero code turns the column on for every row.
	res := &executor.RunResult{Completed: []*executor.Job{
		job("h1", 0, 0, time.Second, "ok"),
		job("h2", 1, 2, time.Second, "bad"),
	}}
	require.NoError(t, r.RenderRun(res, nil))

	assert.Equal(t, "h1 0 : ok\nh2 2 : bad\n", buf.String())
}

func TestRenderInlineCodesAutoAllClean(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, Options{Order: CompletionOrder, Format: FormatText, ShowCodes: CodesAuto, Width: 80})

	res := &executor.RunResult{Completed: []*executor.Job{job("h1", 0, 0, time.Second, "ok")}}
	require.NoError(t, r.RenderRun(res, nil))

	assert.Equal(t, "h1 : ok\n", buf.String())
}

func TestRenderShowTime(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, Options{Order: CompletionOrder, Format: FormatText, ShowCodes: CodesNever, ShowTime: true, Width: 80})

	res := &executor.RunResult{Completed: []*executor.Job{job("h1", 0, 0, 1540*time.Millisecond, "ok")}}
	require.NoError(t, r.RenderRun(res, nil))

	assert.Equal(t, "h1 1.5 : ok\n", buf.String())
}

func TestRenderNoOutputPlaceholder(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, Options{Order: CompletionOrder, Format: FormatText, ShowCodes: CodesNever, Width: 80})

	res := &executor.RunResult{Completed: []*executor.Job{job("h1", 0, 0, time.Second)}}
	require.NoError(t, r.RenderRun(res, nil))

	assert.Equal(t, "h1 : (no output)\n", buf.String())
}

func TestRenderBanner(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, Options{Order: CompletionOrder, Format: FormatText, ShowCodes: CodesNever, Width: 40})

	res := &executor.RunResult{Completed: []*executor.Job{
		job("h1", 0, 0, time.Second, "line one", "line two"),
	}}
	require.NoError(t, r.RenderRun(res, nil))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "-=< h1 >=-"))
	assert.Len(t, lines[0], 40)
	assert.True(t, strings.HasSuffix(lines[0], "-"))
	assert.Equal(t, "line one", lines[1])
	assert.Equal(t, "line two", lines[2])
}

func TestRenderSeparatorsForced(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, Options{Order: CompletionOrder, Format: FormatText, ShowCodes: CodesNever, Separators: true, Width: 30})

	res := &executor.RunResult{Completed: []*executor.Job{job("h1", 0, 0, time.Second, "only line")}}
	require.NoError(t, r.RenderRun(res, nil))

	assert.True(t, strings.HasPrefix(buf.String(), "-=< h1 >=-"))
	assert.Contains(t, buf.String(), "\nonly line\n")
}

func TestRenderHostOrderWithRepeats(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, Options{Order: HostOrder, Format: FormatText, ShowCodes: CodesNever, Width: 80})

	// Completion order differs from spawn order; repeats of "a" must
	// render in spawn order.
	res := &executor.RunResult{Completed: []*executor.Job{
		job("b", 1, 0, time.Second, "from b"),
		job("a", 2, 0, time.Second, "second a"),
		job("a", 0, 0, time.Second, "first a"),
	}}
	require.NoError(t, r.RenderRun(res, []string{"a", "b", "a"}))

	assert.Equal(t, "a : first a\nb : from b\na : second a\n", buf.String())
}

func TestRenderHostWidthAlignment(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, Options{Order: CompletionOrder, Format: FormatText, ShowCodes: CodesNever, Width: 80})

	res := &executor.RunResult{Completed: []*executor.Job{
		job("h1", 0, 0, time.Second, "x"),
		job("host10", 1, 0, time.Second, "y"),
	}}
	require.NoError(t, r.RenderRun(res, nil))

	assert.Equal(t, "h1     : x\nhost10 : y\n", buf.String())
}

func TestRenderColorWrapsHostname(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, Options{
		Order:     CompletionOrder,
		Format:    FormatText,
		ShowCodes: CodesNever,
		Width:     80,
		Color:     func(s string) string { return "<" + s + ">" },
	})

	res := &executor.RunResult{Completed: []*executor.Job{job("h1", 0, 0, time.Second, "x")}}
	require.NoError(t, r.RenderRun(res, nil))

	assert.Equal(t, "<h1> : x\n", buf.String())
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, Options{Order: CompletionOrder, Format: FormatJSON, Width: 80})

	j := job("h1", 3, 2, 1500*time.Millisecond, "boom")
	j.Occurrence = 1
	j.TimedOut = true
	res := &executor.RunResult{Completed: []*executor.Job{j}}
	require.NoError(t, r.RenderRun(res, nil))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "h1", decoded["host"])
	assert.Equal(t, float64(3), decoded["seq"])
	assert.Equal(t, float64(1), decoded["occurrence"])
	assert.Equal(t, float64(2), decoded["exit_code"])
	assert.Equal(t, float64(1500), decoded["duration_ms"])
	assert.Equal(t, true, decoded["timed_out"])
}
