// Package render formats collected jobs for presentation, in canonical
// host order or in the order jobs completed.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/codexnull/allssh/internal/executor"
)

// OrderMode selects the rendering order for collected jobs.
type OrderMode string

const (
	// HostOrder iterates the canonical resolved host list, each host's
	// occurrences in spawn order.
	HostOrder OrderMode = "host"

	// CompletionOrder renders jobs as they finished. No-wait mode uses
	// this implicitly.
	CompletionOrder OrderMode = "completion"
)

// CodeMode controls when the exit code appears in the label.
type CodeMode string

const (
	CodesAuto   CodeMode = "auto" // shown when any job exited nonzero
	CodesAlways CodeMode = "always"
	CodesNever  CodeMode = "never"
)

// Format selects the output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json" // NDJSON, one object per job
)

// noOutput is rendered for a job that produced no output lines.
const noOutput = "(no output)"

// Options holds presentation configuration.
type Options struct {
	Order      OrderMode
	Format     Format
	ShowCodes  CodeMode
	ShowTime   bool                // append elapsed seconds to the label
	Separators bool                // force banner separators on
	Color      func(string) string // optional hostname wrap
	Width      int                 // terminal width, 0 to detect
}

// Metrics aligns all rendered rows consistently. Derive it once over the
// full completed job set.
type Metrics struct {
	HostWidth    int
	CodeWidth    int
	ElapsedWidth int
	AnyMultiline bool
	AnyNonzero   bool
}

// ComputeMetrics derives presentation metrics from the completed job set.
func ComputeMetrics(jobs []*executor.Job) Metrics {
	var m Metrics
	for _, j := range jobs {
		if len(j.Host) > m.HostWidth {
			m.HostWidth = len(j.Host)
		}
		if w := len(strconv.Itoa(j.ExitCode)); w > m.CodeWidth {
			m.CodeWidth = w
		}
		if w := len(fmt.Sprintf("%.1f", j.Elapsed().Seconds())); w > m.ElapsedWidth {
			m.ElapsedWidth = w
		}
		if len(j.Output) > 1 {
			m.AnyMultiline = true
		}
		if j.ExitCode != 0 {
			m.AnyNonzero = true
		}
	}
	return m
}

// Renderer writes formatted job results.
type Renderer struct {
	w    io.Writer
	mu   sync.Mutex
	opts Options
}

// NewRenderer creates a renderer over the given writer.
func NewRenderer(w io.Writer, opts Options) *Renderer {
	if w == nil {
		w = os.Stdout
	}
	if opts.Width == 0 {
		opts.Width = DetectWidth()
	}
	return &Renderer{w: w, opts: opts}
}

// DetectWidth returns the terminal width, or 80 when stdout is not a
// terminal.
func DetectWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}

// RenderRun renders a whole collected run. hostOrder is the canonical
// resolved host list and drives host-order mode; it may contain
// duplicate entries when deduplication was off.
func (r *Renderer) RenderRun(res *executor.RunResult, hostOrder []string) error {
	metrics := ComputeMetrics(res.Completed)

	if r.opts.Order == HostOrder {
		for _, j := range inHostOrder(res.Completed, hostOrder) {
			if err := r.RenderJob(j, metrics); err != nil {
				return err
			}
		}
		return nil
	}

	for _, j := range res.Completed {
		if err := r.RenderJob(j, metrics); err != nil {
			return err
		}
	}
	return nil
}

// inHostOrder arranges jobs by the canonical host list. Each list entry
// consumes that host's next occurrence in spawn order, so repeats render
// in the order they were spawned.
func inHostOrder(jobs []*executor.Job, hostOrder []string) []*executor.Job {
	byHost := make(map[string][]*executor.Job, len(jobs))
	for _, j := range jobs {
		byHost[j.Host] = append(byHost[j.Host], j)
	}
	for _, queue := range byHost {
		sort.Slice(queue, func(i, k int) bool { return queue[i].Seq < queue[k].Seq })
	}

	ordered := make([]*executor.Job, 0, len(jobs))
	for _, host := range hostOrder {
		queue := byHost[host]
		if len(queue) == 0 {
			continue
		}
		ordered = append(ordered, queue[0])
		byHost[host] = queue[1:]
	}
	return ordered
}

// RenderJob renders a single job. Metrics may be zero when streaming in
// no-wait mode, in which case each row uses its own natural widths.
func (r *Renderer) RenderJob(j *executor.Job, m Metrics) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.opts.Format == FormatJSON {
		return r.renderJSON(j)
	}

	label := r.label(j, m)
	if len(j.Output) > 1 || m.AnyMultiline || r.opts.Separators {
		return r.renderBanner(j, label)
	}
	return r.renderInline(j, label)
}

// label builds the aligned row label: hostname, optional exit code,
// optional elapsed seconds.
func (r *Renderer) label(j *executor.Job, m Metrics) string {
	name := j.Host
	pad := ""
	if m.HostWidth > len(name) {
		pad = strings.Repeat(" ", m.HostWidth-len(name))
	}
	if r.opts.Color != nil {
		name = r.opts.Color(name)
	}
	label := name + pad

	showCode := r.opts.ShowCodes == CodesAlways ||
		(r.opts.ShowCodes == CodesAuto && m.AnyNonzero)
	if showCode {
		label += fmt.Sprintf(" %-*d", m.CodeWidth, j.ExitCode)
	}
	if r.opts.ShowTime {
		label += fmt.Sprintf(" %*.1f", m.ElapsedWidth, j.Elapsed().Seconds())
	}
	return label
}

// renderBanner writes a separator banner followed by the raw output.
func (r *Renderer) renderBanner(j *executor.Job, label string) error {
	banner := fmt.Sprintf("-=< %s >=-", label)
	if len(banner) < r.opts.Width {
		banner += strings.Repeat("-", r.opts.Width-len(banner))
	}
	if _, err := fmt.Fprintln(r.w, banner); err != nil {
		return err
	}

	lines := j.Output
	if len(lines) == 0 {
		lines = []string{noOutput}
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(r.w, line); err != nil {
			return err
		}
	}
	return nil
}

// renderInline prefixes each output line with the label.
func (r *Renderer) renderInline(j *executor.Job, label string) error {
	lines := j.Output
	if len(lines) == 0 {
		lines = []string{noOutput}
	}
	for _, line := range lines {
		if _, err := fmt.Fprintf(r.w, "%s : %s\n", label, line); err != nil {
			return err
		}
	}
	return nil
}

// jsonJob is the NDJSON shape emitted per job.
type jsonJob struct {
	Host       string   `json:"host"`
	Seq        int      `json:"seq"`
	Occurrence int      `json:"occurrence"`
	Output     []string `json:"output"`
	ExitCode   int      `json:"exit_code"`
	Signal     int      `json:"signal,omitempty"`
	CoreDumped bool     `json:"core_dumped,omitempty"`
	DurationMs int64    `json:"duration_ms"`
	TimedOut   bool     `json:"timed_out,omitempty"`
}

func (r *Renderer) renderJSON(j *executor.Job) error {
	out := jsonJob{
		Host:       j.Host,
		Seq:        j.Seq,
		Occurrence: j.Occurrence,
		Output:     j.Output,
		ExitCode:   j.ExitCode,
		Signal:     j.Signal,
		CoreDumped: j.CoreDumped,
		DurationMs: j.Elapsed().Milliseconds(),
		TimedOut:   j.TimedOut,
	}
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	_, err = fmt.Fprintf(r.w, "%s\n", data)
	return err
}
