// Package executor fans one remote command out to many hosts as
// concurrent subprocesses and collects each job's output and status.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/codexnull/allssh/internal/command"
	"github.com/codexnull/allssh/internal/errdefs"
	"github.com/codexnull/allssh/internal/logging"
)

// Markers appended to the output of jobs that never finished on their own.
const (
	timeoutMarker = "*** terminated by run timeout ***"
	cancelMarker  = "*** terminated by cancellation ***"
)

// Config holds orchestrator configuration.
type Config struct {
	Client      string        // remote-execution client binary
	User        string        // optional alternate remote user
	Insecure    bool          // relax host key checking
	Placeholder string        // hostname placeholder in the command text
	Timeout     time.Duration // global run timeout, 0 for none
	OutputDir   string        // when set, redirect each job to a per-host file
}

// Job is the runtime record of one spawned remote-command occurrence.
// Only the orchestrator's collection loop mutates a Job after spawn.
type Job struct {
	Host       string
	Seq        int // spawn sequence number, 0-based across the whole run
	Occurrence int // per-host occurrence index, 0-based
	Argv       []string
	Pid        int
	Start      time.Time
	End        time.Time
	Output     []string
	ExitCode   int
	Signal     int
	CoreDumped bool
	TimedOut   bool
}

// Elapsed returns the job's wall-clock duration.
func (j *Job) Elapsed() time.Duration {
	if j.End.IsZero() {
		return 0
	}
	return j.End.Sub(j.Start)
}

// RunResult is the outcome of one fan-out run.
type RunResult struct {
	Jobs      []*Job // spawn order
	Completed []*Job // completion order
	Aggregate int    // first nonzero exit code, -1 on timeout, else 0
	TimedOut  bool
}

// Orchestrator spawns and collects remote-command jobs.
type Orchestrator struct {
	cfg     Config
	builder *command.Builder
	logger  *logging.Logger
	stream  func(*Job)
}

// New creates an orchestrator.
func New(cfg Config, logger *logging.Logger) *Orchestrator {
	builder := command.NewBuilder(cfg.Client)
	builder.User = cfg.User
	builder.Insecure = cfg.Insecure
	if cfg.Placeholder != "" {
		builder.Placeholder = cfg.Placeholder
	}
	return &Orchestrator{cfg: cfg, builder: builder, logger: logger}
}

// OnComplete registers a callback invoked, in completion order, as each
// job's final status is recorded. Used for no-wait streaming.
func (o *Orchestrator) OnComplete(fn func(*Job)) {
	o.stream = fn
}

// Plan builds the jobs for a run without spawning anything.
func (o *Orchestrator) Plan(commandText string, hosts []string) ([]*Job, error) {
	jobs := make([]*Job, 0, len(hosts))
	occurrences := make(map[string]int, len(hosts))

	for seq, host := range hosts {
		occ := occurrences[host]
		occurrences[host] = occ + 1

		text, err := o.builder.Render(commandText, command.Context{Host: host, Seq: seq, Occurrence: occ})
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, &Job{
			Host:       host,
			Seq:        seq,
			Occurrence: occ,
			Argv:       o.builder.Argv(host, text),
		})
	}
	return jobs, nil
}

// lockedBuffer is the merged stdout/stderr sink for one job. The child's
// copier goroutines write it while the collection loop may snapshot it,
// so every access takes the mutex.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := strings.TrimSuffix(b.buf.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// runner pairs a job with its live process state.
type runner struct {
	job  *Job
	cmd  *exec.Cmd
	buf  *lockedBuffer
	file *os.File
	done bool
}

type waitResult struct {
	idx int
	err error
}

// Run executes commandText against every host concurrently and collects
// the results. All spawns happen before any job is awaited; spawn order
// follows hosts exactly.
func (o *Orchestrator) Run(ctx context.Context, commandText string, hosts []string) (*RunResult, error) {
	jobs, err := o.Plan(commandText, hosts)
	if err != nil {
		return nil, err
	}

	runners, err := o.spawnAll(jobs)
	if err != nil {
		return nil, err
	}

	return o.collect(ctx, jobs, runners), nil
}

// spawnAll starts every job's process. A single failure aborts the run:
// already-started children are interrupted and reaped before returning.
func (o *Orchestrator) spawnAll(jobs []*Job) ([]*runner, error) {
	runners := make([]*runner, 0, len(jobs))

	for _, job := range jobs {
		r := &runner{job: job}
		r.cmd = exec.Command(job.Argv[0], job.Argv[1:]...)
		setupProcessGroup(r.cmd)

		if o.cfg.OutputDir != "" {
			f, err := os.Create(filepath.Join(o.cfg.OutputDir, outputFileName(job)))
			if err != nil {
				o.abortSpawned(runners)
				return nil, &errdefs.SpawnFailure{Host: job.Host, Err: err}
			}
			r.file = f
			r.cmd.Stdout = f
			r.cmd.Stderr = f
		} else {
			r.buf = &lockedBuffer{}
			r.cmd.Stdout = r.buf
			r.cmd.Stderr = r.buf
		}

		job.Start = time.Now()
		if err := r.cmd.Start(); err != nil {
			if r.file != nil {
				r.file.Close()
			}
			o.abortSpawned(runners)
			return nil, &errdefs.SpawnFailure{Host: job.Host, Err: err}
		}
		job.Pid = r.cmd.Process.Pid

		if o.logger != nil {
			o.logger.LogSpawn(job.Host, job.Seq, job.Pid)
		}
		runners = append(runners, r)
	}

	return runners, nil
}

// abortSpawned interrupts and reaps children started before a spawn
// failure. Partial fan-out is not a supported state.
func (o *Orchestrator) abortSpawned(runners []*runner) {
	for _, r := range runners {
		interruptProcess(r.cmd)
	}
	for _, r := range runners {
		_ = r.cmd.Wait()
		if r.file != nil {
			r.file.Close()
		}
	}
}

// collect waits for completions, applies per-job status, and derives the
// aggregate exit code. When the run timer fires, every still-pending job
// is interrupted and marked without waiting for its natural exit.
func (o *Orchestrator) collect(ctx context.Context, jobs []*Job, runners []*runner) *RunResult {
	start := time.Now()
	result := &RunResult{Jobs: jobs}

	// Buffered to the full job count so abandoned wait goroutines can
	// still deliver and exit after a timeout.
	done := make(chan waitResult, len(runners))
	for i, r := range runners {
		i, r := i, r
		go func() {
			err := r.cmd.Wait()
			if r.file != nil {
				r.file.Close()
			}
			done <- waitResult{idx: i, err: err}
		}()
	}

	var timerC <-chan time.Time
	if o.cfg.Timeout > 0 {
		timer := time.NewTimer(o.cfg.Timeout)
		defer timer.Stop()
		timerC = timer.C
	}

	pending := len(runners)
	for pending > 0 {
		select {
		case res := <-done:
			r := runners[res.idx]
			if r.done {
				continue
			}
			r.done = true
			pending--
			o.finishJob(result, r, res.err)

		case <-timerC:
			result.TimedOut = true
			o.interruptPending(result, runners, pending, timeoutMarker)
			pending = 0

		case <-ctx.Done():
			result.TimedOut = true
			o.interruptPending(result, runners, pending, cancelMarker)
			pending = 0
		}
	}

	if result.TimedOut && result.Aggregate == 0 {
		result.Aggregate = -1
	}

	if o.logger != nil {
		failed := 0
		for _, j := range result.Completed {
			if j.ExitCode != 0 {
				failed++
			}
		}
		o.logger.LogRunSummary(len(result.Completed), failed, result.Aggregate, time.Since(start))
	}
	return result
}

// finishJob records one naturally-completed job.
func (o *Orchestrator) finishJob(result *RunResult, r *runner, waitErr error) {
	job := r.job
	job.End = time.Now()
	applyStatus(job, waitErr)
	if r.buf != nil {
		job.Output = r.buf.Lines()
	}

	if result.Aggregate == 0 && job.ExitCode != 0 {
		result.Aggregate = job.ExitCode
	}
	result.Completed = append(result.Completed, job)

	if o.logger != nil {
		o.logger.LogJobDone(job.Host, job.Seq, job.ExitCode, job.Signal, job.Elapsed())
	}
	if o.stream != nil {
		o.stream(job)
	}
}

// interruptPending signals every not-yet-completed job and marks it as
// timed out. Jobs that already completed keep their real status.
func (o *Orchestrator) interruptPending(result *RunResult, runners []*runner, pending int, marker string) {
	if o.logger != nil {
		o.logger.LogTimeout(pending)
	}

	for _, r := range runners {
		if r.done {
			continue
		}
		r.done = true

		interruptProcess(r.cmd)

		job := r.job
		job.End = time.Now()
		job.ExitCode = -1
		job.TimedOut = true
		if r.buf != nil {
			job.Output = append(r.buf.Lines(), marker)
		} else {
			job.Output = []string{marker}
		}

		result.Completed = append(result.Completed, job)
		if o.stream != nil {
			o.stream(job)
		}
	}
}

// outputFileName names a job's per-host output file. Repeat occurrences
// get an incrementing suffix so they do not overwrite each other.
func outputFileName(job *Job) string {
	if job.Occurrence == 0 {
		return job.Host
	}
	return job.Host + "." + strconv.Itoa(job.Occurrence)
}

// applyStatus derives the job's exit semantics from the process wait
// outcome. Exit code is only meaningful when termination was not signal
// induced, but both fields are always populated.
func applyStatus(job *Job, waitErr error) {
	if waitErr == nil {
		job.ExitCode = 0
		return
	}
	if ee, ok := waitErr.(*exec.ExitError); ok {
		code, sig, core := decodeWaitStatus(ee)
		job.ExitCode = code
		job.Signal = sig
		job.CoreDumped = core
		return
	}
	// I/O errors around an otherwise-finished process; surface them in
	// the job output rather than losing them.
	job.ExitCode = -1
	job.Output = append(job.Output, fmt.Sprintf("*** wait failed: %v ***", waitErr))
}
