package capability

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/localgpt/localgpt/internal/event"
	"github.com/localgpt/localgpt/internal/logging"
	"mvdan.cc/sh/v3/shell"
)

// ProcessInfo describes a running launched program.
type ProcessInfo struct {
	PID       int       `json:"pid"`
	Program   string    `json:"program"`
	Arguments string    `json:"arguments,omitempty"`
	Started   time.Time `json:"started"`
}

type process struct {
	info ProcessInfo
	cmd  *exec.Cmd
}

// Launcher starts programs and monitors them in the background, publishing
// their output and termination on the event bus.
type Launcher struct {
	bus *event.Bus

	mu    sync.Mutex
	procs map[int]*process
	wg    sync.WaitGroup
}

// NewLauncher creates a launcher that reports on bus. A nil bus uses the
// default bus.
func NewLauncher(bus *event.Bus) *Launcher {
	if bus == nil {
		bus = event.Default()
	}
	return &Launcher{
		bus:   bus,
		procs: make(map[int]*process),
	}
}

// LaunchProgram starts program. arguments is split into argv with shell
// quoting rules; $VAR references expand from the environment.
func (l *Launcher) LaunchProgram(ctx context.Context, program, arguments string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}
	if program == "" {
		return fmt.Errorf("%w: no program given", ErrLaunchFailed)
	}

	argv, err := shell.Fields(arguments, nil)
	if err != nil {
		return fmt.Errorf("%w: invalid arguments: %v", ErrLaunchFailed, err)
	}

	cmd := exec.Command(program, argv...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}
	// The caller may have given up while the program was starting.
	if err := ctx.Err(); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		logging.Warn().Str("program", program).Err(err).Msg("launch abandoned")
		return fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}

	p := &process{
		info: ProcessInfo{
			PID:       cmd.Process.Pid,
			Program:   program,
			Arguments: arguments,
			Started:   time.Now(),
		},
		cmd: cmd,
	}

	l.mu.Lock()
	l.procs[p.info.PID] = p
	l.mu.Unlock()

	logging.Info().
		Int("pid", p.info.PID).
		Str("program", program).
		Str("arguments", logging.Preview(arguments, 80)).
		Msg("program launched")
	l.bus.Publish(event.Event{
		Type: event.ProgramLaunched,
		Data: event.ProgramData{PID: p.info.PID, Program: program},
	})

	l.wg.Add(1)
	go l.monitor(p, stdout, stderr)

	return nil
}

// monitor forwards output lines and reports termination.
func (l *Launcher) monitor(p *process, stdout, stderr io.Reader) {
	defer l.wg.Done()

	var readers sync.WaitGroup
	readers.Add(2)
	go l.forward(&readers, p.info, "stdout", stdout)
	go l.forward(&readers, p.info, "stderr", stderr)
	readers.Wait()

	err := p.cmd.Wait()

	l.mu.Lock()
	delete(l.procs, p.info.PID)
	l.mu.Unlock()

	data := event.ProgramData{PID: p.info.PID, Program: p.info.Program}
	if p.cmd.ProcessState != nil {
		data.ExitCode = p.cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		data.Error = err.Error()
	}

	logging.Info().
		Int("pid", data.PID).
		Str("program", data.Program).
		Int("exitCode", data.ExitCode).
		Msg("program terminated")
	l.bus.Publish(event.Event{Type: event.ProgramTerminated, Data: data})
}

func (l *Launcher) forward(wg *sync.WaitGroup, info ProcessInfo, stream string, r io.Reader) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		l.bus.Publish(event.Event{
			Type: event.ProgramOutput,
			Data: event.ProgramData{PID: info.PID, Program: info.Program, Stream: stream, Line: line},
		})
	}
}

// Running returns the programs that have not terminated yet, oldest first.
func (l *Launcher) Running() []ProcessInfo {
	l.mu.Lock()
	defer l.mu.Unlock()

	infos := make([]ProcessInfo, 0, len(l.procs))
	for _, p := range l.procs {
		infos = append(infos, p.info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Started.Before(infos[j].Started)
	})
	return infos
}

// Shutdown kills every running program and waits for the monitors to finish
// or ctx to expire.
func (l *Launcher) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	for _, p := range l.procs {
		_ = p.cmd.Process.Kill()
	}
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
