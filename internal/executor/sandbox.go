package executor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/localgpt/localgpt/internal/logging"
	"mvdan.cc/sh/v3/syntax"
)

// Sandbox runs Python code inside a dedicated virtual environment, creating
// it on first use.
type Sandbox struct {
	dir    string
	python string

	// serialises venv creation and pip installs
	mu sync.Mutex
}

// NewSandbox creates a sandbox rooted at dir. python is the interpreter used
// to create the environment.
func NewSandbox(dir, python string) *Sandbox {
	if python == "" {
		python = "python3"
	}
	return &Sandbox{dir: dir, python: python}
}

// Interpreter returns the path of the environment's python executable.
func (s *Sandbox) Interpreter() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(s.dir, "Scripts", "python.exe")
	}
	return filepath.Join(s.dir, "bin", "python")
}

// Run installs packages and executes code, returning the captured streams.
// A non-zero exit of the code is not an error; its stderr tells the story.
func (s *Sandbox) Run(ctx context.Context, packages []string, code string) (stdout, stderr string, err error) {
	if err := s.prepare(ctx, packages); err != nil {
		return "", "", err
	}

	f, err := os.CreateTemp(s.dir, "code-*.py")
	if err != nil {
		return "", "", fmt.Errorf("write code: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString(code); err != nil {
		f.Close()
		return "", "", fmt.Errorf("write code: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", "", fmt.Errorf("write code: %w", err)
	}

	var out, errOut bytes.Buffer
	cmd := exec.CommandContext(ctx, s.Interpreter(), f.Name())
	cmd.Dir = s.dir
	cmd.Stdout = &out
	cmd.Stderr = &errOut

	runErr := cmd.Run()
	if ctx.Err() != nil {
		return out.String(), errOut.String(), fmt.Errorf("code execution interrupted: %w", ctx.Err())
	}
	if runErr != nil {
		if _, ok := runErr.(*exec.ExitError); !ok {
			return "", "", fmt.Errorf("run %s: %w", commandLine(cmd.Args), runErr)
		}
	}
	return out.String(), errOut.String(), nil
}

// prepare creates the environment if needed and installs packages.
func (s *Sandbox) prepare(ctx context.Context, packages []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.Interpreter()); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(s.dir), 0755); err != nil {
			return fmt.Errorf("create virtual environment: %w", err)
		}
		if err := s.run(ctx, s.python, "-m", "venv", s.dir); err != nil {
			return fmt.Errorf("create virtual environment: %w", err)
		}
		logging.Info().Str("dir", s.dir).Msg("virtual environment created")
	}

	if len(packages) == 0 {
		return nil
	}
	args := append([]string{"-m", "pip", "install", "--quiet"}, packages...)
	if err := s.run(ctx, s.Interpreter(), args...); err != nil {
		return fmt.Errorf("install packages: %w", err)
	}
	return nil
}

func (s *Sandbox) run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	logging.Debug().Str("cmd", commandLine(cmd.Args)).Err(err).Msg("sandbox setup")
	if err != nil {
		msg := strings.TrimSpace(string(output))
		if msg == "" {
			return err
		}
		return fmt.Errorf("%w: %s", err, logging.Preview(msg, 500))
	}
	return nil
}

// commandLine renders argv as a shell-quoted command for messages.
func commandLine(argv []string) string {
	quoted := make([]string, len(argv))
	for i, arg := range argv {
		q, err := syntax.Quote(arg, syntax.LangBash)
		if err != nil {
			q = arg
		}
		quoted[i] = q
	}
	return strings.Join(quoted, " ")
}
