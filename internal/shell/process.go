package shell

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
)

type execProcess struct {
	cmd    *exec.Cmd
	stdout *os.File
}

// CommandLauncher starts name with args as the server. extraEnv is appended
// to the shell's own environment.
func CommandLauncher(name string, args []string, dir string, extraEnv ...string) Launcher {
	return func(ctx context.Context) (Process, error) {
		// our own pipe, so cmd.Wait never closes it under the output reader;
		// the reader closes it on EOF
		r, w, err := os.Pipe()
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
		}

		cmd := exec.Command(name, args...)
		cmd.Dir = dir
		cmd.Stdout = w
		cmd.Stderr = os.Stderr
		cmd.Env = append(os.Environ(), extraEnv...)

		if err := cmd.Start(); err != nil {
			r.Close()
			w.Close()
			return nil, fmt.Errorf("failed to start %s: %w", name, err)
		}
		w.Close()

		return &execProcess{cmd: cmd, stdout: r}, nil
	}
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Stdout() io.Reader {
	return p.stdout
}

func (p *execProcess) Wait() error {
	return p.cmd.Wait()
}

func (p *execProcess) Terminate() error {
	return p.cmd.Process.Signal(syscall.SIGTERM)
}

func (p *execProcess) Kill() error {
	return p.cmd.Process.Kill()
}
