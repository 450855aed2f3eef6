package process

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    []string
		wantErr bool
	}{
		{
			name:    "simple command",
			command: "echo hello world",
			want:    []string{"echo", "hello", "world"},
		},
		{
			name:    "double quoted argument",
			command: `sh -c "echo hi"`,
			want:    []string{"sh", "-c", "echo hi"},
		},
		{
			name:    "single quoted argument",
			command: "sh -c 'echo hi'",
			want:    []string{"sh", "-c", "echo hi"},
		},
		{
			name:    "escaped space",
			command: `cat file\ name`,
			want:    []string{"cat", "file name"},
		},
		{
			name:    "extra whitespace",
			command: "  echo   hi  ",
			want:    []string{"echo", "hi"},
		},
		{
			name:    "unclosed quote",
			command: `echo "unclosed`,
			wantErr: true,
		},
		{
			name:    "empty command",
			command: "",
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCommand(tt.command)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseCommand() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseCommand() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("arg %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestRunCapturesStdout(t *testing.T) {
	p := NewProcess("test", "echo frame-data", testLogger())

	var output strings.Builder
	done := make(chan struct{})
	p.SetStdoutConsumer(func(r io.Reader) {
		defer close(done)
		data, _ := io.ReadAll(r)
		output.Write(data)
	})

	if code := p.Run(); code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stdout consumer did not finish")
	}

	if got := strings.TrimSpace(output.String()); got != "frame-data" {
		t.Errorf("stdout = %q, want frame-data", got)
	}
}

func TestRunReturnsExitCode(t *testing.T) {
	p := NewProcess("test", "sh -c 'exit 3'", testLogger())
	if code := p.Run(); code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}
}

func TestRunBadCommand(t *testing.T) {
	p := NewProcess("test", "/nonexistent/binary", testLogger())
	if code := p.Run(); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}

func TestShutdownStopsLongRunningProcess(t *testing.T) {
	p := NewProcess("test", "sleep 30", testLogger())

	done := make(chan int, 1)
	go func() {
		done <- p.Run()
	}()

	time.Sleep(100 * time.Millisecond)
	p.Shutdown()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("process did not stop after Shutdown")
	}
}

func TestRequestRestartSwapsCommand(t *testing.T) {
	p := NewProcess("test", "sleep 30", testLogger())

	done := make(chan int, 1)
	go func() {
		done <- p.RunWithRestart()
	}()

	time.Sleep(100 * time.Millisecond)
	p.RequestRestart("echo restarted")

	// The restart runs the new command, which exits immediately,
	// ending RunWithRestart with reason process-exit.
	select {
	case code := <-done:
		if code != 0 {
			t.Errorf("exit code = %d, want 0", code)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("RunWithRestart did not return after restart to short command")
	}

	if p.GetCommand() != "echo restarted" {
		t.Errorf("command = %q, want echo restarted", p.GetCommand())
	}
}

func TestStderrGoesToLogParser(t *testing.T) {
	p := NewProcess("test", "sh -c 'echo oops 1>&2'", testLogger())

	lines := make(chan string, 10)
	p.SetLogParser(testLogger(), func(line string) (string, string) {
		lines <- line
		return "info", line
	})

	if code := p.Run(); code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	select {
	case line := <-lines:
		if line != "oops" {
			t.Errorf("stderr line = %q, want oops", line)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stderr line never parsed")
	}
}
