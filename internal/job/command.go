// Package job builds runnable job bodies from config declarations.
package job

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/kballard/go-shellquote"

	logx "cronpoll/pkg/logx"
)

// outputTail caps how much captured command output is kept for logs and the
// run journal.
const outputTail = 4 * 1024

// Command compiles a shell-quoted command line into a job body. The split
// happens once here, so a bad quoting error is a registration-time failure
// rather than a per-run one.
func Command(line string, log logx.Logger) (func(ctx context.Context) error, error) {
	argv, err := shellquote.Split(line)
	if err != nil {
		return nil, fmt.Errorf("command %q: %w", line, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("command is empty")
	}

	return func(ctx context.Context) error {
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &out

		err := cmd.Run()
		if err != nil {
			tail := tailOf(out.Bytes())
			if tail != "" {
				log.Debug("command output", logx.String("cmd", argv[0]), logx.String("tail", tail))
				return fmt.Errorf("%s: %w (output: %s)", argv[0], err, tail)
			}
			return fmt.Errorf("%s: %w", argv[0], err)
		}
		return nil
	}, nil
}

func tailOf(b []byte) string {
	if len(b) > outputTail {
		b = b[len(b)-outputTail:]
	}
	return strings.TrimSpace(string(b))
}
