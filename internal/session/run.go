package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// RunOptions controls the interactive loop.
type RunOptions struct {
	// Prompt is printed before each line; empty for non-interactive input.
	Prompt string
	// Interrupts cancels the turn in flight each time it fires.
	Interrupts <-chan struct{}
}

// Run reads lines from in and writes replies to out, one turn at a time,
// until EOF, /quit, or ctx ends. A turn finishes or is cancelled before
// the next line is read.
func (s *Session) Run(ctx context.Context, in io.Reader, out io.Writer, opts RunOptions) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		if opts.Prompt != "" {
			fmt.Fprint(out, opts.Prompt)
		}
		if !sc.Scan() {
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		}

		reply, err := s.runTurn(ctx, line, opts.Interrupts)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			fmt.Fprintln(out, UserMessage(err))
			continue
		}
		fmt.Fprintln(out, reply.Text)
	}
}

func (s *Session) runTurn(ctx context.Context, line string, interrupts <-chan struct{}) (Reply, error) {
	tctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	if interrupts != nil {
		go func() {
			select {
			case <-interrupts:
				cancel()
			case <-done:
			}
		}()
	}
	return s.Turn(tctx, line)
}
