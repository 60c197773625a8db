package audit

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Choice is the operator's answer to an interrupt in deferred mode.
type Choice int

const (
	// ChoiceAuditNow stops the crawl and audits the buffered pages.
	ChoiceAuditNow Choice = iota
	// ChoiceExit aborts the scan without auditing.
	ChoiceExit
)

// String returns the choice name.
func (c Choice) String() string {
	switch c {
	case ChoiceAuditNow:
		return "audit"
	case ChoiceExit:
		return "exit"
	default:
		return fmt.Sprintf("Choice(%d)", int(c))
	}
}

// Prompter asks the operator what to do after an interrupt in deferred
// mode. buffered is the number of pages crawled so far.
type Prompter interface {
	Prompt(ctx context.Context, buffered int) (Choice, error)
}

// StaticPrompter always answers with the same choice. It is the default
// for non-interactive runs.
type StaticPrompter Choice

// Prompt returns the fixed choice.
func (p StaticPrompter) Prompt(_ context.Context, _ int) (Choice, error) {
	return Choice(p), nil
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, buffered int) (Choice, error)

// Prompt calls f.
func (f PrompterFunc) Prompt(ctx context.Context, buffered int) (Choice, error) {
	return f(ctx, buffered)
}

type readResult struct {
	line string
	err  error
}

// LinePrompter asks a y/n question on out and reads the answer from in.
// Any answer starting with 'y' or 'Y' means audit now; anything else,
// including end of input, means exit.
type LinePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewLinePrompter creates a LinePrompter, typically over os.Stdin and
// os.Stderr.
func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{in: bufio.NewReader(in), out: out}
}

// Prompt implements Prompter.
func (p *LinePrompter) Prompt(ctx context.Context, buffered int) (Choice, error) {
	if err := ctx.Err(); err != nil {
		return ChoiceExit, err
	}

	fmt.Fprintln(p.out)
	fmt.Fprintf(p.out, "Site analysis was interrupted after %d page(s), do you want to audit the analyzed pages?\n", buffered)
	fmt.Fprint(p.out, "Audit? ('y' to audit, 'n' to exit) (y/n): ")

	// The read cannot be cancelled, so it runs on its own goroutine and a
	// cancelled ctx abandons it.
	answers := make(chan readResult, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		answers <- readResult{line: line, err: err}
	}()

	var r readResult
	select {
	case <-ctx.Done():
		return ChoiceExit, ctx.Err()
	case r = <-answers:
	}
	if r.err != nil && !errors.Is(r.err, io.EOF) {
		return ChoiceExit, fmt.Errorf("failed to read answer: %w", r.err)
	}

	answer := strings.TrimSpace(r.line)
	if strings.HasPrefix(strings.ToLower(answer), "y") {
		return ChoiceAuditNow, nil
	}
	return ChoiceExit, nil
}
