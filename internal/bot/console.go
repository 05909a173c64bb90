package bot

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// ConsoleChat is a development transport: inbound messages are lines of
// the form "user: text" on the reader, outbound ones are printed to the
// writer. No attachments.
type ConsoleChat struct {
	out io.Writer
}

func NewConsoleChat(out io.Writer) *ConsoleChat {
	return &ConsoleChat{out: out}
}

func (c *ConsoleChat) Send(_ context.Context, userID, text string) error {
	_, err := fmt.Fprintf(c.out, "-> %s: %s\n", userID, text)
	return err
}

// Run feeds lines from in into the adapter until EOF or ctx cancellation.
// Lines without a "user:" prefix are attributed to the user "console".
func (c *ConsoleChat) Run(ctx context.Context, in io.Reader, adapter *Adapter) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Text()
		userID, text := "console", line
		if user, rest, ok := strings.Cut(line, ":"); ok && !strings.ContainsAny(user, " \t") {
			userID, text = strings.TrimSpace(user), strings.TrimSpace(rest)
		}
		if text == "" {
			continue
		}
		if err := adapter.HandleMessage(ctx, userID, text, nil); err != nil {
			return err
		}
	}
	return scanner.Err()
}
