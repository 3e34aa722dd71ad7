package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/crystal-mush/profstats/pkg/command"
)

// ConsoleActor is the operator at the server's terminal. Its grants come from
// console_permissions rather than the roster.
type ConsoleActor struct {
	caps command.Capabilities
	mu   sync.Mutex
	out  io.Writer
}

// NewConsoleActor writes command responses to out.
func NewConsoleActor(out io.Writer, perms []string) *ConsoleActor {
	return &ConsoleActor{caps: command.NewCapabilities(perms...), out: out}
}

func (c *ConsoleActor) Name() string                       { return "console" }
func (c *ConsoleActor) Capabilities() command.Capabilities { return c.caps }

func (c *ConsoleActor) Send(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, strings.TrimRight(msg, "\n"))
}

// RunConsole dispatches each line read from in as the console actor until
// in is exhausted or ctx is done.
func RunConsole(ctx context.Context, d *command.Dispatcher, actor *ConsoleActor, in io.Reader) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	log.Printf("Console ready")
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				log.Printf("Console input closed")
				return
			}
			d.DispatchLine(ctx, actor, line)
		}
	}
}
