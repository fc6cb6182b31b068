package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"taskbot/internal/domain"
)

// CLI implements domain.Transport for interactive terminal chat.
type CLI struct {
	logger *slog.Logger
	in     io.Reader
	out    io.Writer
	nextID atomic.Int64
}

type CLIConfig struct {
	Logger *slog.Logger
	In     io.Reader
	Out    io.Writer
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	return &CLI{
		logger: cfg.Logger,
		in:     cfg.In,
		out:    cfg.Out,
	}
}

func (c *CLI) Name() string   { return "cli" }
func (c *CLI) SelfID() string { return "" }

// Start runs the interactive REPL and blocks until context is cancelled
// or stdin hits EOF.
func (c *CLI) Start(ctx context.Context, bus domain.MessageBus) error {
	_, _ = fmt.Fprintln(c.out, "Task bot CLI. Type your message and press Enter. Type /quit to exit.")
	_, _ = fmt.Fprint(c.out, "You> ")

	scanner := bufio.NewScanner(c.in)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return nil // EOF
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			_, _ = fmt.Fprint(c.out, "You> ")
			continue
		}
		if line == "/quit" || line == "/exit" || line == "/q" {
			c.logger.Info("user requested quit")
			return nil
		}

		bus.Publish(domain.InboundMessage{
			Channel:   "cli",
			ChatID:    "direct",
			SenderID:  "user",
			Content:   line,
			Timestamp: time.Now(),
		})
	}
}

// Stop is a no-op for CLI (we exit when Start returns).
func (c *CLI) Stop() error { return nil }

func (c *CLI) Send(ctx context.Context, chatID string, content string) (string, error) {
	_, _ = fmt.Fprintln(c.out)
	_, _ = fmt.Fprintln(c.out, content)
	_, _ = fmt.Fprint(c.out, "You> ")
	return "cli-" + strconv.FormatInt(c.nextID.Add(1), 10), nil
}
