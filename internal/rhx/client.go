// Package rhx speaks the Intan RHX controller's TCP interfaces: the
// line-oriented command server for stimulation parameters and run control,
// and the binary waveform server for recorded amplifier data.
package rhx

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// DefaultTimeout bounds command round-trips when the context carries no
// deadline of its own.
const DefaultTimeout = 2 * time.Second

// CommandClient is a persistent client for the RHX command server. Commands
// are newline-terminated `set <chan>.<param> <value>` / `execute <action>`
// lines, each acknowledged with one response line; responses beginning with
// "Error" mark failure.
//
// A single connection carries one in-flight command at a time.
type CommandClient struct {
	addr    string
	timeout time.Duration

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// DialCommand connects to the command server, e.g. "127.0.0.1:5000".
func DialCommand(addr string, timeout time.Duration) (*CommandClient, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, errors.Wrapf(err, "connect to RHX command server at %s", addr)
	}
	return &CommandClient{
		addr:    addr,
		timeout: timeout,
		conn:    conn,
		reader:  bufio.NewReader(conn),
	}, nil
}

// Set issues `set <target>.<parameter> <value>`.
func (c *CommandClient) Set(ctx context.Context, target, parameter, value string) error {
	return c.Send(ctx, fmt.Sprintf("set %s.%s %s", target, parameter, value))
}

// SetGlobal issues `set <parameter> <value>` for controller-wide parameters
// such as runmode.
func (c *CommandClient) SetGlobal(ctx context.Context, parameter, value string) error {
	return c.Send(ctx, fmt.Sprintf("set %s %s", parameter, value))
}

// Execute issues `execute <action>`, e.g. "uploadstimparameters".
func (c *CommandClient) Execute(ctx context.Context, action string) error {
	return c.Send(ctx, "execute "+action)
}

// Send writes one raw command line and waits for its acknowledgement.
func (c *CommandClient) Send(ctx context.Context, command string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return errors.New("command client is closed")
	}

	deadline := c.deadline(ctx)
	if err := c.conn.SetDeadline(deadline); err != nil {
		return errors.WithStack(err)
	}

	if _, err := c.conn.Write([]byte(command + "\n")); err != nil {
		return errors.Wrapf(err, "send %q", command)
	}

	line, err := c.reader.ReadString('\n')
	if err != nil {
		return errors.Wrapf(err, "read acknowledgement for %q", command)
	}
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "Error") {
		return errors.Errorf("command %q rejected: %s", command, line)
	}
	return nil
}

// Close terminates the connection. Safe to call more than once.
func (c *CommandClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return errors.WithStack(err)
}

func (c *CommandClient) deadline(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now().Add(c.timeout)
}
