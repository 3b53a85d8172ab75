// Package console reads operator commands line by line and applies them to a
// monitoring session
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/pv/htmon/internal/events"
	"github.com/pv/htmon/internal/monitor"
)

// Controller is the part of monitor.Session the console drives
type Controller interface {
	Connect(address string, baud int) error
	Disconnect() error
	RequestMeasurement() error
	SetPollInterval(seconds int) error
	SelectOutput(dir string) error
	SaveNow() error
	AddEvent(timeText, name, description string) error
	RemoveEvents(indices ...int) error
	Events() []events.Event
	FormatEventTime(e events.Event) string
	Status() monitor.Status
}

const usage = `Commands:
  connect <address> [baud]     open the serial device ("dummy" for the simulator)
  disconnect                   close the serial device
  poll                         request a measurement now
  interval <seconds>           set the poll interval (minimum 5)
  output <dir>                 write CSV files and plots to dir
  save                         flush and rotate output files now
  event <yyyy-MM-dd HH:mm:ss> | <name> | <description>
                               add an event
  events                       list events
  remove <i> [j ...]           remove events by index
  status                       show session status
  help                         show this help
  quit                         stop
`

// ErrQuit is returned by Run after the quit command
var ErrQuit = errors.New("quit requested")

type Console struct {
	ctl         Controller
	defaultBaud int

	mu  sync.Mutex
	out io.Writer
}

func New(ctl Controller, out io.Writer, defaultBaud int) *Console {
	return &Console{ctl: ctl, out: out, defaultBaud: defaultBaud}
}

// Notify prints a user warning. It matches monitor.Notifier.
func (c *Console) Notify(title, text string) {
	c.printf("%s %s\n", title, text)
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// Run executes commands from in until EOF, quit or ctx is done. It returns
// ErrQuit when the operator asked to stop.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)

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
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("read commands: %w", err)
					}
				default:
				}
				return nil
			}
			if err := c.Execute(line); err != nil {
				return err
			}
		}
	}
}

// Execute runs one command line. Failures are printed, not returned; the
// only error is the quit request.
func (c *Console) Execute(line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}

	cmd, rest, _ := strings.Cut(line, " ")
	cmd = strings.ToLower(cmd)
	rest = strings.TrimSpace(rest)
	args := strings.Fields(rest)

	var err error
	switch cmd {
	case "connect":
		err = c.connect(args)
	case "disconnect":
		err = c.ctl.Disconnect()
	case "poll", "update":
		err = c.ctl.RequestMeasurement()
	case "interval":
		err = c.interval(args)
	case "output":
		if rest == "" {
			err = errors.New("usage: output <dir>")
		} else {
			err = c.ctl.SelectOutput(rest)
		}
	case "save":
		err = c.ctl.SaveNow()
	case "event":
		err = c.addEvent(rest)
	case "events":
		c.listEvents()
	case "remove":
		err = c.remove(args)
	case "status":
		c.printStatus()
	case "help":
		c.printf("%s", usage)
	case "quit", "exit":
		return ErrQuit
	default:
		c.printf("unknown command %q\n%s", cmd, usage)
		return nil
	}

	if err != nil {
		c.printf("error: %v\n", err)
	} else if cmd != "events" && cmd != "status" && cmd != "help" {
		c.printf("ok\n")
	}
	return nil
}

func (c *Console) connect(args []string) error {
	if len(args) == 0 || len(args) > 2 {
		return errors.New("usage: connect <address> [baud]")
	}
	baud := c.defaultBaud
	if len(args) == 2 {
		b, err := strconv.Atoi(args[1])
		if err != nil || b <= 0 {
			return fmt.Errorf("invalid baud rate %q", args[1])
		}
		baud = b
	}
	return c.ctl.Connect(args[0], baud)
}

func (c *Console) interval(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: interval <seconds>")
	}
	seconds, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid interval %q", args[0])
	}
	return c.ctl.SetPollInterval(seconds)
}

func (c *Console) addEvent(rest string) error {
	parts := strings.SplitN(rest, "|", 3)
	if len(parts) < 2 {
		return errors.New("usage: event <yyyy-MM-dd HH:mm:ss> | <name> | <description>")
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	name := parts[1]
	if name == "" {
		return errors.New("event name is required")
	}
	var description string
	if len(parts) == 3 {
		description = parts[2]
	}
	return c.ctl.AddEvent(parts[0], name, description)
}

func (c *Console) remove(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: remove <i> [j ...]")
	}
	indices := make([]int, 0, len(args))
	for _, a := range args {
		i, err := strconv.Atoi(a)
		if err != nil {
			return fmt.Errorf("invalid index %q", a)
		}
		indices = append(indices, i)
	}
	return c.ctl.RemoveEvents(indices...)
}

func (c *Console) listEvents() {
	list := c.ctl.Events()
	if len(list) == 0 {
		c.printf("no events\n")
		return
	}
	for i, e := range list {
		c.printf("%3d  %s  %s", i, c.ctl.FormatEventTime(e), e.Name)
		if e.Description != "" {
			c.printf("  (%s)", e.Description)
		}
		c.printf("\n")
	}
}

func (c *Console) printStatus() {
	st := c.ctl.Status()

	address := st.Device.Address
	if address == "" {
		address = "-"
	}
	conn := "disconnected"
	if st.Device.Connected {
		conn = "connected"
	}
	c.printf("device:   %s (%s, %s), %d polls\n", address, conn, st.Device.State, st.Device.Dispatched)
	c.printf("interval: %s\n", st.PollInterval)

	output := st.OutputDir
	if output == "" {
		output = "none"
	}
	c.printf("output:   %s\n", output)
	c.printf("events:   %d\n", st.Events)
	if st.LastError != "" {
		c.printf("error:    %s\n", st.LastError)
	}

	for _, s := range st.Sensors {
		c.printf("sensor %s: %d readings, %d written, T=%.2f C RH=%.2f %%\n",
			s.ID, s.Readings, s.Written, s.Latest.T, s.Latest.RH)
	}
}
