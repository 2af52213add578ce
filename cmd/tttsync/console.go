package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/rickgao/tictactoe-sync/internal/model"
	"github.com/rickgao/tictactoe-sync/internal/notify"
	"github.com/rickgao/tictactoe-sync/internal/reconcile"
)

// console writes boards and notices to the terminal. Notices are queued so
// the reconciler's observer path never blocks on the terminal.
type console struct {
	mu  sync.Mutex
	out io.Writer

	notices *notify.Queue[notify.Notice]
	done    chan struct{}
}

func newConsole(out io.Writer) *console {
	c := &console{
		out:     out,
		notices: notify.NewQueue[notify.Notice](16),
		done:    make(chan struct{}),
	}
	go c.printNotices()
	return c
}

// Notify implements notify.Sink.
func (c *console) Notify(n notify.Notice) {
	c.notices.Push(n)
}

// Observe implements reconcile.Observer and redraws the board.
func (c *console) Observe(t reconcile.Transition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, renderGame(t.Next))
}

// Printf writes a line under the console lock.
func (c *console) Printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// Close stops the notice printer after flushing queued notices.
func (c *console) Close() {
	c.notices.Close()
	<-c.done
}

func (c *console) printNotices() {
	defer close(c.done)
	for {
		n, ok := c.notices.Pop()
		if !ok {
			return
		}
		c.Printf("%s\n", formatNotice(n))
	}
}

func formatNotice(n notify.Notice) string {
	switch n.Kind {
	case notify.KindValidation, notify.KindServerError, notify.KindConnectionError:
		return "! " + n.Message
	default:
		return "* " + n.Message
	}
}

// renderGame draws the board with row and column indexes and a status line.
func renderGame(g model.Game) string {
	var b strings.Builder
	b.WriteString("    0   1   2\n")
	for r := 0; r < model.BoardSize; r++ {
		fmt.Fprintf(&b, "%d  ", r)
		for c := 0; c < model.BoardSize; c++ {
			cell := string(g.Board[r][c])
			if cell == "" {
				cell = " "
			}
			b.WriteString(" " + cell + " ")
			if c < model.BoardSize-1 {
				b.WriteString("|")
			}
		}
		b.WriteString("\n")
		if r < model.BoardSize-1 {
			b.WriteString("   ---+---+---\n")
		}
	}
	b.WriteString(statusLine(g))
	return b.String()
}

func statusLine(g model.Game) string {
	switch g.Status {
	case model.StatusWaiting:
		return "waiting for an opponent"
	case model.StatusActive:
		return fmt.Sprintf("%s to move", g.CurrentTurn)
	case model.StatusFinished:
		switch g.WinnerID {
		case "":
			return "finished: draw"
		case g.PlayerX:
			return "finished: X wins"
		case g.PlayerO:
			return "finished: O wins"
		default:
			return "finished: " + g.WinnerID + " wins"
		}
	case model.StatusCancelled:
		return "cancelled"
	default:
		return string(g.Status)
	}
}

// parseMove reads a "row col" line. Commas are accepted as separators.
func parseMove(line string) (row, col int, err error) {
	fields := strings.Fields(strings.ReplaceAll(line, ",", " "))
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("expected \"row col\", got %q", strings.TrimSpace(line))
	}
	row, rerr := strconv.Atoi(fields[0])
	col, cerr := strconv.Atoi(fields[1])
	if rerr != nil || cerr != nil {
		return 0, 0, fmt.Errorf("expected \"row col\", got %q", strings.TrimSpace(line))
	}
	return row, col, nil
}
