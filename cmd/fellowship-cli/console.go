package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"unicode"
)

// inputEvent is either a finished line or a single edit to the line being
// typed.
type inputEvent struct {
	line      string
	keystroke bool
}

// console serializes terminal writes from the read goroutine and the input
// loop. In raw mode it keeps the partially typed line at the bottom and
// redraws it under every printed message.
type console struct {
	mu      sync.Mutex
	w       io.Writer
	raw     bool
	partial []rune
}

var con = &console{w: os.Stdout}

func say(format string, args ...any) {
	con.printf(format, args...)
}

func (c *console) setRaw(raw bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raw = raw
	c.partial = nil
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	if !c.raw {
		fmt.Fprintln(c.w, msg)
		return
	}
	// Raw mode turns off output processing, so lines need an explicit \r.
	fmt.Fprintf(c.w, "\r\033[K%s\r\n%s", strings.ReplaceAll(msg, "\n", "\r\n"), string(c.partial))
}

func (c *console) setPartial(line []rune) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.partial = slices.Clone(line)
	fmt.Fprintf(c.w, "\r\033[K%s", string(c.partial))
}

// readKeys edits a line from a terminal in raw mode. Every edit is sent as
// a keystroke event and Enter sends the line. The channel closes on EOF,
// Ctrl-C, or Ctrl-D on an empty line.
func readKeys(r io.Reader, c *console) <-chan inputEvent {
	ch := make(chan inputEvent)
	go func() {
		defer close(ch)
		br := bufio.NewReader(r)
		var buf []rune
		for {
			k, _, err := br.ReadRune()
			if err != nil {
				return
			}
			switch {
			case k == '\r' || k == '\n':
				line := string(buf)
				buf = buf[:0]
				c.setPartial(nil)
				ch <- inputEvent{line: line}
			case k == 0x03, k == 0x04 && len(buf) == 0:
				return
			case k == 0x7f || k == 0x08:
				if len(buf) == 0 {
					continue
				}
				buf = buf[:len(buf)-1]
				c.setPartial(buf)
				ch <- inputEvent{keystroke: true}
			case k == 0x1b:
				skipEscape(br)
			case unicode.IsPrint(k):
				buf = append(buf, k)
				c.setPartial(buf)
				ch <- inputEvent{keystroke: true}
			}
		}
	}()
	return ch
}

// skipEscape drops a CSI sequence such as an arrow key.
func skipEscape(br *bufio.Reader) {
	if b, err := br.ReadByte(); err != nil || b != '[' {
		return
	}
	for {
		b, err := br.ReadByte()
		if err != nil || (b >= 0x40 && b <= 0x7e) {
			return
		}
	}
}

// readLines is the fallback when stdin is not a terminal: whole lines only,
// with no keystrokes to observe.
func readLines(r io.Reader) <-chan inputEvent {
	ch := make(chan inputEvent)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- inputEvent{line: sc.Text()}
		}
	}()
	return ch
}
