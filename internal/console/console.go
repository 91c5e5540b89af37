// Package console renders session events for the operator: a progress
// bar redrawn in place while blocks go out, a colored verdict at the
// end. It is plumbing around the transfer, not part of it.
package console

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

const barWidth = 50

type Sink struct {
	out io.Writer
	// drawing tracks whether the bar line is open and needs a newline
	// before any terminal message.
	drawing bool
}

func NewSink() *Sink {
	return &Sink{out: os.Stdout}
}

func NewSinkWithWriter(out io.Writer) *Sink {
	return &Sink{out: out}
}

func (s *Sink) HandshakeAccepted(filename string) {
	fmt.Fprintf(s.out, "starting transfer of %s\n", filename)
}

func (s *Sink) BlockSent(n, total int) {
	filled := barWidth * n / total
	pct := 100 * n / total

	fmt.Fprintf(s.out, "\r%5d/%d [", n, total)

	for i := 0; i < barWidth; i++ {
		if i < filled {
			fmt.Fprint(s.out, "#")
		} else {
			fmt.Fprint(s.out, "-")
		}
	}

	fmt.Fprintf(s.out, "] %3d%%", pct)
	s.drawing = true
}

func (s *Sink) Completed() {
	s.endBar()
	color.New(color.FgGreen).Fprintln(s.out, "transfer completed, device should now reboot")
}

func (s *Sink) Failed(err error) {
	s.endBar()
	color.New(color.FgRed).Fprintf(s.out, "transfer failed: %s\n", err.Error())
}

func (s *Sink) Cancelled() {
	s.endBar()
	color.New(color.FgYellow).Fprintln(s.out, "transfer cancelled")
}

func (s *Sink) endBar() {
	if s.drawing {
		fmt.Fprintln(s.out)
		s.drawing = false
	}
}
