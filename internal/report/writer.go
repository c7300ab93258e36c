package report

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss/v2"

	"machdis/internal/ui/colorize"
)

// Writer renders reports as the indented text block:
//
//	0x1000: stp x29, x30, [sp,#-16]!
//	    insn id:     <id>
//	    bytes:       [253, 123, 191, 169]
//	    read regs:   x29, x30, sp
//	    ...
//	    operands: 3
//	        Operand { ... }
type Writer struct {
	w     *bufio.Writer
	color bool

	labelStyle  lipgloss.Style
	symbolStyle lipgloss.Style
}

type WriterOption func(*Writer)

// WithColor highlights the instruction line and styles field labels.
func WithColor(on bool) WriterOption {
	return func(w *Writer) {
		w.color = on
	}
}

func NewWriter(w io.Writer, opts ...WriterOption) *Writer {
	wr := &Writer{
		w:           bufio.NewWriter(w),
		labelStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		symbolStyle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
	}
	for _, opt := range opts {
		opt(wr)
	}
	return wr
}

// Write renders one report and flushes it.
func (w *Writer) Write(r Report) error {
	w.write(r)
	return w.w.Flush()
}

// WriteAll renders every report c yields, then returns c's error.
func (w *Writer) WriteAll(c *Cursor) error {
	for c.Next() {
		w.write(c.Report())
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return c.Err()
}

func (w *Writer) write(r Report) {
	fmt.Fprintln(w.w)
	if r.Symbol != "" {
		fmt.Fprintln(w.w, w.style(w.symbolStyle, r.Symbol+":"))
	}

	line := r.String()
	if w.color {
		line = colorize.InstructionLine(line)
	}
	fmt.Fprintln(w.w, line)

	fields := []struct {
		label string
		value string
	}{
		{"insn id:", strconv.FormatUint(uint64(r.ID), 10)},
		{"bytes:", formatBytes(r.Bytes)},
		{"read regs:", strings.Join(r.RegsRead, ", ")},
		{"write regs:", strings.Join(r.RegsWrite, ", ")},
		{"insn groups:", strings.Join(r.Groups, ", ")},
	}
	for _, f := range fields {
		fmt.Fprintf(w.w, "%4s%s %s\n", "", w.style(w.labelStyle, fmt.Sprintf("%-12s", f.label)), f.value)
	}

	fmt.Fprintf(w.w, "%4s%s %d\n", "", w.style(w.labelStyle, "operands:"), len(r.Operands))
	for _, op := range r.Operands {
		fmt.Fprintf(w.w, "%8s%s\n", "", op)
	}
}

func (w *Writer) style(s lipgloss.Style, text string) string {
	if !w.color {
		return text
	}
	return s.Render(text)
}

// formatBytes renders b as a decimal list: "[31, 32, 3, 213]".
func formatBytes(b []byte) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range b {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.Itoa(int(v)))
	}
	sb.WriteByte(']')
	return sb.String()
}
