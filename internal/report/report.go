// Package report turns decoded instructions into per-instruction report
// records and renders them as text.
package report

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"machdis/internal/disasm"
	"machdis/internal/machox"
)

// ErrNameResolution means the decoder could not name a register or group
// id it reported itself.
var ErrNameResolution = errors.New("name resolution")

// Report is everything printed for one instruction.
type Report struct {
	Addr      uint64
	Text      string // mnemonic and operands
	ID        uint32
	Bytes     []byte
	RegsRead  []string
	RegsWrite []string
	Groups    []string
	Operands  []string
	Symbol    string // label when a symbol starts at Addr
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithSymbols labels reports whose address starts a symbol.
func WithSymbols(syms []machox.Symbol) Option {
	return func(r *Reporter) {
		for _, s := range syms {
			if _, ok := r.symbols[s.Addr]; !ok {
				r.symbols[s.Addr] = s.Name
			}
		}
	}
}

// WithLogger sets where the reporter logs where decoding stopped.
func WithLogger(l *log.Logger) Option {
	return func(r *Reporter) {
		r.logger = l
	}
}

// Reporter decodes code regions into reports. It holds no per-run state
// and may be reused.
type Reporter struct {
	dec     disasm.Decoder
	symbols map[uint64]string
	logger  *log.Logger
}

// New returns a Reporter that decodes with d.
func New(d disasm.Decoder, opts ...Option) *Reporter {
	r := &Reporter{
		dec:     d,
		symbols: make(map[uint64]string),
		logger:  log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reports returns a cursor over the instructions in code, which is loaded
// at addr. Nothing is decoded until the first call to Next.
func (r *Reporter) Reports(code []byte, addr uint64) *Cursor {
	return &Cursor{r: r, sweep: disasm.NewSweep(r.dec, code, addr), addr: addr}
}

// Collect drains Reports into a slice.
func (r *Reporter) Collect(code []byte, addr uint64) ([]Report, error) {
	var out []Report
	c := r.Reports(code, addr)
	for c.Next() {
		out = append(out, c.Report())
	}
	return out, c.Err()
}

// Cursor walks a code region one instruction at a time, in address order.
// It cannot be rewound.
type Cursor struct {
	r     *Reporter
	sweep *disasm.Sweep
	addr  uint64
	cur   Report
	err   error
	done  bool
}

// Next decodes the next instruction. It returns false at the end of the
// region, at the first undecodable bytes, or after an error; Err tells
// the last case apart.
func (c *Cursor) Next() bool {
	if c.done {
		return false
	}
	inst, ok := c.sweep.Next()
	if !ok {
		if err := c.sweep.Stopped(); err != nil {
			c.r.logger.Debug("stopping at undecodable bytes",
				"addr", fmt.Sprintf("%#x", c.addr+uint64(c.sweep.Offset())), "err", err)
		}
		c.finish()
		return false
	}

	rep, err := c.r.build(inst)
	if err != nil {
		c.err = err
		c.finish()
		return false
	}
	c.cur = rep
	return true
}

func (c *Cursor) finish() {
	c.done = true
	c.cur = Report{}
}

// Report returns the record produced by the last successful Next.
func (c *Cursor) Report() Report {
	return c.cur
}

// Err returns the error that stopped the cursor, if any. Reaching the
// end of the region or an undecodable tail is not an error.
func (c *Cursor) Err() error {
	return c.err
}

func (r *Reporter) build(inst disasm.Inst) (Report, error) {
	text := inst.Mnemonic
	if inst.OpStr != "" {
		text += " " + inst.OpStr
	}
	rep := Report{
		Addr:   inst.Addr,
		Text:   text,
		ID:     inst.ID,
		Bytes:  inst.Bytes,
		Symbol: r.symbols[inst.Addr],
	}

	var err error
	if rep.RegsRead, err = r.regNames(inst.Addr, inst.RegsRead); err != nil {
		return Report{}, err
	}
	if rep.RegsWrite, err = r.regNames(inst.Addr, inst.RegsWrite); err != nil {
		return Report{}, err
	}
	for _, g := range inst.Groups {
		name, ok := r.dec.GroupName(g)
		if !ok {
			return Report{}, fmt.Errorf("%w: group %d at %#x", ErrNameResolution, g, inst.Addr)
		}
		rep.Groups = append(rep.Groups, name)
	}
	for _, op := range inst.Operands {
		rep.Operands = append(rep.Operands, op.String())
	}
	return rep, nil
}

func (r *Reporter) regNames(addr uint64, ids []disasm.RegID) ([]string, error) {
	var names []string
	for _, id := range ids {
		name, ok := r.dec.RegName(id)
		if !ok {
			return nil, fmt.Errorf("%w: register %d at %#x", ErrNameResolution, id, addr)
		}
		names = append(names, name)
	}
	return names, nil
}

// String is the instruction line: "0x<addr>: <text>".
func (r Report) String() string {
	return fmt.Sprintf("%#x: %s", r.Addr, strings.TrimSpace(r.Text))
}
