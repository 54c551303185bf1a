package cli

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Printer separates command results, written to STDOUT, from usage text and flag errors, written to STDERR.
// This keeps results like a schema listing safe to pipe.
type Printer struct {
	mux sync.Mutex
	out io.Writer
	err io.Writer
}

func NewPrinter() *Printer {
	return &Printer{out: os.Stdout, err: os.Stderr}
}

// Redirect sends both results and usage text to writer.
func (p *Printer) Redirect(writer io.Writer) {
	p.mux.Lock()
	defer p.mux.Unlock()
	p.out = writer
	p.err = writer
}

// Write implements [io.Writer] for command results.
func (p *Printer) Write(data []byte) (int, error) {
	p.mux.Lock()
	defer p.mux.Unlock()
	return p.out.Write(data)
}

func (p *Printer) Print(msg ...any) {
	_, _ = fmt.Fprint(p, msg...)
}

func (p *Printer) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p, format, args...)
}

func (p *Printer) Println(msg ...any) {
	_, _ = fmt.Fprintln(p, msg...)
}

// Diagnostics returns the writer for usage text and flag errors.
func (p *Printer) Diagnostics() io.Writer {
	return diagWriter{p}
}

type diagWriter struct {
	p *Printer
}

func (w diagWriter) Write(data []byte) (int, error) {
	w.p.mux.Lock()
	defer w.p.mux.Unlock()
	return w.p.err.Write(data)
}
