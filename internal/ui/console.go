package ui

import (
	"bufio"
	"io"
	"sync"
)

// InputSource lends its input to one prompt at a time. The release func
// hands the input back.
type InputSource interface {
	Acquire() (io.Reader, func())
}

// Console shares one line-buffered input between a command loop and
// prompts. While a prompt holds it, typed lines go to the prompt;
// otherwise they go to Commands.
type Console struct {
	in io.Reader

	once sync.Once
	cmdR *io.PipeReader
	cmdW *io.PipeWriter

	mu     sync.Mutex
	prompt *promptInput
}

var _ InputSource = (*Console)(nil)

func NewConsole(in io.Reader) *Console {
	r, w := io.Pipe()
	return &Console{in: in, cmdR: r, cmdW: w}
}

func (c *Console) start() {
	c.once.Do(func() { go c.pump() })
}

// Commands is the stream of lines not claimed by a prompt.
func (c *Console) Commands() io.Reader {
	c.start()
	return c.cmdR
}

// Acquire routes input to the returned reader until release is called.
// After release the reader reports io.EOF.
func (c *Console) Acquire() (io.Reader, func()) {
	c.start()
	p := &promptInput{data: make(chan []byte, 16), done: make(chan struct{})}

	c.mu.Lock()
	prev := c.prompt
	c.prompt = p
	c.mu.Unlock()
	if prev != nil {
		prev.close()
	}

	return p, func() {
		c.mu.Lock()
		if c.prompt == p {
			c.prompt = nil
		}
		c.mu.Unlock()
		p.close()
	}
}

func (c *Console) pump() {
	r := bufio.NewReader(c.in)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			c.route(line)
		}
		if err != nil {
			c.mu.Lock()
			p := c.prompt
			c.mu.Unlock()
			if p != nil {
				p.close()
			}
			c.cmdW.Close()
			return
		}
	}
}

func (c *Console) route(line string) {
	c.mu.Lock()
	p := c.prompt
	c.mu.Unlock()
	if p != nil && p.offer(line) {
		return
	}
	c.cmdW.Write([]byte(line))
}

type promptInput struct {
	data chan []byte
	done chan struct{}
	once sync.Once
	buf  []byte
}

func (p *promptInput) offer(line string) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.data <- []byte(line):
		return true
	case <-p.done:
		return false
	}
}

func (p *promptInput) Read(b []byte) (int, error) {
	if len(p.buf) == 0 {
		select {
		case d := <-p.data:
			p.buf = d
		case <-p.done:
			return 0, io.EOF
		}
	}
	n := copy(b, p.buf)
	p.buf = p.buf[n:]
	return n, nil
}

func (p *promptInput) close() {
	p.once.Do(func() { close(p.done) })
}
