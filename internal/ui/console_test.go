package ui

import (
	"bufio"
	"io"
	"testing"
	"time"
)

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	got := make(chan string, 1)
	go func() {
		line, _ := r.ReadString('\n')
		got <- line
	}()
	select {
	case line := <-got:
		return line
	case <-time.After(2 * time.Second):
		t.Fatal("timed out reading a line")
		return ""
	}
}

func TestConsoleRoutesLines(t *testing.T) {
	in, typed := io.Pipe()
	defer typed.Close()
	c := NewConsole(in)
	cmds := bufio.NewReader(c.Commands())

	go typed.Write([]byte("chat hi\n"))
	if got := readLine(t, cmds); got != "chat hi\n" {
		t.Fatalf("command = %q", got)
	}

	prompt, release := c.Acquire()
	go typed.Write([]byte("y\n"))
	if got := readLine(t, bufio.NewReader(prompt)); got != "y\n" {
		t.Fatalf("prompt read %q", got)
	}

	release()
	if n, err := prompt.Read(make([]byte, 8)); n != 0 || err != io.EOF {
		t.Fatalf("Read after release = %d, %v, want EOF", n, err)
	}

	go typed.Write([]byte("disconnect\n"))
	if got := readLine(t, cmds); got != "disconnect\n" {
		t.Fatalf("command after release = %q", got)
	}
}

func TestConsoleClosesOnEOF(t *testing.T) {
	in, typed := io.Pipe()
	c := NewConsole(in)
	prompt, release := c.Acquire()
	defer release()

	typed.Close()

	done := make(chan error, 1)
	go func() {
		_, err := prompt.Read(make([]byte, 8))
		done <- err
	}()
	select {
	case err := <-done:
		if err != io.EOF {
			t.Fatalf("prompt Read = %v, want EOF", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("prompt still blocked after input closed")
	}
	if _, err := c.Commands().Read(make([]byte, 8)); err != io.EOF {
		t.Fatalf("Commands Read = %v, want EOF", err)
	}
}
