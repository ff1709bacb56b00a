package iocli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Stdio ввод/вывод через терминал
type Stdio struct {
	in    *bufio.Reader
	out   io.Writer
	inFd  int
	isTTY bool
}

// NewStdio создает IO поверх os.Stdin и os.Stdout
func NewStdio() IO {
	fd := int(os.Stdin.Fd())
	return &Stdio{
		in:    bufio.NewReader(os.Stdin),
		out:   os.Stdout,
		inFd:  fd,
		isTTY: term.IsTerminal(fd),
	}
}

// newStream используется в тестах и при вводе из pipe
func newStream(in io.Reader, out io.Writer) *Stdio {
	return &Stdio{in: bufio.NewReader(in), out: out}
}

func (s *Stdio) Println(a ...any) {
	_, _ = fmt.Fprintln(s.out, a...)
}

func (s *Stdio) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(s.out, format, a...)
}

func (s *Stdio) Write(p []byte) (int, error) {
	return s.out.Write(p)
}

func (s *Stdio) ReadInput(prompt string) (string, error) {
	s.Printf("%s", prompt)
	input, err := s.in.ReadString('\n')
	if err != nil && (err != io.EOF || input == "") {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// ReadPassword не отображает ввод, если stdin терминал
func (s *Stdio) ReadPassword(prompt string) (string, error) {
	if !s.isTTY {
		return s.ReadInput(prompt)
	}

	s.Printf("%s", prompt)
	pwBytes, err := term.ReadPassword(s.inFd)
	s.Println()
	if err != nil {
		return "", err
	}
	return string(pwBytes), nil
}
