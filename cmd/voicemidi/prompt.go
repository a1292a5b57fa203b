package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
)

// errAborted is returned when input ends before a question is answered.
var errAborted = errors.New("input aborted")

var (
	heading = color.New(color.FgCyan, color.Bold)
	success = color.New(color.FgGreen)
	warning = color.New(color.FgYellow)
	failure = color.New(color.FgRed, color.Bold)
	dim     = color.New(color.Faint)
)

type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

// line prints label and returns the trimmed answer.
func (p *prompter) line(label string) (string, error) {
	fmt.Fprint(p.out, label)
	s, err := p.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && s != "" {
			return strings.TrimSpace(s), nil
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(p.out)
			return "", errAborted
		}
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(s), nil
}

// choose lists options and returns the chosen index. An empty answer picks def.
func (p *prompter) choose(title string, options []string, def int) (int, error) {
	if len(options) == 0 {
		return 0, fmt.Errorf("no choices for %s", title)
	}
	if def < 0 || def >= len(options) {
		def = 0
	}
	heading.Fprintln(p.out, title)
	for i, o := range options {
		marker := " "
		if i == def {
			marker = "*"
		}
		fmt.Fprintf(p.out, " %s %2d: %s\n", marker, i, o)
	}
	for {
		s, err := p.line(fmt.Sprintf("Select [0-%d] (default %d): ", len(options)-1, def))
		if err != nil {
			return 0, err
		}
		if s == "" {
			return def, nil
		}
		n, err := strconv.Atoi(s)
		if err == nil && n >= 0 && n < len(options) {
			return n, nil
		}
		warning.Fprintf(p.out, "Invalid choice %q\n", s)
	}
}

// integer asks for a number in [lo,hi]. An empty answer keeps def.
func (p *prompter) integer(label string, def, lo, hi int) (int, error) {
	for {
		s, err := p.line(fmt.Sprintf("%s [%d-%d] (default %d): ", label, lo, hi, def))
		if err != nil {
			return 0, err
		}
		if s == "" {
			return def, nil
		}
		n, err := strconv.Atoi(s)
		if err == nil && n >= lo && n <= hi {
			return n, nil
		}
		warning.Fprintf(p.out, "Enter a whole number between %d and %d\n", lo, hi)
	}
}

// float asks for a number in [lo,hi]. An empty answer keeps def.
func (p *prompter) float(label string, def, lo, hi float64) (float64, error) {
	for {
		s, err := p.line(fmt.Sprintf("%s [%g-%g] (default %g): ", label, lo, hi, def))
		if err != nil {
			return 0, err
		}
		if s == "" {
			return def, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err == nil && f >= lo && f <= hi {
			return f, nil
		}
		warning.Fprintf(p.out, "Enter a number between %g and %g\n", lo, hi)
	}
}

// confirm asks a yes/no question.
func (p *prompter) confirm(label string, def bool) (bool, error) {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	for {
		s, err := p.line(fmt.Sprintf("%s (%s): ", label, hint))
		if err != nil {
			return false, err
		}
		switch strings.ToLower(s) {
		case "":
			return def, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
	}
}
