// Package cli runs line oriented interactive modes: prompt with history on terminal,
// plain line-by-line stdin otherwise (pipes, tests, scripts).
package cli

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/mattn/go-isatty"
)

// MainLoop calls exec for every input line until EOF or exec returns false.
func MainLoop(tag string, exec func(line string) bool, complete func(d prompt.Document) []prompt.Suggest) {
	if complete == nil {
		complete = NoSuggest
	}
	if isatty.IsTerminal(os.Stdin.Fd()) {
		for {
			line := prompt.Input(tag+"> ", complete)
			if !exec(strings.TrimSpace(line)) {
				return
			}
		}
	}
	_ = ReadLines(os.Stdin, exec)
}

// ReadLines is non-interactive MainLoop, exported for tests.
func ReadLines(r io.Reader, exec func(line string) bool) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !exec(line) {
			return nil
		}
	}
	return scanner.Err()
}

func NoSuggest(prompt.Document) []prompt.Suggest { return nil }
