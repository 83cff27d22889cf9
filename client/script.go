package client

import (
	"bufio"
	"fmt"
	"os"
)

// LoadScript reads the newline-delimited commands of a script file.
func LoadScript(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open script: %w", err)
	}
	defer f.Close()

	var commands []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		commands = append(commands, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("could not read script: %w", err)
	}
	return commands, nil
}
