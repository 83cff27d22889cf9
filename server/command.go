package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrMalformed = errors.New("malformed operation")

const (
	CmdOpen  = "open"
	CmdClose = "close"
	CmdRead  = "read"
	CmdWrite = "write"
	CmdLseek = "lseek"
)

const separators = " \t\r\n"

// Command is a parsed operation string.
type Command struct {
	Name     string
	FileName string
	Mode     LockMode // open only
	NumBytes int      // bytes to read, or lseek position
	Message  string   // write only
}

// RequiredLock is the lock mode the caller must hold for the command. For
// open it is the mode being requested.
func (c Command) RequiredLock() LockMode {
	switch c.Name {
	case CmdOpen:
		return c.Mode
	case CmdRead:
		return ReadLock
	case CmdWrite:
		return WriteLock
	default:
		return ReadWriteLock
	}
}

// BypassesModeCheck reports whether the command acts on whatever lock the
// caller holds.
func (c Command) BypassesModeCheck() bool {
	return c.Name == CmdClose || c.Name == CmdLseek
}

func nextToken(s string) (string, string) {
	s = strings.TrimLeft(s, separators)
	if i := strings.IndexAny(s, separators); i >= 0 {
		return s[:i], s[i:]
	}
	return s, ""
}

func malformed(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, a...))
}

// ParseCommand splits an operation such as `write notes "hi there"` into a
// Command. Keywords are case-sensitive.
func ParseCommand(op string) (Command, error) {
	name, rest := nextToken(op)
	if name == "" {
		return Command{}, malformed("missing command")
	}
	file, rest := nextToken(rest)
	if file == "" {
		return Command{}, malformed("missing file name")
	}
	cmd := Command{Name: name, FileName: file}

	switch name {
	case CmdOpen:
		mode, _ := nextToken(rest)
		switch mode {
		case "read":
			cmd.Mode = ReadLock
		case "write":
			cmd.Mode = WriteLock
		case "readwrite":
			cmd.Mode = ReadWriteLock
		case "":
			return Command{}, malformed("missing open mode")
		default:
			return Command{}, malformed("invalid open mode %q", mode)
		}
	case CmdClose:
	case CmdRead:
		n, err := parseNumber(rest, "numBytes")
		if err != nil {
			return Command{}, err
		}
		if n <= 0 {
			return Command{}, malformed("numBytes must be positive, got %d", n)
		}
		cmd.NumBytes = n
	case CmdLseek:
		n, err := parseNumber(rest, "position")
		if err != nil {
			return Command{}, err
		}
		if n < 0 {
			return Command{}, malformed("position must not be negative, got %d", n)
		}
		cmd.NumBytes = n
	case CmdWrite:
		msg, err := parseMessage(rest)
		if err != nil {
			return Command{}, err
		}
		cmd.Message = msg
	default:
		return Command{}, malformed("unknown command %q", name)
	}
	return cmd, nil
}

func parseNumber(rest, field string) (int, error) {
	tok, _ := nextToken(rest)
	if tok == "" {
		return 0, malformed("missing %s", field)
	}
	n, err := strconv.ParseInt(tok, 10, 32)
	if errors.Is(err, strconv.ErrRange) {
		return 0, malformed("%s %s out of range", field, tok)
	}
	if err != nil {
		return 0, malformed("invalid %s %q", field, tok)
	}
	return int(n), nil
}

// parseMessage returns the text between the next pair of double quotes.
func parseMessage(rest string) (string, error) {
	rest = strings.TrimLeft(rest, separators)
	if !strings.HasPrefix(rest, `"`) {
		return "", malformed("message must be quoted")
	}
	end := strings.IndexByte(rest[1:], '"')
	if end < 0 {
		return "", malformed("unterminated message")
	}
	if end == 0 {
		return "", malformed("empty message")
	}
	return rest[1 : 1+end], nil
}
