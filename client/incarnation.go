package client

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const (
	incarnationFile     = "incarnation_"
	incarnationLockFile = "incarnation_LOCK_"
)

// Incarnation is the crash counter of one machine, kept in a file so it
// survives the client process. Access is serialized with flock(2) on a
// separate lock file, so clients of one machine agree on the value.
type Incarnation struct {
	path     string
	lockPath string
}

func NewIncarnation(dir, machineName string) *Incarnation {
	return &Incarnation{
		path:     filepath.Join(dir, incarnationFile+machineName),
		lockPath: filepath.Join(dir, incarnationLockFile+machineName),
	}
}

func (i *Incarnation) withLock(fn func() error) error {
	f, err := os.OpenFile(i.lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("can't open %s: %w", i.lockPath, err)
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("can't lock %s: %w", i.lockPath, err)
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN)

	return fn()
}

// load reads the counter, creating it at 0 the first time.
func (i *Incarnation) load() (int32, error) {
	data, err := os.ReadFile(i.path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, i.store(0)
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("corrupt incarnation file %s: %w", i.path, err)
	}
	return int32(n), nil
}

func (i *Incarnation) store(n int32) error {
	return os.WriteFile(i.path, []byte(strconv.Itoa(int(n))+"\n"), 0o644)
}

func (i *Incarnation) Current() (int32, error) {
	var n int32
	err := i.withLock(func() error {
		var err error
		n, err = i.load()
		return err
	})
	return n, err
}

// Bump increments the counter and returns the new value.
func (i *Incarnation) Bump() (int32, error) {
	var n int32
	err := i.withLock(func() error {
		var err error
		if n, err = i.load(); err != nil {
			return err
		}
		n++
		return i.store(n)
	})
	return n, err
}
