package storage

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
)

const previewLen = 40

// Dump writes every stored blob as a row of a text table.
func Dump(ctx context.Context, b Backend, w io.Writer) error {
	paths, err := b.List(ctx)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Path", "Bytes", "Content"})
	table.SetAutoWrapText(false)
	for _, p := range paths {
		data, err := b.ReadAll(ctx, p)
		if errors.Is(err, ErrNotFound) {
			// removed between List and ReadAll
			continue
		}
		if err != nil {
			return err
		}
		table.Append([]string{p, strconv.Itoa(len(data)), preview(data)})
	}
	table.Render()
	return nil
}

func preview(data []byte) string {
	s := strings.Map(func(r rune) rune {
		if r < ' ' {
			return '.'
		}
		return r
	}, string(data))
	if len(s) > previewLen {
		s = s[:previewLen] + "..."
	}
	return s
}
