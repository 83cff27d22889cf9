package workload

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"golang.org/x/exp/rand"
)

// Generator produces client scripts. Each operation opens a file picked
// from a Zipfian distribution, works on it and closes it again, so popular
// files see lock contention between clients.
type Generator struct {
	Files          int     // Number of distinct file names
	Operations     int     // Open/close sequences to generate
	ReadPercentage float64 // Share of read sequences (e.g., 0.8 for 80% reads)
	FailPercentage float64 // Chance of a simulated crash before a sequence
	ZipfS          float64 // Skew of the file choice, must be > 1
	MaxReadBytes   int
	Seed           uint64 // 0 seeds from the clock
}

func New() *Generator {
	return &Generator{
		Files:          8,
		Operations:     100,
		ReadPercentage: 0.5,
		FailPercentage: 0.05,
		ZipfS:          1.01,
		MaxReadBytes:   16,
	}
}

func (g *Generator) FileName(i uint64) string {
	return fmt.Sprintf("file%d", i)
}

// Generate returns the script lines.
func (g *Generator) Generate() []string {
	seed := g.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	r := rand.New(rand.NewSource(seed))

	files := g.Files
	if files < 1 {
		files = 1
	}
	s := g.ZipfS
	if s <= 1 {
		s = 1.01
	}
	zipf := rand.NewZipf(r, s, 1, uint64(files-1))

	maxRead := g.MaxReadBytes
	if maxRead < 1 {
		maxRead = 1
	}

	lines := make([]string, 0, g.Operations*4)
	for i := 0; i < g.Operations; i++ {
		if r.Float64() < g.FailPercentage {
			lines = append(lines, "fail")
		}

		name := g.FileName(zipf.Uint64())
		if r.Float64() < g.ReadPercentage {
			lines = append(lines,
				fmt.Sprintf("open %s read", name),
				fmt.Sprintf("lseek %s 0", name),
				fmt.Sprintf("read %s %d", name, r.Intn(maxRead)+1),
				fmt.Sprintf("close %s", name),
			)
		} else {
			lines = append(lines,
				fmt.Sprintf("open %s write", name),
				fmt.Sprintf("lseek %s %d", name, r.Intn(maxRead)),
				fmt.Sprintf("write %s \"op%d\"", name, i),
				fmt.Sprintf("close %s", name),
			)
		}
	}
	return lines
}

// WriteScript saves lines in the format client.LoadScript reads.
func WriteScript(lines []string, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, line := range lines {
		if _, err := w.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return w.Flush()
}
