package client

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

func SaveMetricsJSON(metrics []Metric, path string) error {
	data, err := json.MarshalIndent(metrics, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// SaveMetricsCSV writes one row per answered request.
func SaveMetricsCSV(metrics []Metric, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Write([]string{"RequestNumber", "Incarnation", "Operation", "ReturnValue", "Retries", "LatencyMs", "TimestampS"})
	for _, m := range metrics {
		w.Write([]string{
			strconv.Itoa(int(m.RequestNumber)),
			strconv.Itoa(int(m.Incarnation)),
			m.Operation,
			strconv.Itoa(int(m.ReturnValue)),
			strconv.Itoa(m.Retries),
			strconv.FormatFloat(float64(m.Latency.Microseconds())/1000, 'f', 3, 64),
			strconv.FormatFloat(m.Timestamp.Seconds(), 'f', 6, 64),
		})
	}
	w.Flush()
	return w.Error()
}

// SaveLatencyPlot renders latency and retries per request; the image format
// follows the file extension.
func SaveLatencyPlot(metrics []Metric, path string) error {
	if len(metrics) == 0 {
		return errors.New("no requests to plot")
	}
	p := plot.New()
	p.Title.Text = "Request latency"
	p.X.Label.Text = "Request"
	p.Y.Label.Text = "Latency (ms) / retries"

	latency := make(plotter.XYs, len(metrics))
	retries := make(plotter.XYs, len(metrics))
	for i, m := range metrics {
		latency[i].X = float64(i + 1)
		latency[i].Y = float64(m.Latency.Microseconds()) / 1000
		retries[i].X = float64(i + 1)
		retries[i].Y = float64(m.Retries)
	}

	line, err := plotter.NewLine(latency)
	if err != nil {
		return err
	}
	points, err := plotter.NewScatter(retries)
	if err != nil {
		return err
	}
	p.Add(line, points)
	p.Legend.Add("latency", line)
	p.Legend.Add("retries", points)

	return p.Save(8*vg.Inch, 4*vg.Inch, path)
}
