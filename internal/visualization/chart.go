package visualization

import (
	"fmt"
	"io"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/nvandessel/crowdsim/internal/epidemic"
)

// WriteSIRChart plots the susceptible, infected and recovered counts of
// history (one tally per tick, starting at tick 0) as a PNG line chart.
func WriteSIRChart(w io.Writer, history []epidemic.Tally) error {
	if len(history) == 0 {
		return fmt.Errorf("empty tally history")
	}
	if len(history) == 1 {
		history = append(history, history[0])
	}

	xs := make([]float64, len(history))
	s := make([]float64, len(history))
	i := make([]float64, len(history))
	r := make([]float64, len(history))
	total := 1
	for n, t := range history {
		xs[n] = float64(n)
		s[n] = float64(t.Susceptible)
		i[n] = float64(t.Infected)
		r[n] = float64(t.Recovered)
		if t.Total() > total {
			total = t.Total()
		}
	}

	graph := chart.Chart{
		Width:  800,
		Height: 400,
		XAxis: chart.XAxis{
			Name:  "tick",
			Style: chart.Style{FontSize: 10.0},
			Range: &chart.ContinuousRange{Min: 0, Max: float64(len(history) - 1)},
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("%d", int(v.(float64)))
			},
		},
		YAxis: chart.YAxis{
			Name:  "agents",
			Style: chart.Style{FontSize: 10.0},
			Range: &chart.ContinuousRange{Min: 0, Max: float64(total)},
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("%d", int(v.(float64)))
			},
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "susceptible",
				XValues: xs,
				YValues: s,
				Style:   chart.Style{StrokeColor: chart.ColorGreen, StrokeWidth: 3.0},
			},
			chart.ContinuousSeries{
				Name:    "infected",
				XValues: xs,
				YValues: i,
				Style:   chart.Style{StrokeColor: chart.ColorRed, StrokeWidth: 3.0},
			},
			chart.ContinuousSeries{
				Name:    "recovered",
				XValues: xs,
				YValues: r,
				Style:   chart.Style{StrokeColor: drawing.Color{R: 255, G: 165, B: 0, A: 255}, StrokeWidth: 3.0},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}

// WriteSIRChartFile writes the chart to path.
func WriteSIRChartFile(path string, history []epidemic.Tally) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteSIRChart(w, history)
	})
}
