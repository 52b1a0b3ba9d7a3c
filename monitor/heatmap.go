package monitor

import (
	"fmt"
	"os"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"github.com/hab-telemetry/ukhasx/stats"
)

// WriteHeatmap renders an HTML heatmap of extracted/failed sentence
// counts per callsign, directly adapted from output.PlotHeatmap's
// bucket-then-render shape (there the buckets are IP /16 ranges, here
// they are callsigns).
func WriteHeatmap(counts *stats.Callsigns, path string) error {
	snapshot := counts.Snapshot()

	callsigns := make([]string, 0, len(snapshot))
	for c := range snapshot {
		callsigns = append(callsigns, c)
	}
	sort.Strings(callsigns)

	var heatmapData []opts.HeatMapData
	var maxCount int
	for x, callsign := range callsigns {
		c := snapshot[callsign]
		for y, count := range []int{c.Extracted, c.Failed} {
			if count > maxCount {
				maxCount = count
			}
			heatmapData = append(heatmapData, opts.HeatMapData{
				Value: [3]interface{}{x, y, count},
				Name:  callsign,
			})
		}
	}

	heatmap := charts.NewHeatMap()
	heatmap.SetGlobalOptions(
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:       "Callsign Extraction Heatmap",
			Width:           "180vh",
			Height:          "60vh",
			Theme:           types.ThemeVintage,
			BackgroundColor: "transparent",
		}),
		charts.WithTitleOpts(opts.Title{
			Title: "Extracted vs Failed Sentences by Callsign",
			Left:  "center",
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Trigger: "item",
			Formatter: opts.FuncOpts(`function (params) {
		return params.name + '<br />Count: ' + params.value[2];
	}`),
		}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show: opts.Bool(true),
			Min:  0,
			Max:  float32(maxCount),
			InRange: &opts.VisualMapInRange{
				Color: []string{"#ffff8f", "#ff0000", "#000000"},
			},
			Orient: "vertical",
			Right:  "5%",
			Top:    "middle",
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Name: "callsign",
			Type: "category",
			Data: callsigns,
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name: "outcome",
			Type: "category",
			Data: []string{"extracted", "failed"},
		}),
	)
	heatmap.AddSeries("sentences", heatmapData)

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(heatmap)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("monitor: creating heatmap file %s: %w", path, err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		return fmt.Errorf("monitor: rendering heatmap: %w", err)
	}
	return nil
}
