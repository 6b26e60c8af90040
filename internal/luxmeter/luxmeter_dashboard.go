package luxmeter

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"github.com/ztkent/lux-threshold-meter/internal/tools"
	"github.com/ztkent/lux-threshold-meter/veml7700"
)

const (
	graphMaxLux  = 120000
	graphLuxStep = 2500
)

// Serve the homepage
func (m *LuxMeter) ServeDashboard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fileContent, err := templateFiles.ReadFile("html/dashboard.html")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		w.Write(fileContent)
	}
}

// Status of the sensor
func (m *LuxMeter) ServeSensorStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tmpl, err := parseTemplateFile("html/status.gohtml")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		type Status struct {
			Connected       bool
			Enabled         bool
			Gain            string
			IntegrationTime string
			Factor          string
		}
		status := Status{}
		if m.VEML7700 != nil {
			status.Connected = true
			timing, gain := m.Settings()
			status.Enabled = m.IsEnabled()
			status.Gain = gain.String()
			status.IntegrationTime = timing.String()
			status.Factor = fmt.Sprintf("%.4f", veml7700.ConversionFactor(timing, gain))
		}

		if err := tmpl.Execute(w, status); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}

// Serve the correction curve and the raw threshold curve of every gain
func (m *LuxMeter) ServeCorrectionGraph() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		it := veml7700.VEML7700_INTEGRATIONTIME_100MS
		if param := r.URL.Query().Get("integration-time"); param != "" {
			var err error
			if it, err = veml7700.ParseIntegrationTime(param); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		var luxAxis []string
		var linear, corrected []opts.LineData
		thresholds := make(map[veml7700.Gain][]opts.LineData, len(veml7700.Gains))
		for lux := float32(0); lux <= graphMaxLux; lux += graphLuxStep {
			luxAxis = append(luxAxis, fmt.Sprintf("%.0f", lux))
			linear = append(linear, opts.LineData{Value: lux})
			corrected = append(corrected, opts.LineData{Value: veml7700.CorrectHighLux(lux)})
			for _, gain := range veml7700.Gains {
				thresholds[gain] = append(thresholds[gain], opts.LineData{Value: veml7700.RawThresholdFor(it, gain, lux)})
			}
		}

		correction := charts.NewLine()
		correction.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeChalk}),
			charts.WithTitleOpts(opts.Title{Title: "High-lux correction"}),
			charts.WithXAxisOpts(opts.XAxis{Name: "Linear lux"}),
			charts.WithYAxisOpts(opts.YAxis{Name: "Lux"}),
			charts.WithTooltipOpts(opts.Tooltip{Show: true, Trigger: "axis"}),
		)
		correction.SetXAxis(luxAxis).
			AddSeries("Linear", linear).
			AddSeries("Corrected", corrected)

		raw := charts.NewLine()
		raw.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeChalk}),
			charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Raw threshold at %v", it)}),
			charts.WithXAxisOpts(opts.XAxis{Name: "Lux"}),
			charts.WithYAxisOpts(opts.YAxis{Name: "Counts", Min: 0, Max: veml7700.VEML7700_MAX_COUNT}),
			charts.WithTooltipOpts(opts.Tooltip{Show: true, Trigger: "axis"}),
		)
		raw.SetXAxis(luxAxis)
		for _, gain := range veml7700.Gains {
			raw.AddSeries("Gain "+gain.String(), thresholds[gain])
		}

		page := components.NewPage()
		page.AddCharts(correction, raw)
		w.Header().Set("Content-Type", "text/html")
		if err := page.Render(w); err != nil {
			l.WithError(err).Error("Failed to render correction graph")
		}
	}
}

// Serve the recorded lux readings for the requested date range
func (m *LuxMeter) ServeReadingsGraph() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startDate, endDate := tools.ParseStartAndEndDate(r, m.location(), time.Now())

		rows, err := m.ResultsDB.Query("SELECT lux, created_at FROM readings WHERE created_at BETWEEN ? AND ? ORDER BY created_at", startDate, endDate)
		if err != nil {
			l.WithError(err).Error("Failed to query readings")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer rows.Close()

		var luxValues []opts.LineData
		var timeValues []string
		for rows.Next() {
			var lux float64
			var createdAt time.Time
			if err := rows.Scan(&lux, &createdAt); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			luxValues = append(luxValues, opts.LineData{Value: lux})
			timeValues = append(timeValues, createdAt.In(m.location()).Format("2006-01-02 15:04:05"))
		}
		if err := rows.Err(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeChalk}),
			charts.WithXAxisOpts(opts.XAxis{Name: "Time"}),
			charts.WithYAxisOpts(opts.YAxis{Name: "Lux", Min: 0}),
			charts.WithTooltipOpts(opts.Tooltip{
				Show:      true,
				Trigger:   "axis",
				TriggerOn: "mousemove",
			}),
			charts.WithToolboxOpts(opts.Toolbox{
				Show: true,
				Feature: &opts.ToolBoxFeature{
					SaveAsImage: &opts.ToolBoxFeatureSaveAsImage{
						Show:  true,
						Title: "Save as Image",
						Name:  "lux-threshold-meter",
					},
				},
			}),
		)
		line.SetXAxis(timeValues).AddSeries("Lux", luxValues)

		page := components.NewPage()
		page.AddCharts(line)
		w.Header().Set("Content-Type", "text/html")
		if err := page.Render(w); err != nil {
			l.WithError(err).Error("Failed to render readings graph")
		}
	}
}

func (m *LuxMeter) location() *time.Location {
	if m.Location == nil {
		return time.UTC
	}
	return m.Location
}
