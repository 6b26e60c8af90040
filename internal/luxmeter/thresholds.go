package luxmeter

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ztkent/lux-threshold-meter/veml7700"
)

// Lux values used for a threshold table when the request names none
var DefaultTableLux = []float32{100, 500, 1000, 2500, 5000, 10000, 25000, 50000, 100000}

type Threshold struct {
	Gain            string  `json:"gain"`
	IntegrationTime string  `json:"integrationTime"`
	Lux             float32 `json:"lux"`
	Factor          float32 `json:"factor"`
	Corrected       bool    `json:"corrected"`
	Raw             uint16  `json:"raw"`
}

type ThresholdTable struct {
	TableID    string      `json:"tableID"`
	Thresholds []Threshold `json:"thresholds"`
}

type Correction struct {
	Lux       float32 `json:"lux"`
	Corrected float32 `json:"corrected"`
	// Linear lux that corrects to Lux
	Inverse float32 `json:"inverse"`
}

type Window struct {
	LowLux  float32 `json:"lowLux"`
	HighLux float32 `json:"highLux"`
	LowRaw  uint16  `json:"lowRaw"`
	HighRaw uint16  `json:"highRaw"`
}

func NewThreshold(it veml7700.IntegrationTime, gain veml7700.Gain, lux float32) Threshold {
	return Threshold{
		Gain:            gain.String(),
		IntegrationTime: it.String(),
		Lux:             lux,
		Factor:          veml7700.ConversionFactor(it, gain),
		Corrected:       veml7700.NeedsHighLuxCorrection(gain, lux),
		Raw:             veml7700.RawThresholdFor(it, gain, lux),
	}
}

// BuildThresholdTable computes every gain/integration time pair for each lux value.
func BuildThresholdTable(luxValues []float32) []Threshold {
	table := make([]Threshold, 0, len(luxValues)*len(veml7700.Gains)*len(veml7700.IntegrationTimes))
	for _, gain := range veml7700.Gains {
		for _, it := range veml7700.IntegrationTimes {
			for _, lux := range luxValues {
				table = append(table, NewThreshold(it, gain, lux))
			}
		}
	}
	return table
}

// Serve the raw threshold for a single lux trip-point
func (m *LuxMeter) ServeThreshold() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		it, gain, err := m.parseSettings(r)
		if err != nil {
			ServeResponse(w, r, err.Error(), http.StatusBadRequest)
			return
		}
		lux, err := parseLux(r.URL.Query().Get("lux"))
		if err != nil {
			ServeResponse(w, r, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, NewThreshold(it, gain, lux))
	}
}

// Serve the lux per count for a gain/integration time pair
func (m *LuxMeter) ServeConversionFactor() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		it, gain, err := m.parseSettings(r)
		if err != nil {
			ServeResponse(w, r, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"gain":            gain.String(),
			"integrationTime": it.String(),
			"factor":          veml7700.ConversionFactor(it, gain),
		})
	}
}

// Serve the high-lux correction of a linear lux value, and its inverse
func (m *LuxMeter) ServeCorrection() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lux, err := parseLux(r.URL.Query().Get("lux"))
		if err != nil {
			ServeResponse(w, r, err.Error(), http.StatusBadRequest)
			return
		}
		correction := Correction{
			Lux:       lux,
			Corrected: veml7700.CorrectHighLux(lux),
			Inverse:   veml7700.InverseHighLuxCorrection(lux),
		}
		if !finite(correction.Corrected) || !finite(correction.Inverse) {
			ServeResponse(w, r, fmt.Sprintf("lux %v is outside the correction range", lux), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, correction)
	}
}

// Compute a threshold table for every setting, store it, and serve it
func (m *LuxMeter) ServeThresholdTable() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		luxValues := DefaultTableLux
		if raw := r.URL.Query().Get("lux"); raw != "" {
			var err error
			luxValues, err = parseLuxList(raw)
			if err != nil {
				ServeResponse(w, r, err.Error(), http.StatusBadRequest)
				return
			}
		}

		table := ThresholdTable{Thresholds: BuildThresholdTable(luxValues)}
		if m.ResultsDB != nil {
			table.TableID = uuid.New().String()
			if err := m.saveThresholdTable(table); err != nil {
				l.WithError(err).Error("Failed to store threshold table")
				ServeResponse(w, r, err.Error(), http.StatusInternalServerError)
				return
			}
		}
		writeJSON(w, http.StatusOK, table)
	}
}

// Serve a previously stored threshold table
func (m *LuxMeter) ServeStoredThresholdTable() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tableID := chi.URLParam(r, "id")
		if _, err := uuid.Parse(tableID); err != nil {
			ServeResponse(w, r, "Invalid table id", http.StatusBadRequest)
			return
		}
		table, err := m.loadThresholdTable(tableID)
		if err != nil {
			ServeResponse(w, r, err.Error(), http.StatusInternalServerError)
			return
		}
		if len(table.Thresholds) == 0 {
			ServeResponse(w, r, "Threshold table not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, table)
	}
}

// Program the sensor interrupt window from a low/high lux pair
func (m *LuxMeter) SetWindow() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.VEML7700 == nil {
			ServeResponse(w, r, "The sensor is not connected", http.StatusBadRequest)
			return
		}
		r.ParseForm()
		lowLux, err := parseLux(r.FormValue("low"))
		if err != nil {
			ServeResponse(w, r, "low: "+err.Error(), http.StatusBadRequest)
			return
		}
		highLux, err := parseLux(r.FormValue("high"))
		if err != nil {
			ServeResponse(w, r, "high: "+err.Error(), http.StatusBadRequest)
			return
		}

		lowRaw, highRaw, err := m.SetThresholds(lowLux, highLux)
		if err != nil {
			ServeResponse(w, r, err.Error(), http.StatusBadRequest)
			return
		}
		if err := m.SetInterrupts(true, veml7700.VEML7700_PERSISTENCE_1); err != nil {
			ServeResponse(w, r, err.Error(), http.StatusInternalServerError)
			return
		}

		window := Window{LowLux: lowLux, HighLux: highLux, LowRaw: lowRaw, HighRaw: highRaw}
		if m.ResultsDB != nil {
			timing, gain := m.Settings()
			_, err = m.ResultsDB.Exec(
				"INSERT INTO threshold_windows (low_lux, high_lux, low_raw, high_raw, gain, integration_time) VALUES (?, ?, ?, ?, ?, ?)",
				lowLux, highLux, lowRaw, highRaw, gain.String(), timing.String(),
			)
			if err != nil {
				l.WithError(err).Error("Failed to record threshold window")
			}
		}
		l.Infof("Threshold window set: %.2f-%.2f lux (%d-%d counts)", lowLux, highLux, lowRaw, highRaw)
		if strings.Contains(r.URL.Path, "/api/v1/") {
			writeJSON(w, http.StatusOK, window)
			return
		}
		ServeResponse(w, r, fmt.Sprintf("Threshold window set: %.2f-%.2f lux (%d-%d counts)", lowLux, highLux, lowRaw, highRaw), http.StatusOK)
	}
}

func (m *LuxMeter) saveThresholdTable(table ThresholdTable) error {
	tx, err := m.ResultsDB.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare("INSERT INTO threshold_tables (table_id, gain, integration_time, lux, raw, corrected) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, t := range table.Thresholds {
		if _, err := stmt.Exec(table.TableID, t.Gain, t.IntegrationTime, t.Lux, t.Raw, t.Corrected); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (m *LuxMeter) loadThresholdTable(tableID string) (ThresholdTable, error) {
	table := ThresholdTable{TableID: tableID}
	rows, err := m.ResultsDB.Query("SELECT gain, integration_time, lux, raw, corrected FROM threshold_tables WHERE table_id = ? ORDER BY id", tableID)
	if err != nil {
		return table, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			t   Threshold
			lux float64
		)
		if err := rows.Scan(&t.Gain, &t.IntegrationTime, &lux, &t.Raw, &t.Corrected); err != nil {
			return table, err
		}
		t.Lux = float32(lux)
		if gain, err := veml7700.ParseGain(t.Gain); err == nil {
			if it, err := veml7700.ParseIntegrationTime(t.IntegrationTime); err == nil {
				t.Factor = veml7700.ConversionFactor(it, gain)
			}
		}
		table.Thresholds = append(table.Thresholds, t)
	}
	return table, rows.Err()
}

// Gain and integration time from the query, defaulting to the sensor's current settings
func (m *LuxMeter) parseSettings(r *http.Request) (veml7700.IntegrationTime, veml7700.Gain, error) {
	q := r.URL.Query()
	gainParam, itParam := q.Get("gain"), q.Get("integration-time")
	if (gainParam == "" || itParam == "") && m.VEML7700 == nil {
		return 0, 0, fmt.Errorf("gain and integration-time are required when no sensor is connected")
	}

	var (
		gain veml7700.Gain
		it   veml7700.IntegrationTime
		err  error
	)
	if m.VEML7700 != nil {
		it, gain = m.Settings()
	}
	if gainParam != "" {
		if gain, err = veml7700.ParseGain(gainParam); err != nil {
			return 0, 0, err
		}
	}
	if itParam != "" {
		if it, err = veml7700.ParseIntegrationTime(itParam); err != nil {
			return 0, 0, err
		}
	}
	return it, gain, nil
}

func finite(v float32) bool {
	return !math.IsInf(float64(v), 0) && !math.IsNaN(float64(v))
}

func parseLux(s string) (float32, error) {
	if s == "" {
		return 0, fmt.Errorf("lux is required")
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
	if err != nil {
		return 0, fmt.Errorf("invalid lux %q", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, fmt.Errorf("lux must be a finite, non-negative number: %q", s)
	}
	return float32(v), nil
}

func parseLuxList(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	luxValues := make([]float32, 0, len(parts))
	for _, part := range parts {
		lux, err := parseLux(part)
		if err != nil {
			return nil, err
		}
		luxValues = append(luxValues, lux)
	}
	return luxValues, nil
}
