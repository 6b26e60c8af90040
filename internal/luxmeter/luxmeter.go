package luxmeter

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/ztkent/lux-threshold-meter/internal/tools"
	"github.com/ztkent/lux-threshold-meter/veml7700"
)

//go:embed html/*
var templateFiles embed.FS

var l = tools.Logger

type LuxMeter struct {
	*veml7700.VEML7700
	LuxResultsChan chan LuxResults
	ResultsDB      *sql.DB
	Location       *time.Location
	RecordInterval time.Duration
	Pid            int
	// Identifies this server instance on /id, generated if empty
	InstanceID string

	// jobLock serializes Start and Stop
	jobLock sync.Mutex
	cancel  context.CancelFunc
	jobDone chan struct{}
}

type LuxResults struct {
	Lux             float32
	Raw             uint16
	White           uint16
	Gain            veml7700.Gain
	IntegrationTime veml7700.IntegrationTime
	JobID           string
}

type Conditions struct {
	JobID           string  `json:"jobID"`
	Lux             float64 `json:"lux"`
	Raw             int     `json:"raw"`
	White           int     `json:"white"`
	Gain            string  `json:"gain"`
	IntegrationTime string  `json:"integrationTime"`
	RecordedAt      string  `json:"recordedAt"`
}

const (
	MAX_JOB_DURATION = 8 * time.Hour
	RECORD_INTERVAL  = 30 * time.Second
	DB_PATH          = "luxmeter.db"
)

// Start the sensor, and collect data in a loop
func (m *LuxMeter) Start() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.VEML7700 == nil {
			ServeResponse(w, r, "The sensor is not connected", http.StatusBadRequest)
			return
		}
		m.jobLock.Lock()
		defer m.jobLock.Unlock()
		if m.IsEnabled() {
			ServeResponse(w, r, "The sensor is already started", http.StatusBadRequest)
			return
		}
		// A job that hit MAX_JOB_DURATION may still be shutting the sensor down
		m.endJob()
		if err := m.Enable(); err != nil {
			ServeResponse(w, r, fmt.Sprintf("The sensor failed to start: %s", err), http.StatusInternalServerError)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), MAX_JOB_DURATION)
		done := make(chan struct{})
		m.cancel, m.jobDone = cancel, done

		jobID := uuid.New().String()
		l.WithField("job_id", jobID).Info("It's going to be a bright day!")
		go m.runJob(ctx, jobID, done)

		ServeResponse(w, r, "Lux Reading Started", http.StatusOK)
	}
}

// Cancel the current job and wait for it to exit. Caller holds jobLock.
func (m *LuxMeter) endJob() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.jobDone != nil {
		<-m.jobDone
		m.jobDone = nil
	}
}

func (m *LuxMeter) runJob(ctx context.Context, jobID string, done chan<- struct{}) {
	defer close(done)

	interval := m.RecordInterval
	if interval <= 0 {
		interval = RECORD_INTERVAL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		result, err := m.sample(jobID)
		if errors.Is(err, veml7700.ErrOverflow) {
			l.WithError(err).Warn("Attempting to set new optimal sensor settings")
			if err := m.SetOptimalSettings(); err != nil {
				l.WithError(err).Error("The sensor failed to determine new optimal settings")
			} else {
				timing, gain := m.Settings()
				l.Infof("The sensor has been reconfigured - Gain: %v, Integration Time: %v", gain, timing)
			}
		} else if err != nil {
			l.WithError(err).Error("The sensor failed to get luminosity")
		} else {
			select {
			case m.LuxResultsChan <- result:
			case <-ctx.Done():
			}
		}

		select {
		case <-ctx.Done():
			// Stop disables the sensor itself, only a timed out job shuts it down here
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				l.WithField("job_id", jobID).Info("Job reached its max duration, stopping sensor")
				if err := m.Disable(); err != nil {
					l.WithError(err).Error("The sensor failed to stop")
				}
				return
			}
			l.WithField("job_id", jobID).Info("Job Cancelled")
			return
		case <-ticker.C:
		}
	}
}

func (m *LuxMeter) sample(jobID string) (LuxResults, error) {
	raw, err := m.ReadALS()
	if err != nil {
		return LuxResults{}, err
	}
	timing, gain := m.Settings()
	if raw == veml7700.VEML7700_MAX_COUNT {
		return LuxResults{}, fmt.Errorf("%w: gain %v, integration time %v", veml7700.ErrOverflow, gain, timing)
	}
	white, err := m.ReadWhite()
	if err != nil {
		return LuxResults{}, err
	}
	return LuxResults{
		Lux:             veml7700.LuxFromRaw(timing, gain, raw),
		Raw:             raw,
		White:           white,
		Gain:            gain,
		IntegrationTime: timing,
		JobID:           jobID,
	}, nil
}

// Stop the sensor, and cancel the job context
func (m *LuxMeter) Stop() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.VEML7700 == nil {
			ServeResponse(w, r, "The sensor is not connected", http.StatusBadRequest)
			return
		}
		m.jobLock.Lock()
		defer m.jobLock.Unlock()
		if !m.IsEnabled() {
			ServeResponse(w, r, "The sensor is already stopped", http.StatusBadRequest)
			return
		}

		m.endJob()
		if err := m.Disable(); err != nil {
			ServeResponse(w, r, fmt.Sprintf("The sensor failed to stop: %s", err), http.StatusInternalServerError)
			return
		}

		ServeResponse(w, r, "Lux Reading Stopped", http.StatusOK)
	}
}

// Serve data about the most recent entry saved to the db
func (m *LuxMeter) CurrentConditions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conditions, err := m.getCurrentConditions()
		if errors.Is(err, sql.ErrNoRows) {
			ServeResponse(w, r, "No readings recorded yet", http.StatusNotFound)
			return
		} else if err != nil {
			l.WithError(err).Error("Failed to load current conditions")
			ServeResponse(w, r, err.Error(), http.StatusInternalServerError)
			return
		}

		conditionsData, err := json.Marshal(conditions)
		if err != nil {
			ServeResponse(w, r, err.Error(), http.StatusInternalServerError)
			return
		}
		ServeResponse(w, r, string(conditionsData), http.StatusOK)
	}
}

// Return the most recent entry saved to the db
func (m *LuxMeter) getCurrentConditions() (Conditions, error) {
	conditions := Conditions{}
	row := m.ResultsDB.QueryRow("SELECT job_id, lux, raw, white, gain, integration_time, created_at FROM readings ORDER BY id DESC LIMIT 1")
	err := row.Scan(
		&conditions.JobID,
		&conditions.Lux,
		&conditions.Raw,
		&conditions.White,
		&conditions.Gain,
		&conditions.IntegrationTime,
		&conditions.RecordedAt,
	)
	if err != nil {
		return Conditions{}, err
	}
	return conditions, nil
}

// Populate the response div with a message, or reply with a JSON message
func ServeResponse(w http.ResponseWriter, r *http.Request, message string, status int) {
	if strings.Contains(r.URL.Path, "/api/v1/") {
		writeJSON(w, status, map[string]string{"message": message})
		return
	}

	tmpl, err := parseTemplateFile("html/response.gohtml")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	if err := tmpl.Execute(w, message); err != nil {
		l.WithError(err).Error("Failed to render response")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		l.WithError(err).Error("Failed to encode response")
	}
}

func parseTemplateFile(path string) (*template.Template, error) {
	content, err := templateFiles.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded template: %w", err)
	}
	tmpl, err := template.New(path).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return tmpl, nil
}

// Read from LuxResultsChan, write the results to sqlite
func (m *LuxMeter) MonitorAndRecordResults(ctx context.Context) {
	l.Info("Monitoring for new lux readings...")
	for {
		select {
		case result := <-m.LuxResultsChan:
			if err := m.recordResult(result); err != nil {
				l.WithError(err).WithField("job_id", result.JobID).Error("Failed to record reading")
			}
		case <-ctx.Done():
			return
		}
	}
}

func (m *LuxMeter) recordResult(result LuxResults) error {
	l.WithFields(logrus.Fields{
		"job_id": result.JobID,
		"lux":    result.Lux,
		"raw":    result.Raw,
	}).Debug("New reading")
	if math.IsInf(float64(result.Lux), 0) || math.IsNaN(float64(result.Lux)) {
		return fmt.Errorf("lux is invalid: %v", result.Lux)
	}
	_, err := m.ResultsDB.Exec(
		"INSERT INTO readings (job_id, lux, raw, white, gain, integration_time) VALUES (?, ?, ?, ?, ?, ?)",
		result.JobID,
		result.Lux,
		result.Raw,
		result.White,
		result.Gain.String(),
		result.IntegrationTime.String(),
	)
	return err
}
