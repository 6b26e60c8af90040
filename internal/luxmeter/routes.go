package luxmeter

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ztkent/lux-threshold-meter/internal/tools"
)

func (m *LuxMeter) DefineRoutes(r chi.Router) {
	// Lux Meter Dashboard Controls, sensor controls stay in-network
	r.Get("/", m.ServeDashboard())
	r.Route("/luxmeter", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(tools.CheckInNetwork)
			r.Get("/start", m.Start())
			r.Get("/stop", m.Stop())
			r.Post("/window", m.SetWindow())
		})
		r.Get("/status", m.ServeSensorStatus())
		r.Get("/current-conditions", m.CurrentConditions())
		r.Get("/graph/correction", m.ServeCorrectionGraph())
		r.Get("/graph/readings", m.ServeReadingsGraph())
	})

	// Lux Meter API, these serve a JSON response
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/threshold", m.ServeThreshold())
		r.Get("/factor", m.ServeConversionFactor())
		r.Get("/correct", m.ServeCorrection())
		r.Get("/table", m.ServeThresholdTable())
		r.Get("/table/{id}", m.ServeStoredThresholdTable())
		r.Get("/current-conditions", m.CurrentConditions())
		r.Group(func(r chi.Router) {
			r.Use(tools.CheckInNetwork)
			r.Get("/start", m.Start())
			r.Get("/stop", m.Stop())
			r.Post("/window", m.SetWindow())
		})
	})

	// Route for service identification
	if m.InstanceID == "" {
		m.InstanceID = uuid.New().String()
	}
	r.Get("/id", func(w http.ResponseWriter, r *http.Request) {
		response := struct {
			ServiceName string `json:"service_name"`
			InstanceID  string `json:"instance_id"`
			Pid         int    `json:"pid"`
		}{
			ServiceName: "Lux Threshold Meter",
			InstanceID:  m.InstanceID,
			Pid:         m.Pid,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(response)
	})
}

// Render panics as a 500 instead of dropping the connection
func HandleServerPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				l.WithField("path", r.URL.Path).Errorf("Recovered from panic: %v", err)
				ServeResponse(w, r, fmt.Sprintf("%v", err), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
