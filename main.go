package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/ztkent/lux-threshold-meter/internal/luxmeter"
	"github.com/ztkent/lux-threshold-meter/internal/tools"
	"github.com/ztkent/lux-threshold-meter/veml7700"
)

/*
	This is the primary entry point for the Lux Threshold Meter application.
	It should be running at startup, on a Raspberry Pi, with the VEML7700 sensor connected.
	Without a sensor the threshold calculator endpoints still serve.
*/

func main() {
	l := tools.Logger
	pid := os.Getpid()
	l.Infof("LuxThresholdMeter [%d]", pid)

	if logFile, err := tools.SetupLogFile(l, "luxmeter.log"); err != nil {
		l.WithError(err).Warn("Failed to open log file, logging to stdout only")
	} else {
		defer logFile.Close()
	}

	veml7700.SetLogger(l)

	gain, err := veml7700.ParseGain(getEnv("SENSOR_GAIN", "1/8"))
	if err != nil {
		l.WithError(err).Fatal("Invalid SENSOR_GAIN")
	}
	timing, err := veml7700.ParseIntegrationTime(getEnv("SENSOR_INTEGRATION_TIME", "100ms"))
	if err != nil {
		l.WithError(err).Fatal("Invalid SENSOR_INTEGRATION_TIME")
	}

	// connect to the lux sensor, the calculator works without it
	device, err := veml7700.NewVEML7700(gain, timing, os.Getenv("I2C_BUS"))
	if err != nil {
		l.WithError(err).Warn("Failed to connect to the VEML7700 sensor")
		device = nil
	} else {
		defer device.Close()
	}

	// connect to the sqlite database
	dbPath := getEnv("DB_PATH", luxmeter.DB_PATH)
	db, err := tools.ConnectSqlite(dbPath)
	if err != nil {
		// Unlike connecting to the sensor, this should always work.
		l.WithError(err).WithField("db_path", dbPath).Fatal("Failed to connect to the sqlite database")
	}
	defer db.Close()

	meter := &luxmeter.LuxMeter{
		VEML7700:       device,
		ResultsDB:      db,
		LuxResultsChan: make(chan luxmeter.LuxResults),
		Location:       time.Local,
		Pid:            pid,
		InstanceID:     uuid.New().String(),
	}

	// Listen for any result messages from our jobs, record them in sqlite
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go meter.MonitorAndRecordResults(ctx)

	// Initialize router
	r := chi.NewRouter()
	// Log requests and recover from panics
	r.Use(middleware.Logger)
	r.Use(luxmeter.HandleServerPanic)
	meter.DefineRoutes(r)

	if os.Getenv("SSL") == "true" {
		// Generate a self-signed certificate if one doesn't exist
		certPath, keyPath := "cert.pem", "key.pem"
		if err := tools.EnsureCertificate(certPath, keyPath); err != nil {
			l.WithError(err).Fatal("Failed to prepare certificate")
		}

		port := getEnv("PORT", "443")
		l.Infof("Starting HTTPS server on port %s", port)
		err = http.ListenAndServeTLS(":"+port, certPath, keyPath, r)
	} else {
		port := getEnv("PORT", "80")
		l.Infof("Starting HTTP server on port %s", port)
		err = http.ListenAndServe(":"+port, r)
	}
	if err != nil {
		l.WithError(err).Errorf("Server stopped (pid %d)", pid)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
