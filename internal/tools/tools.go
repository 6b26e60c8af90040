package tools

import (
	"net"
	"net/http"
	"time"
)

const (
	layoutInput = "2006-01-02T15:04"
	layoutDB    = "2006-01-02 15:04:05"

	// Window used when the request does not name one
	DefaultRange = 8 * time.Hour
)

// Prevent out-of-network requests to sensor control endpoints
func CheckInNetwork(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
		parsedIP := net.ParseIP(ip)
		if parsedIP == nil {
			http.Error(w, "Invalid IP address", http.StatusBadRequest)
			return
		}
		if !isLocalAddress(parsedIP) {
			http.Error(w, "Access denied", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isLocalAddress(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate()
}

// Get the start and end dates from the request, format them for comparison with the DB.
// Form values are read in loc and converted to UTC.
func ParseStartAndEndDate(r *http.Request, loc *time.Location, now time.Time) (string, string) {
	r.ParseForm()
	startDate := r.FormValue("start")
	endDate := r.FormValue("end")
	if startDate == "" || endDate == "" {
		return now.UTC().Add(-DefaultRange).Format(layoutDB), now.UTC().Format(layoutDB)
	}

	if t, err := time.ParseInLocation(layoutInput, startDate, loc); err != nil {
		Logger.Warnf("Error parsing start date: %v", err)
		startDate = now.UTC().Add(-DefaultRange).Format(layoutDB)
	} else {
		startDate = t.UTC().Format(layoutDB)
	}
	if t, err := time.ParseInLocation(layoutInput, endDate, loc); err != nil {
		Logger.Warnf("Error parsing end date: %v", err)
		endDate = now.UTC().Format(layoutDB)
	} else {
		endDate = t.UTC().Format(layoutDB)
	}
	return startDate, endDate
}

func StartAndEndDateToTime(startDate string, endDate string) (time.Time, time.Time, error) {
	start, err := time.Parse(layoutDB, startDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := time.Parse(layoutDB, endDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}
