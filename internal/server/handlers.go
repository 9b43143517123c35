package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/manaspathak2335-git/TripPilot/internal/airports"
	"github.com/manaspathak2335-git/TripPilot/internal/assistant"
	"github.com/manaspathak2335-git/TripPilot/pkg/models"
)

const maxBodyBytes = 64 << 10

// Canned snapshot returned by track-flight when the aircraft is not in the
// current live fetch.
const (
	cannedAltitude = 32000
	cannedVelocity = 450
)

type trackFlightRequest struct {
	ICAO24 string `json:"icao24"`
}

// FlightInfo is the track-flight telemetry block. Only live, altitude and
// velocity are always present.
type FlightInfo struct {
	Live         bool     `json:"live"`
	Altitude     float64  `json:"altitude"`
	Velocity     float64  `json:"velocity"`
	ICAO24       string   `json:"icao24,omitempty"`
	FlightNumber string   `json:"flightNumber,omitempty"`
	Airline      string   `json:"airline,omitempty"`
	Origin       string   `json:"origin,omitempty"`
	Destination  string   `json:"destination,omitempty"`
	Latitude     *float64 `json:"lat,omitempty"`
	Longitude    *float64 `json:"lon,omitempty"`
	Heading      *float64 `json:"heading,omitempty"`
}

type trackFlightResponse struct {
	FlightInfo FlightInfo `json:"flight_info"`
	AIAnalysis string     `json:"ai_analysis"`
}

type chatRequest struct {
	Message string `json:"message"`
	Context string `json:"context"`
}

type chatResponse struct {
	Response string `json:"response"`
}

type statusResponse struct {
	Flights   models.FetchOutcome `json:"flights"`
	Airports  airports.State      `json:"airports"`
	Assistant struct {
		Online bool `json:"online"`
	} `json:"assistant"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ---------------------------------------------------------------------------
// Health Handlers
// ---------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.startTime).String(),
		"version":   s.opts.Version,
	}

	status := http.StatusOK
	if !s.ready.Load() {
		health["status"] = "starting"
		status = http.StatusServiceUnavailable
	}
	respondJSONStatus(w, status, health)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("alive"))
}

// ---------------------------------------------------------------------------
// API Handlers
// ---------------------------------------------------------------------------

func (s *Server) handleActiveFlights(w http.ResponseWriter, r *http.Request) {
	flights := s.flights.FetchActiveFlights(r.Context())
	respondJSON(w, map[string]interface{}{"flights": flights})
}

func (s *Server) handleAirports(w http.ResponseWriter, r *http.Request) {
	list := s.airports.Airports(r.Context())
	if list == nil {
		list = []models.AirportRecord{}
	}
	respondJSON(w, map[string]interface{}{"airports": list})
}

func (s *Server) handleTrackFlight(w http.ResponseWriter, r *http.Request) {
	var req trackFlightRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	icao := strings.TrimSpace(req.ICAO24)
	if icao == "" {
		respondError(w, http.StatusBadRequest, "icao24 is required")
		return
	}

	resp := trackFlightResponse{
		FlightInfo: FlightInfo{Live: true, Altitude: cannedAltitude, Velocity: cannedVelocity},
		AIAnalysis: assistant.ReplyAnalysis,
	}
	if f, ok := s.flights.Lookup(r.Context(), icao); ok {
		resp.FlightInfo = flightInfo(f)
		resp.AIAnalysis = s.assistant.AnalyzeFlight(r.Context(), f)
	}
	respondJSON(w, resp)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "message is required")
		return
	}
	respondJSON(w, chatResponse{Response: s.assistant.Chat(r.Context(), req.Message, req.Context)})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var resp statusResponse
	resp.Flights = s.flights.LastOutcome()
	resp.Airports = s.airports.State()
	resp.Assistant.Online = s.assistant.Online()
	resp.Version = s.opts.Version
	resp.Uptime = time.Since(s.startTime).Round(time.Second).String()
	respondJSON(w, resp)
}

func flightInfo(f models.FlightRecord) FlightInfo {
	lat, lon, heading := f.Latitude, f.Longitude, f.Heading
	return FlightInfo{
		Live:         !f.Simulated,
		Altitude:     f.Altitude,
		Velocity:     f.Speed,
		ICAO24:       f.ICAO24,
		FlightNumber: f.FlightNumber,
		Airline:      f.Airline,
		Origin:       f.Origin,
		Destination:  f.Destination,
		Latitude:     &lat,
		Longitude:    &lon,
		Heading:      &heading,
	}
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return errors.New("malformed JSON body")
	}
	return nil
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	respondJSONStatus(w, http.StatusOK, data)
}

func respondJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSONStatus(w, status, map[string]string{"error": msg})
}
