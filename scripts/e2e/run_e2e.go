// Package main runs end-to-end scenarios against a running slotbook API.
//
// Each scenario publishes its own slots on a date far enough ahead that runs
// never collide with real schedules. Scenarios cover:
//   - Publishing a window and listing the partitioned slots
//   - Two patients racing for the same slot
//   - Moving a held appointment to a free time
//   - Doctor approve and decline decisions
//   - Patient cancellation without a payment
//
// Usage:
//
//	AUTH_JWT_SECRET=... API_BASE_URL=... go run ./scripts/e2e              # runs all
//	AUTH_JWT_SECRET=... API_BASE_URL=... go run ./scripts/e2e hold-race    # runs one
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	apiBase   string
	jwtSecret string
	client    = &http.Client{Timeout: 15 * time.Second}
)

type scenario struct {
	Name string
	Fn   func(t *T)
}

// T is a lightweight test context for a single scenario.
type T struct {
	passed int
	failed int
	name   string
}

func (t *T) check(name string, ok bool) {
	if ok {
		fmt.Printf("    PASS: %s\n", name)
		t.passed++
	} else {
		fmt.Printf("    FAIL: %s\n", name)
		t.failed++
	}
}

func (t *T) fatalf(format string, args ...any) {
	fmt.Printf("    FATAL: "+format+"\n", args...)
	t.failed++
}

type slot struct {
	ID                string `json:"id"`
	DoctorID          string `json:"doctorId"`
	Date              string `json:"date"`
	Time              string `json:"time"`
	Status            string `json:"status"`
	AppointmentStatus string `json:"appointmentStatus"`
	HolderID          string `json:"holderId"`
}

type response struct {
	Status      int    `json:"-"`
	Slots       []slot `json:"slots"`
	Appointment *slot  `json:"appointment"`
	Note        string `json:"note"`
	Error       *struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func token(subject, role string) string {
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"exp":  time.Now().Add(15 * time.Minute).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
	if err != nil {
		panic(err)
	}
	return signed
}

func call(method, path, bearer string, body any) (*response, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequest(method, apiBase+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	out := &response{Status: resp.StatusCode}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("decode %s %s (%d): %w", method, path, resp.StatusCode, err)
		}
	}
	return out, nil
}

// scenarioDate picks a distinct future date per run and scenario.
func scenarioDate(offsetDays int) string {
	return time.Now().AddDate(1, 0, offsetDays).Format("01-02-2006")
}

func publish(t *T, doctor, date string) []slot {
	resp, err := call(http.MethodPost, "/doctor/slots", token(doctor, "doctor"), map[string]any{
		"date": date, "startTime": "09:00 AM", "endTime": "10:00 AM", "duration": 20,
	})
	if err != nil {
		t.fatalf("publish slots: %v", err)
		return nil
	}
	t.check("publish returns 201", resp.Status == http.StatusCreated)
	t.check("window splits into 3 slots", len(resp.Slots) == 3)
	return resp.Slots
}

func holdBody(date, timeRange, doctor string) map[string]any {
	return map[string]any{
		"date": date, "time": timeRange, "doctorId": doctor,
		"patientDetails": map[string]string{"name": "E2E Patient", "phone": "+15005550006", "address": "1 Test Way"},
	}
}

func scenarioPublish(t *T) {
	doctor := "e2e-doc-" + uuid.NewString()[:8]
	date := scenarioDate(0)
	publish(t, doctor, date)

	resp, err := call(http.MethodGet, "/slots/"+date+"?doctorId="+doctor, "", nil)
	if err != nil {
		t.fatalf("list slots: %v", err)
		return
	}
	t.check("list returns 200", resp.Status == http.StatusOK)
	t.check("all published slots are free", len(resp.Slots) == 3)

	again, err := call(http.MethodPost, "/doctor/slots", token(doctor, "doctor"), map[string]any{
		"date": date, "startTime": "09:30 AM", "endTime": "10:30 AM", "duration": 30,
	})
	if err != nil {
		t.fatalf("republish: %v", err)
		return
	}
	t.check("overlapping window is a conflict", again.Status == http.StatusConflict)
}

func scenarioHoldRace(t *T) {
	doctor := "e2e-doc-" + uuid.NewString()[:8]
	date := scenarioDate(1)
	publish(t, doctor, date)

	body := holdBody(date, "09:00 AM - 09:20 AM", doctor)
	results := make(chan int, 8)
	for i := 0; i < cap(results); i++ {
		go func(i int) {
			resp, err := call(http.MethodPost, "/appointments", token(fmt.Sprintf("e2e-patient-%d", i), "patient"), body)
			if err != nil {
				results <- 0
				return
			}
			results <- resp.Status
		}(i)
	}
	won, lost := 0, 0
	for i := 0; i < cap(results); i++ {
		switch <-results {
		case http.StatusCreated:
			won++
		case http.StatusConflict, http.StatusUnprocessableEntity:
			lost++
		}
	}
	t.check("exactly one hold wins", won == 1)
	t.check("every other hold loses", lost == cap(results)-1)
}

func scenarioUpdate(t *T) {
	doctor := "e2e-doc-" + uuid.NewString()[:8]
	date := scenarioDate(2)
	publish(t, doctor, date)
	patient := token("e2e-mover", "patient")

	held, err := call(http.MethodPost, "/appointments", patient, holdBody(date, "09:00 AM - 09:20 AM", doctor))
	if err != nil || held.Appointment == nil {
		t.fatalf("hold: %v", err)
		return
	}

	other, err := call(http.MethodPut, "/appointments/"+held.Appointment.ID, token("e2e-stranger", "patient"),
		holdBody(date, "09:40 AM - 10:00 AM", doctor))
	if err != nil {
		t.fatalf("stranger update: %v", err)
		return
	}
	t.check("non-holder update is forbidden", other.Status == http.StatusForbidden)

	unpublished, err := call(http.MethodPut, "/appointments/"+held.Appointment.ID, patient,
		holdBody(date, "11:00 AM - 11:20 AM", doctor))
	if err != nil {
		t.fatalf("unpublished update: %v", err)
		return
	}
	t.check("move to an unpublished time is rejected", unpublished.Status == http.StatusUnprocessableEntity)

	moved, err := call(http.MethodPut, "/appointments/"+held.Appointment.ID, patient,
		holdBody(date, "09:40 AM - 10:00 AM", doctor))
	if err != nil {
		t.fatalf("update: %v", err)
		return
	}
	t.check("holder update succeeds", moved.Status == http.StatusOK)
	t.check("appointment moved", moved.Appointment != nil && moved.Appointment.Time == "09:40 AM - 10:00 AM")
	t.check("moved to the published slot", moved.Appointment != nil && moved.Appointment.ID != held.Appointment.ID)

	retaken, err := call(http.MethodPost, "/appointments", token("e2e-follower", "patient"), holdBody(date, "09:00 AM - 09:20 AM", doctor))
	if err != nil {
		t.fatalf("hold vacated slot: %v", err)
		return
	}
	t.check("vacated slot can be held again", retaken.Status == http.StatusCreated)
}

func scenarioDecisions(t *T) {
	doctor := "e2e-doc-" + uuid.NewString()[:8]
	date := scenarioDate(3)
	publish(t, doctor, date)
	doc := token(doctor, "doctor")

	first, err1 := call(http.MethodPost, "/appointments", token("e2e-a", "patient"), holdBody(date, "09:00 AM - 09:20 AM", doctor))
	second, err2 := call(http.MethodPost, "/appointments", token("e2e-b", "patient"), holdBody(date, "09:20 AM - 09:40 AM", doctor))
	if err1 != nil || err2 != nil || first.Appointment == nil || second.Appointment == nil {
		t.fatalf("hold: %v %v", err1, err2)
		return
	}

	approved, err := call(http.MethodPatch, "/doctor/appointments/"+first.Appointment.ID, doc, map[string]string{"status": "approved"})
	if err != nil {
		t.fatalf("approve: %v", err)
		return
	}
	t.check("approve books the slot", approved.Appointment != nil && approved.Appointment.Status == "booked")

	declined, err := call(http.MethodPatch, "/doctor/appointments/"+second.Appointment.ID, doc, map[string]string{"status": "cancelled"})
	if err != nil {
		t.fatalf("decline: %v", err)
		return
	}
	t.check("decline cancels the appointment", declined.Appointment != nil && declined.Appointment.AppointmentStatus == "cancelled")
	t.check("decline reopens the slot", declined.Appointment != nil && declined.Appointment.Status == "free")

	again, err := call(http.MethodPatch, "/doctor/appointments/"+first.Appointment.ID, doc, map[string]string{"status": "cancelled"})
	if err != nil {
		t.fatalf("second decision: %v", err)
		return
	}
	t.check("non-pending decision is rejected", again.Status == http.StatusConflict)
}

func scenarioCancel(t *T) {
	doctor := "e2e-doc-" + uuid.NewString()[:8]
	date := scenarioDate(4)
	publish(t, doctor, date)
	patient := token("e2e-canceller", "patient")

	held, err := call(http.MethodPost, "/appointments", patient, holdBody(date, "09:40 AM - 10:00 AM", doctor))
	if err != nil || held.Appointment == nil {
		t.fatalf("hold: %v", err)
		return
	}
	cancelled, err := call(http.MethodDelete, "/appointments/"+held.Appointment.ID, patient, nil)
	if err != nil {
		t.fatalf("cancel: %v", err)
		return
	}
	t.check("cancel returns 200", cancelled.Status == http.StatusOK)
	t.check("slot is free again", cancelled.Appointment != nil && cancelled.Appointment.Status == "free")
	t.check("note is present", cancelled.Note != "")

	second, err := call(http.MethodDelete, "/appointments/"+held.Appointment.ID, patient, nil)
	if err != nil {
		t.fatalf("second cancel: %v", err)
		return
	}
	t.check("second cancel is not found", second.Status == http.StatusNotFound)
}

func main() {
	apiBase = os.Getenv("API_BASE_URL")
	jwtSecret = os.Getenv("AUTH_JWT_SECRET")
	if apiBase == "" || jwtSecret == "" {
		fmt.Fprintln(os.Stderr, "ERROR: API_BASE_URL and AUTH_JWT_SECRET required")
		os.Exit(1)
	}

	scenarios := []scenario{
		{"publish", scenarioPublish},
		{"hold-race", scenarioHoldRace},
		{"update", scenarioUpdate},
		{"decisions", scenarioDecisions},
		{"cancel", scenarioCancel},
	}

	filter := ""
	if len(os.Args) > 1 {
		filter = os.Args[1]
	}

	totalPassed := 0
	totalFailed := 0
	var results []string

	for _, s := range scenarios {
		if filter != "" && s.Name != filter {
			continue
		}

		fmt.Printf("\n========================================\n")
		fmt.Printf("SCENARIO: %s\n", s.Name)
		fmt.Printf("========================================\n")

		t := &T{name: s.Name}
		s.Fn(t)

		totalPassed += t.passed
		totalFailed += t.failed

		status := "ok  "
		if t.failed > 0 {
			status = "FAIL"
		}
		results = append(results, fmt.Sprintf("  %s %s (%d passed, %d failed)", status, s.Name, t.passed, t.failed))
	}

	fmt.Printf("\n========================================\n")
	fmt.Println("SUMMARY")
	fmt.Printf("========================================\n")
	for _, r := range results {
		fmt.Println(r)
	}
	fmt.Printf("\nTotal: %d passed, %d failed\n", totalPassed, totalFailed)

	if totalFailed > 0 {
		fmt.Println("\nSOME SCENARIOS FAILED")
		os.Exit(1)
	}
	fmt.Println("\nALL SCENARIOS PASSED")
}
