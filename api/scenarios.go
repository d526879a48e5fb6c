/*
scenarios.go - Demo scenario loaders

PURPOSE:
  Populates the database with realistic data for demos and manual
  testing. Each scenario resets the store and drives the public engine
  operations, so the seeded state is exactly what real usage produces.

AVAILABLE SCENARIOS:
  fresh-office:      Employees and holidays only, nothing logged
  pending-approvals: Uncertified overtime across several periods
  active-credits:    Certified batches, a historical import, and debits
  expiring-credits:  A batch already past validity, ready for the sweep

NOTE:
  Scenarios wipe the database. Development and demo environments only;
  mount the routes behind your own guard if the server is shared.

SEE ALSO:
  - server.go: /api/scenarios routes
*/
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/govhr/coc-engine/coc"
)

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "fresh-office",
		Name:        "Fresh Office",
		Description: "Employee roster and holiday calendar, no overtime yet",
	},
	{
		ID:          "pending-approvals",
		Name:        "Pending Approvals",
		Description: "Uncertified overtime across several employees and months",
	},
	{
		ID:          "active-credits",
		Name:        "Active Credits",
		Description: "Certified batches, a historical import, and partial usage",
	},
	{
		ID:          "expiring-credits",
		Name:        "Expiring Credits",
		Description: "A credit batch past its validity, ready for the sweep",
	},
}

// ListScenarios returns the available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.scenarioMu.Lock()
	current := h.currentScenario
	h.scenarioMu.Unlock()

	if current == "" {
		h.respond(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			h.respond(w, http.StatusOK, s)
			return
		}
	}
	h.respond(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario wipes the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenarioId"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	h.scenarioMu.Lock()
	defer h.scenarioMu.Unlock()

	ctx := r.Context()
	if err := h.resetStore(ctx); err != nil {
		h.fail(w, err)
		return
	}
	h.currentScenario = ""

	var err error
	switch req.ScenarioID {
	case "fresh-office":
		err = h.loadFreshOffice(ctx)
	case "pending-approvals":
		err = h.loadPendingApprovals(ctx)
	case "active-credits":
		err = h.loadActiveCredits(ctx)
	case "expiring-credits":
		err = h.loadExpiringCredits(ctx)
	default:
		h.respond(w, http.StatusBadRequest, ErrorResponse{
			Kind: string(coc.KindValidation), Message: "unknown scenario: " + req.ScenarioID})
		return
	}
	if err != nil {
		h.fail(w, err)
		return
	}

	h.currentScenario = req.ScenarioID
	h.respond(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

func (h *Handler) resetStore(ctx context.Context) error {
	store := h.Engine.Store()
	for _, collection := range coc.Collections() {
		docs, err := store.GetAll(ctx, collection, 100000)
		if err != nil {
			return err
		}
		ids := make([]string, len(docs))
		for i, d := range docs {
			ids[i] = d.ID
		}
		if len(ids) > 0 {
			if err := store.DeleteMany(ctx, collection, ids); err != nil {
				return err
			}
		}
	}
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) seedRoster(ctx context.Context) error {
	now := time.Now()
	roster := []coc.Employee{
		{ID: "EMP-0001", FirstName: "Maria", LastName: "Reyes",
			Position: "Administrative Officer II", Office: "Records",
			Email: "maria.reyes@office.gov.ph"},
		{ID: "EMP-0002", FirstName: "Jose", MiddleName: "D.", LastName: "Santos",
			Position: "Accountant I", Office: "Accounting",
			Email: "jose.santos@office.gov.ph"},
		{ID: "EMP-0003", FirstName: "Ana", LastName: "Lim",
			Position: "Legal Assistant", Office: "Legal",
			Email: "ana.lim@office.gov.ph"},
	}
	for _, e := range roster {
		e.Status = coc.EmployeeActive
		e.CreatedAt = now
		e.UpdatedAt = now
		if err := h.Engine.Employees().Create(ctx, e); err != nil {
			return err
		}
	}

	holidays := []struct{ name, date string }{
		{"New Year's Day", "2025-01-01"},
		{"Araw ng Kagitingan", "2025-04-09"},
		{"Labor Day", "2025-05-01"},
		{"Independence Day", "2025-06-12"},
	}
	for _, hd := range holidays {
		date, err := coc.ParseDate(hd.date)
		if err != nil {
			return err
		}
		err = h.Engine.Holidays().Put(ctx, coc.HolidayEntry{
			ID:   coc.HolidayID("hol-" + hd.date),
			Name: hd.name,
			Date: date,
			Year: date.Year,
			Type: coc.HolidayRegular,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadFreshOffice(ctx context.Context) error {
	return h.seedRoster(ctx)
}

func (h *Handler) loadPendingApprovals(ctx context.Context) error {
	if err := h.seedRoster(ctx); err != nil {
		return err
	}

	batches := []coc.LogOvertimeRequest{
		{EmployeeID: "EMP-0001", Month: "February", Year: 2025, LoggedBy: "demo",
			Entries: []coc.LogEntryInput{
				{Date: "2025-02-08", AMIn: "8:00 AM", AMOut: "12:00 PM", PMIn: "1:00 PM", PMOut: "5:00 PM"},
				{Date: "2025-02-15", AMIn: "8:00 AM", AMOut: "12:00 PM"},
			}},
		{EmployeeID: "EMP-0001", Month: "March", Year: 2025, LoggedBy: "demo",
			Entries: []coc.LogEntryInput{
				{Date: "2025-03-10", PMIn: "1:00 PM", PMOut: "6:30 PM"},
				{Date: "2025-03-15", AMIn: "8:00 AM", AMOut: "12:00 PM", PMIn: "1:00 PM", PMOut: "5:00 PM"},
			}},
		{EmployeeID: "EMP-0002", Month: "March", Year: 2025, LoggedBy: "demo",
			Entries: []coc.LogEntryInput{
				{Date: "2025-03-11", PMIn: "1:00 PM", PMOut: "7:00 PM"},
				{Date: "2025-03-16", AMIn: "8:00 AM", AMOut: "12:00 PM"},
			}},
	}
	for _, req := range batches {
		if _, err := h.Engine.LogOvertime(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadActiveCredits(ctx context.Context) error {
	if err := h.loadPendingApprovals(ctx); err != nil {
		return err
	}

	// Certify EMP-0001's February and give EMP-0002 a pre-system batch.
	_, err := h.Engine.Certify(ctx, coc.CertifyRequest{
		EmployeeID: "EMP-0001", Month: "February", Year: 2025,
		DateOfIssuance: "2025-03-03", CertifiedBy: "R. Villanueva",
	})
	if err != nil {
		return err
	}
	_, err = h.Engine.ImportHistorical(ctx, coc.HistoricalImportRequest{
		EmployeeID: "EMP-0002", Month: "December", Year: 2024,
		Hours: coc.HoursOf(16.0), DateOfIssuance: "2025-01-06",
		Notes: "Migrated from the manual register", PerformedBy: "demo",
	})
	if err != nil {
		return err
	}

	// Partial usage against the certified batch.
	_, err = h.Engine.Debit(ctx, coc.DebitRequest{
		EmployeeID: "EMP-0001", Hours: coc.HoursOf(4.0),
		ReferenceID: "LEAVE-2025-031", Notes: "Offset: half-day leave",
		PerformedBy: "demo",
	})
	return err
}

func (h *Handler) loadExpiringCredits(ctx context.Context) error {
	if err := h.seedRoster(ctx); err != nil {
		return err
	}

	// A batch issued long enough ago that its validity has lapsed.
	_, err := h.Engine.ImportHistorical(ctx, coc.HistoricalImportRequest{
		EmployeeID: "EMP-0003", Month: "January", Year: 2024,
		Hours: coc.HoursOf(12.0), DateOfIssuance: "2024-02-01",
		Notes: "Backfile import", PerformedBy: "demo",
	})
	if err != nil {
		return err
	}
	// And one still usable, so the sweep leaves something behind.
	_, err = h.Engine.ImportHistorical(ctx, coc.HistoricalImportRequest{
		EmployeeID: "EMP-0003", Month: "March", Year: 2025,
		Hours: coc.HoursOf(8.0), DateOfIssuance: "2025-04-01",
		Notes: "Backfile import", PerformedBy: "demo",
	})
	return err
}
