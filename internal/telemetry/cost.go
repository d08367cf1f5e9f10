// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// COST TRACKER
// =============================================================================

const (
	// maxTopRequests bounds how many of the most expensive requests a session keeps.
	maxTopRequests = 10

	// autosaveEvery is how many records may accumulate before the current
	// session is written to storage.
	autosaveEvery = 10
)

// CostTracker accumulates usage logs into per-day sessions persisted by
// CostStorage. A session closes when the first record of a new day arrives.
// It is safe for concurrent use.
type CostTracker struct {
	mu        sync.RWMutex
	sessions  map[string]*SessionCost // current plus closed, unsaved sessions
	currentID string
	unsaved   int
	storage   *CostStorage
}

// SessionCost aggregates the usage recorded during one tracker session.
type SessionCost struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	Requests int `json:"requests"`
	Failures int `json:"failures"`

	Tokens              TokenCount `json:"tokens"`
	TotalTokens         int        `json:"total_tokens"`
	TotalCost           float64    `json:"total_cost"` // In dollars
	TotalResponseTimeMs int64      `json:"total_response_time_ms"`

	// Per-model and per-entry-point breakdowns
	ByModel map[string]*ModelTotals `json:"by_model"`
	ByKind  map[string]int          `json:"by_kind"`

	TopRequests []RequestCost `json:"top_requests"`
}

// TokenCount tracks prompt/completion tokens.
type TokenCount struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
}

// ModelTotals is the usage attributed to one model identifier.
type ModelTotals struct {
	Calls  int     `json:"calls"`
	Tokens int     `json:"tokens"`
	Cost   float64 `json:"cost"`
}

// RequestCost is the cost of one recorded request. Question text is never stored.
type RequestCost struct {
	Timestamp      time.Time `json:"timestamp"`
	Kind           string    `json:"kind"` // agent, support, title
	Tokens         int       `json:"tokens"`
	Cost           float64   `json:"cost"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	Failed         bool      `json:"failed"`
}

// CostTrends provides aggregated cost trends over time.
type CostTrends struct {
	Days           int                `json:"days"`
	TotalCost      float64            `json:"total_cost"`
	TotalTokens    int                `json:"total_tokens"`
	Requests       int                `json:"requests"`
	DailyBreakdown []DailyCost        `json:"daily_breakdown"`
	ModelBreakdown map[string]float64 `json:"model_breakdown"`
}

// DailyCost tracks costs for a single day.
type DailyCost struct {
	Date     time.Time `json:"date"`
	Cost     float64   `json:"cost"`
	Tokens   int       `json:"tokens"`
	Requests int       `json:"requests"`
}

// =============================================================================
// CONSTRUCTOR
// =============================================================================

// NewCostTracker creates a cost tracker with persistent storage.
func NewCostTracker(storagePath string) (*CostTracker, error) {
	storage, err := NewCostStorage(storagePath)
	if err != nil {
		return nil, err
	}

	ct := &CostTracker{
		sessions: make(map[string]*SessionCost),
		storage:  storage,
	}
	ct.rotateLocked(time.Now())

	return ct, nil
}

func newSession(id string, start time.Time) *SessionCost {
	return &SessionCost{
		ID:          id,
		StartTime:   start,
		ByModel:     make(map[string]*ModelTotals),
		ByKind:      make(map[string]int),
		TopRequests: make([]RequestCost, 0),
	}
}

// =============================================================================
// RECORDING
// =============================================================================

// Record adds a request's usage log to the current session. kind names
// the entry point that produced it.
//
// The first record of a new calendar day closes the current session and
// opens another. Closed sessions and every autosaveEvery-th record are
// persisted at once; the returned error reports a failed write, and the
// unsaved data stays in memory for the next attempt.
func (ct *CostTracker) Record(kind string, log *UsageLog) error {
	if ct == nil || log == nil {
		return nil
	}

	ct.mu.Lock()
	defer ct.mu.Unlock()

	now := time.Now()
	session := ct.sessions[ct.currentID]
	if session == nil || !sameDay(session.StartTime, now) {
		ct.rotateLocked(now)
		session = ct.sessions[ct.currentID]
	}

	failed := log.IsError()
	session.Requests++
	session.ByKind[kind]++
	if failed {
		session.Failures++
	}

	for _, u := range log.ModelUsages {
		session.Tokens.Prompt += u.PromptTokens
		session.Tokens.Completion += u.CompletionTokens

		totals, ok := session.ByModel[u.Model]
		if !ok {
			totals = &ModelTotals{}
			session.ByModel[u.Model] = totals
		}
		totals.Calls++
		totals.Tokens += u.TotalTokens
		totals.Cost += u.Cost
	}

	session.TotalTokens += log.TotalTokens
	session.TotalCost += log.TotalCost
	session.TotalResponseTimeMs += log.TotalResponseTimeMs

	session.TopRequests = append(session.TopRequests, RequestCost{
		Timestamp:      now,
		Kind:           kind,
		Tokens:         log.TotalTokens,
		Cost:           log.TotalCost,
		ResponseTimeMs: log.TotalResponseTimeMs,
		Failed:         failed,
	})
	updateTopRequests(session)

	ct.unsaved++
	if ct.unsaved >= autosaveEvery || len(ct.sessions) > 1 {
		return ct.flushLocked()
	}
	return nil
}

// updateTopRequests keeps the most expensive requests, highest cost first.
func updateTopRequests(session *SessionCost) {
	sort.SliceStable(session.TopRequests, func(i, j int) bool {
		return session.TopRequests[i].Cost > session.TopRequests[j].Cost
	})
	if len(session.TopRequests) > maxTopRequests {
		session.TopRequests = session.TopRequests[:maxTopRequests]
	}
}

// =============================================================================
// RETRIEVAL
// =============================================================================

// GetCurrentSession returns a copy of the current session's cost data, or
// nil for a nil tracker.
func (ct *CostTracker) GetCurrentSession() *SessionCost {
	if ct == nil {
		return nil
	}
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	session := ct.sessions[ct.currentID]
	if session == nil {
		return newSession(ct.currentID, time.Now())
	}
	return copySession(session)
}

// GetHistory returns persisted sessions started within [from, to].
func (ct *CostTracker) GetHistory(from, to time.Time) []*SessionCost {
	ids, err := ct.storage.List(from, to)
	if err != nil {
		return nil
	}

	sessions := make([]*SessionCost, 0, len(ids))
	for _, id := range ids {
		session, err := ct.storage.Load(id)
		if err != nil {
			continue
		}
		sessions = append(sessions, session)
	}
	return sessions
}

// GetTrends aggregates sessions started within the last days. Sessions
// still held in memory replace their stored copies.
func (ct *CostTracker) GetTrends(days int) *CostTrends {
	to := time.Now()
	from := to.AddDate(0, 0, -days)

	history := ct.GetHistory(from, to)
	ct.mu.RLock()
	for _, live := range ct.sessions {
		if live.Requests == 0 || live.StartTime.Before(from) || live.StartTime.After(to) {
			continue
		}
		replaced := false
		for i, stored := range history {
			if stored.ID == live.ID {
				history[i] = copySession(live)
				replaced = true
				break
			}
		}
		if !replaced {
			history = append(history, copySession(live))
		}
	}
	ct.mu.RUnlock()

	trends := &CostTrends{
		Days:           days,
		DailyBreakdown: make([]DailyCost, 0),
		ModelBreakdown: make(map[string]float64),
	}

	daily := make(map[string]*DailyCost)
	for _, session := range history {
		key := session.StartTime.Format("2006-01-02")
		day, ok := daily[key]
		if !ok {
			y, m, d := session.StartTime.Date()
			day = &DailyCost{Date: time.Date(y, m, d, 0, 0, 0, 0, session.StartTime.Location())}
			daily[key] = day
		}

		day.Cost += session.TotalCost
		day.Tokens += session.TotalTokens
		day.Requests += session.Requests

		trends.TotalCost += session.TotalCost
		trends.TotalTokens += session.TotalTokens
		trends.Requests += session.Requests

		for model, totals := range session.ByModel {
			trends.ModelBreakdown[model] += totals.Cost
		}
	}

	for _, day := range daily {
		trends.DailyBreakdown = append(trends.DailyBreakdown, *day)
	}
	sort.Slice(trends.DailyBreakdown, func(i, j int) bool {
		return trends.DailyBreakdown[i].Date.Before(trends.DailyBreakdown[j].Date)
	})

	return trends
}

// =============================================================================
// SESSION MANAGEMENT
// =============================================================================

// EndSession persists the current session and starts a new one.
func (ct *CostTracker) EndSession() error {
	if ct == nil {
		return nil
	}

	ct.mu.Lock()
	defer ct.mu.Unlock()

	ct.rotateLocked(time.Now())
	return ct.flushLocked()
}

// rotateLocked closes the current session and opens a new one starting at
// now. The closed session stays in memory until flushLocked stores it.
// Caller holds ct.mu.
func (ct *CostTracker) rotateLocked(now time.Time) {
	if session := ct.sessions[ct.currentID]; session != nil {
		session.EndTime = now
	}
	ct.currentID = generateSessionID(now)
	ct.sessions[ct.currentID] = newSession(ct.currentID, now)
}

// flushLocked stores every in-memory session that holds usage. Closed
// sessions are dropped once stored. Caller holds ct.mu.
func (ct *CostTracker) flushLocked() error {
	var errs []error
	for id, session := range ct.sessions {
		if id == ct.currentID && session.Requests == 0 {
			continue
		}
		if session.Requests > 0 {
			if err := ct.storage.Save(session); err != nil {
				errs = append(errs, err)
				continue
			}
		}
		if id != ct.currentID {
			delete(ct.sessions, id)
		}
	}
	if len(errs) == 0 {
		ct.unsaved = 0
	}
	return errors.Join(errs...)
}

// SaveCurrentSession persists the current session without ending it,
// along with any closed session not yet stored. An empty session is not
// written.
func (ct *CostTracker) SaveCurrentSession() error {
	if ct == nil {
		return nil
	}

	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.flushLocked()
}

// Storage returns the underlying storage.
func (ct *CostTracker) Storage() *CostStorage {
	return ct.storage
}

// =============================================================================
// HELPERS
// =============================================================================

// sameDay reports whether a and b fall on the same local calendar day.
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Local().Date()
	by, bm, bd := b.Local().Date()
	return ay == by && am == bm && ad == bd
}

// copySession creates a deep copy of a session.
func copySession(src *SessionCost) *SessionCost {
	dst := *src
	dst.ByModel = make(map[string]*ModelTotals, len(src.ByModel))
	for model, totals := range src.ByModel {
		t := *totals
		dst.ByModel[model] = &t
	}
	dst.ByKind = make(map[string]int, len(src.ByKind))
	for kind, n := range src.ByKind {
		dst.ByKind[kind] = n
	}
	dst.TopRequests = make([]RequestCost, len(src.TopRequests))
	copy(dst.TopRequests, src.TopRequests)
	return &dst
}

// generateSessionID returns "YYYYMMDD-HHMMSS-<random>".
func generateSessionID(now time.Time) string {
	return now.Format("20060102-150405") + "-" + uuid.NewString()[:8]
}
