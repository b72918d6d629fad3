package console

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	rcron "github.com/robfig/cron/v3"

	"github.com/zhouzirui/advisor-console/internal/model/audit"
)

// AuditView is the audit panel as rendered: the log header, the most recent
// entries newest first, and the latest profile when one exists.
type AuditView struct {
	Visible        bool                 `json:"visible"`
	Loaded         bool                 `json:"loaded"`
	TotalEntries   int                  `json:"totalEntries"`
	Model          string               `json:"model,omitempty"`
	Server         string               `json:"server,omitempty"`
	Entries        []audit.Entry        `json:"entries"`
	Profile        *audit.ProfileResult `json:"profile,omitempty"`
	ProfileMessage string               `json:"profileMessage,omitempty"`
}

// ToggleAudit flips the panel. Opening it fetches the audit data once; a failed
// fetch is logged and leaves the previous data in place. It returns the new
// visibility.
func (c *Controller) ToggleAudit(ctx context.Context) bool {
	c.mu.Lock()
	c.auditVisible = !c.auditVisible
	visible := c.auditVisible
	c.mu.Unlock()

	// RefreshAudit publishes the view itself when it succeeds.
	if visible && c.RefreshAudit(ctx) == nil {
		return visible
	}

	c.events.publish(Event{Type: EventAudit, Data: c.AuditView()})
	return visible
}

// RefreshAudit reads the audit log and the latest profile concurrently. Both
// must succeed for the view to change.
func (c *Controller) RefreshAudit(ctx context.Context) error {
	var (
		wg         sync.WaitGroup
		entries    *audit.Log
		latest     *audit.LatestProfile
		logErr     error
		profileErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		entries, logErr = c.backend.Audit(ctx)
	}()
	go func() {
		defer wg.Done()
		latest, profileErr = c.backend.LatestProfile(ctx)
	}()
	wg.Wait()

	if err := errors.Join(logErr, profileErr); err != nil {
		log.Printf("[console] failed to fetch audit: %v", err)
		return fmt.Errorf("fetch audit: %w", err)
	}

	c.mu.Lock()
	c.auditLog = entries
	c.latest = latest
	c.mu.Unlock()

	c.events.publish(Event{Type: EventAudit, Data: c.AuditView()})
	return nil
}

// AuditVisible reports whether the panel is open.
func (c *Controller) AuditVisible() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.auditVisible
}

// AuditView returns a snapshot of the panel.
func (c *Controller) AuditView() AuditView {
	c.mu.RLock()
	defer c.mu.RUnlock()

	view := AuditView{
		Visible: c.auditVisible,
		Loaded:  c.auditLog != nil,
		Entries: []audit.Entry{},
	}
	if c.auditLog != nil {
		view.TotalEntries = c.auditLog.TotalEntries
		view.Model = c.auditLog.Model
		view.Server = c.auditLog.Server
		view.Entries = c.auditLog.Recent(c.entryLimit)
	}
	if c.latest != nil {
		view.Profile = c.latest.Result
		view.ProfileMessage = c.latest.Message
	}
	return view
}

// StartAutoRefresh refreshes the panel on schedule while it is visible. The
// schedule uses the standard cron syntax, including descriptors such as
// "@every 30s". Calling it again replaces the previous schedule.
func (c *Controller) StartAutoRefresh(schedule string) error {
	cr := rcron.New()
	_, err := cr.AddFunc(schedule, func() {
		if !c.AuditVisible() {
			return
		}
		_ = c.RefreshAudit(context.Background())
	})
	if err != nil {
		return fmt.Errorf("invalid audit refresh schedule %q: %w", schedule, err)
	}

	c.StopAutoRefresh()

	c.cronMu.Lock()
	c.cron = cr
	c.cronMu.Unlock()

	cr.Start()
	log.Printf("[console] audit auto-refresh scheduled: %s", schedule)
	return nil
}

// StopAutoRefresh cancels the schedule and waits for a running refresh.
func (c *Controller) StopAutoRefresh() {
	c.cronMu.Lock()
	cr := c.cron
	c.cron = nil
	c.cronMu.Unlock()

	if cr != nil {
		<-cr.Stop().Done()
	}
}
