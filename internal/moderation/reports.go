package moderation

import (
	"context"
	"errors"
	"slices"
	"strings"

	"rpworld/backend/internal/apperr"
	"rpworld/backend/internal/config"
	"rpworld/backend/internal/events"
	"rpworld/backend/internal/lock"
	"rpworld/backend/internal/models"
	"rpworld/backend/internal/permission"
	"rpworld/backend/internal/storage"

	"go.uber.org/zap"
)

// CreateReport files a complaint. A reporter may have one report that is not
// yet closed.
func (e *Engine) CreateReport(ctx context.Context, reporterID, reportedID uint, reason, description string) (*models.Report, error) {
	reason = strings.ToLower(strings.TrimSpace(reason))
	if !slices.Contains(config.ReportReasons, reason) {
		return nil, apperr.InvalidInput("Unknown reason. Use one of: %s.", strings.Join(config.ReportReasons, ", "))
	}
	description = strings.TrimSpace(description)
	if len(description) > config.MaxReportDescLen {
		return nil, apperr.InvalidInput("The description may be at most %d characters.", config.MaxReportDescLen)
	}
	if reporterID == reportedID {
		return nil, apperr.InvalidInput("You cannot report yourself.")
	}
	if err := e.requireCharacter(ctx, reportedID); err != nil {
		return nil, err
	}

	release, err := e.locks.Acquire(ctx, lock.Key("reporter", reporterID))
	if err != nil {
		return nil, apperr.Store("lock reporter", err)
	}
	defer release()

	r := &models.Report{
		ReporterID:  reporterID,
		ReportedID:  reportedID,
		Reason:      reason,
		Description: description,
		Status:      models.ReportOpen,
	}
	if err := e.store.CreateReport(ctx, r); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, apperr.Conflict("You already have an open report.")
		}
		return nil, e.storeFailure("create report", err, zap.Uint("reporter_id", reporterID))
	}

	e.mu.Lock()
	e.reports[r.ID] = *r
	e.mu.Unlock()

	e.events.Emit(ctx, events.TopicReportCreated, events.ReportChanged{Report: *r, ByID: reporterID})
	return r, nil
}

func (e *Engine) cachedReport(id uint) (models.Report, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.reports[id]
	return r, ok
}

// AcceptReport assigns an open, unassigned report to the admin.
func (e *Engine) AcceptReport(ctx context.Context, adminID, reportID uint) (*models.Report, error) {
	if !e.perms.HasPermission(adminID, permission.HandleReports) {
		return nil, apperr.Denied()
	}

	release, err := e.locks.Acquire(ctx, lock.Key("report", reportID))
	if err != nil {
		return nil, apperr.Store("lock report", err)
	}
	defer release()

	r, ok := e.cachedReport(reportID)
	if !ok {
		return nil, apperr.NotFound("No open report with id %d.", reportID)
	}
	if r.AssignedAdmin != nil {
		return nil, apperr.Conflict("That report is already being handled.")
	}

	if err := e.store.AcceptReport(ctx, reportID, adminID); err != nil {
		switch {
		case errors.Is(err, storage.ErrConflict):
			return nil, apperr.Conflict("That report is already being handled.")
		case errors.Is(err, storage.ErrNotFound):
			return nil, apperr.NotFound("No open report with id %d.", reportID)
		}
		return nil, e.storeFailure("accept report", err, zap.Uint("report_id", reportID))
	}

	r.Status = models.ReportInProgress
	r.AssignedAdmin = &adminID
	e.mu.Lock()
	e.reports[reportID] = r
	e.mu.Unlock()

	e.audit.Record(ctx, adminID, "accept_report", r.ReportedID, "report #"+uitoa(reportID))
	e.events.Emit(ctx, events.TopicReportAccepted, events.ReportChanged{Report: r, ByID: adminID})
	return &r, nil
}

// CloseReport closes a report. The assignee may close it; holders of
// close_any_report may close any report, assigned or not.
func (e *Engine) CloseReport(ctx context.Context, adminID, reportID uint, resolution string) (*models.Report, error) {
	closeAny := e.perms.HasPermission(adminID, permission.CloseAnyReport)
	if !closeAny && !e.perms.HasPermission(adminID, permission.HandleReports) {
		return nil, apperr.Denied()
	}
	resolution = strings.TrimSpace(resolution)
	if resolution == "" {
		return nil, apperr.InvalidInput("A resolution is required.")
	}
	if len(resolution) > config.MaxReportDescLen {
		return nil, apperr.InvalidInput("The resolution may be at most %d characters.", config.MaxReportDescLen)
	}

	release, err := e.locks.Acquire(ctx, lock.Key("report", reportID))
	if err != nil {
		return nil, apperr.Store("lock report", err)
	}
	defer release()

	r, ok := e.cachedReport(reportID)
	if !ok {
		return nil, apperr.NotFound("No open report with id %d.", reportID)
	}
	assignee := r.AssignedAdmin != nil && *r.AssignedAdmin == adminID
	if !assignee && !closeAny {
		return nil, apperr.DeniedMsg("Only the assigned admin can close that report.")
	}

	now := e.now()
	if err := e.store.CloseReport(ctx, reportID, adminID, resolution, now); err != nil {
		switch {
		case errors.Is(err, storage.ErrConflict), errors.Is(err, storage.ErrNotFound):
			e.mu.Lock()
			delete(e.reports, reportID)
			e.mu.Unlock()
			return nil, apperr.NotFound("No open report with id %d.", reportID)
		}
		return nil, e.storeFailure("close report", err, zap.Uint("report_id", reportID))
	}

	r.Status = models.ReportClosed
	r.Resolution = &resolution
	r.ClosedAt = &now
	if r.AssignedAdmin == nil {
		r.AssignedAdmin = &adminID
	}
	e.mu.Lock()
	delete(e.reports, reportID)
	e.mu.Unlock()

	e.audit.Record(ctx, adminID, "close_report", r.ReportedID, "report #"+uitoa(reportID)+": "+resolution)
	e.events.Emit(ctx, events.TopicReportClosed, events.ReportChanged{Report: r, ByID: adminID})
	return &r, nil
}

// ListOpenReports returns every report that is not closed, oldest first.
func (e *Engine) ListOpenReports(adminID uint) ([]models.Report, error) {
	if !e.perms.HasPermission(adminID, permission.HandleReports) && !e.perms.HasPermission(adminID, permission.CloseAnyReport) {
		return nil, apperr.Denied()
	}
	e.mu.RLock()
	out := make([]models.Report, 0, len(e.reports))
	for _, r := range e.reports {
		out = append(out, r)
	}
	e.mu.RUnlock()

	slices.SortFunc(out, func(a, b models.Report) int { return int(a.ID) - int(b.ID) })
	return out, nil
}
