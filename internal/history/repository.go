package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/dkn-cloud-bridge/internal/engine"
	"github.com/nerrad567/dkn-cloud-bridge/internal/infrastructure/logging"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Entry is one recorded state transition.
type Entry struct {
	ID           int64     `json:"id"`
	DeviceID     string    `json:"device_id"`
	RecordedAt   time.Time `json:"recorded_at"`
	Source       string    `json:"source"`
	CommandID    string    `json:"command_id,omitempty"`
	Power        string    `json:"power"`
	Mode         string    `json:"mode"`
	ColdSetpoint string    `json:"cold_setpoint,omitempty"`
	HeatSetpoint string    `json:"heat_setpoint,omitempty"`
	ColdSpeed    string    `json:"cold_speed,omitempty"`
	HeatSpeed    string    `json:"heat_speed,omitempty"`
	Scene        string    `json:"scene,omitempty"`
	LocalTemp    string    `json:"local_temp,omitempty"`
	Connectivity string    `json:"connectivity"`
}

// Repository stores and queries snapshot history rows.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a history repository over an open database.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Record inserts one transition row built from an engine event.
func (r *Repository) Record(ctx context.Context, ev engine.Event) error {
	if ev.DeviceID == "" {
		return fmt.Errorf("history: device id is required")
	}
	snap := ev.State.Snapshot

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO snapshot_history
			(device_id, recorded_at, source, command_id, power, mode,
			 cold_setpoint, heat_setpoint, cold_speed, heat_speed,
			 scene, local_temp, connectivity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.DeviceID,
		time.Now().UTC().Format(time.RFC3339),
		ev.Source,
		nullable(ev.CommandID),
		snap.Power.String(),
		snap.Mode.String(),
		nullable(snap.ColdSetpoint.String()),
		nullable(snap.HeatSetpoint.String()),
		nullable(snap.ColdSpeed.String()),
		nullable(snap.HeatSpeed.String()),
		nullable(snap.Scene),
		nullable(snap.LocalTemp.String()),
		ev.State.Connectivity.String(),
	)
	if err != nil {
		return fmt.Errorf("history: inserting row: %w", err)
	}
	return nil
}

// GetHistory returns a device's transitions newest-first. Limits are
// bounded: zero means the default, anything above the cap is clamped.
func (r *Repository) GetHistory(ctx context.Context, deviceID string, limit int) ([]Entry, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("history: device id is required")
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, device_id, recorded_at, source, command_id, power, mode,
		       cold_setpoint, heat_setpoint, cold_speed, heat_speed,
		       scene, local_temp, connectivity
		FROM snapshot_history
		WHERE device_id = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?`,
		deviceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history: querying rows: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e          Entry
			recordedAt string
			commandID  sql.NullString
			coldSet    sql.NullString
			heatSet    sql.NullString
			coldSpeed  sql.NullString
			heatSpeed  sql.NullString
			scene      sql.NullString
			localTemp  sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.DeviceID, &recordedAt, &e.Source, &commandID,
			&e.Power, &e.Mode, &coldSet, &heatSet, &coldSpeed, &heatSpeed,
			&scene, &localTemp, &e.Connectivity); err != nil {
			return nil, fmt.Errorf("history: scanning row: %w", err)
		}
		e.RecordedAt, err = time.Parse(time.RFC3339, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("history: parsing recorded_at: %w", err)
		}
		e.CommandID = commandID.String
		e.ColdSetpoint = coldSet.String
		e.HeatSetpoint = heatSet.String
		e.ColdSpeed = coldSpeed.String
		e.HeatSpeed = heatSpeed.String
		e.Scene = scene.String
		e.LocalTemp = localTemp.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterating rows: %w", err)
	}
	return entries, nil
}

// Prune deletes rows older than the retention window.
func (r *Repository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("history: retention must be positive")
	}
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM snapshot_history WHERE recorded_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("history: pruning rows: %w", err)
	}
	return result.RowsAffected()
}

// Subscriber returns an engine callback that records state events. It
// drops connectivity-only events; those are visible via the connectivity
// column on the next state row.
func (r *Repository) Subscriber(ctx context.Context, logger *logging.Logger) func(engine.Event) {
	return func(ev engine.Event) {
		if ev.Type != engine.EventState {
			return
		}
		if err := r.Record(ctx, ev); err != nil {
			logger.Warn("recording state history failed", "device_id", ev.DeviceID, "error", err)
		}
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
