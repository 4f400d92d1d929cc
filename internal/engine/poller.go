package engine

import (
	"context"
	"time"
)

// pollLoop runs the periodic fetch plus on-demand triggers until the
// engine stops or the context ends.
func (e *Engine) pollLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-e.trigger:
		}

		if err := e.pollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			e.mu.Lock()
			e.pollFailures++
			failures := e.pollFailures
			e.mu.Unlock()
			e.logger.Warn("poll failed, keeping previous state",
				"error", err, "consecutive_failures", failures)
		}
	}
}

// TriggerPoll requests an immediate poll. Multiple triggers before the
// loop wakes coalesce into one fetch.
func (e *Engine) TriggerPoll() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// pollOnce fetches every snapshot, reconciles overlays, re-evaluates
// connectivity, and emits change events. Devices absent from a fetch keep
// their previous state; staleness handles real disappearances.
func (e *Engine) pollOnce(ctx context.Context) error {
	snapshots, err := e.client.FetchAllDevices(ctx)
	if err != nil {
		return err
	}

	now := e.now()
	var events []Event

	e.mu.Lock()
	e.pollFailures = 0
	for _, snap := range snapshots {
		if snap.ID == "" {
			e.logger.Warn("skipping snapshot without device id")
			continue
		}

		st, known := e.devices[snap.ID]
		if !known {
			st = &deviceState{ov: make(overlay)}
			e.devices[snap.ID] = st
			e.logger.Info("device discovered", "device_id", snap.ID, "name", snap.Name)
		}

		changed := !known || snapshotChanged(st.snap, snap)
		st.snap = snap
		st.receivedAt = now
		st.ov.reconcile(snap, now, e.opts.OverlayTTL)

		status, transitioned := st.conn.observe(snap, now, e.opts.StaleAfter, e.opts.OfflineDebounce)

		if changed {
			events = append(events, Event{
				Type:     EventState,
				DeviceID: snap.ID,
				State:    e.effectiveLocked(st),
				Source:   SourcePoll,
			})
		}
		if transitioned {
			e.logger.Info("connectivity changed", "device_id", snap.ID, "status", status.String())
			events = append(events, Event{
				Type:     EventConnectivity,
				DeviceID: snap.ID,
				State:    e.effectiveLocked(st),
				Source:   SourcePoll,
			})
		}
	}
	e.mu.Unlock()

	e.notify(events)
	return nil
}
