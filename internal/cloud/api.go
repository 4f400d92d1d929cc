package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/nerrad567/dkn-cloud-bridge/internal/hvac"
)

// Installation identifies one site the account can see. The relations
// endpoint wraps each installation in a relation record; some backend
// revisions put the id on the relation instead of the installation, so
// both spellings are decoded.
type Installation struct {
	ID   string
	Name string
}

type installationRelation struct {
	ID             json.Number `json:"id"`
	InstallationID json.Number `json:"installation_id"`
	Installation   *struct {
		ID             json.Number `json:"id"`
		InstallationID json.Number `json:"installation_id"`
		Name           string      `json:"name"`
	} `json:"installation"`
}

func (r installationRelation) resolve() (Installation, bool) {
	if r.Installation != nil {
		id := r.Installation.ID.String()
		if id == "" {
			id = r.Installation.InstallationID.String()
		}
		if id != "" {
			return Installation{ID: id, Name: r.Installation.Name}, true
		}
	}
	id := r.InstallationID.String()
	if id == "" {
		id = r.ID.String()
	}
	if id == "" {
		return Installation{}, false
	}
	return Installation{ID: id}, true
}

// FetchInstallations lists the installations visible to the account.
func (c *Client) FetchInstallations(ctx context.Context) ([]Installation, error) {
	var resp struct {
		Relations []installationRelation `json:"installation_relations"`
	}
	err := c.do(ctx, requestSpec{
		method: http.MethodGet,
		path:   "/installation_relations",
	}, &resp)
	if err != nil {
		return nil, err
	}

	installations := make([]Installation, 0, len(resp.Relations))
	for _, rel := range resp.Relations {
		inst, ok := rel.resolve()
		if !ok {
			c.logger.Warn("skipping installation relation without id")
			continue
		}
		installations = append(installations, inst)
	}
	return installations, nil
}

// FetchDevices lists the device snapshots of one installation.
func (c *Client) FetchDevices(ctx context.Context, installationID string) ([]hvac.Snapshot, error) {
	var resp struct {
		Devices []hvac.Snapshot `json:"devices"`
	}
	err := c.do(ctx, requestSpec{
		method: http.MethodGet,
		path:   "/devices",
		query:  url.Values{"installation_id": []string{installationID}},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Devices, nil
}

// FetchAllDevices walks every installation and returns all device snapshots.
// This is the poll coordinator's fetch.
func (c *Client) FetchAllDevices(ctx context.Context) ([]hvac.Snapshot, error) {
	installations, err := c.FetchInstallations(ctx)
	if err != nil {
		return nil, err
	}

	var all []hvac.Snapshot
	for _, inst := range installations {
		devices, err := c.FetchDevices(ctx, inst.ID)
		if err != nil {
			return nil, fmt.Errorf("installation %s: %w", inst.ID, err)
		}
		all = append(all, devices...)
	}
	return all, nil
}

// SendEvent issues an immediate machine-parameter write (P1..P8) for one
// device through the events endpoint.
func (c *Client) SendEvent(ctx context.Context, deviceID, param, value string) error {
	payload := map[string]any{
		"event": map[string]any{
			"cgi":       "modmaquina",
			"device_id": deviceID,
			"option":    param,
			"value":     value,
		},
	}
	return c.do(ctx, requestSpec{
		method:  http.MethodPost,
		path:    "/events",
		body:    payload,
		headers: map[string]string{"X-Requested-With": "XMLHttpRequest"},
		command: true,
	}, nil)
}

// flatUpdateFields are sent at the root of the PUT /devices/{id} document.
// Everything else nests under "device". The backend rejects the wrong shape
// per field, so the table is explicit rather than inferred.
var flatUpdateFields = map[string]bool{
	hvac.FieldSleepTime:     true,
	hvac.FieldUnoccupiedMin: true,
	hvac.FieldUnoccupiedMax: true,
}

// UpdateField writes one configuration field on a device via
// PUT /devices/{id}, choosing the payload shape the backend expects for
// that field.
func (c *Client) UpdateField(ctx context.Context, deviceID, field string, value any) error {
	var payload any
	if flatUpdateFields[field] {
		payload = map[string]any{field: value}
	} else {
		payload = map[string]any{"device": map[string]any{field: value}}
	}
	return c.do(ctx, requestSpec{
		method:  http.MethodPut,
		path:    "/devices/" + url.PathEscape(deviceID),
		body:    payload,
		command: true,
	}, nil)
}
