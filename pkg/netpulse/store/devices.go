package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridwatch/netpulse/models"
)

// DeviceRepo reads and updates npm.devices and npm.snmpv3_credentials.
type DeviceRepo struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

const deviceColumns = `
	id, name, ip_address::text, COALESCE(vendor, ''), snmp_port,
	poll_icmp, poll_snmp, is_active, COALESCE(credential_id::text, ''),
	COALESCE(status, 'unknown'), COALESCE(icmp_status, 'unknown'),
	COALESCE(snmp_status, 'unknown'), last_poll`

func scanDevice(row pgx.Row) (*models.Device, error) {
	var d models.Device
	err := row.Scan(
		&d.ID, &d.Name, &d.IPAddress, &d.Vendor, &d.SNMPPort,
		&d.PollICMP, &d.PollSNMP, &d.IsActive, &d.CredentialID,
		&d.Status, &d.ICMPStatus, &d.SNMPStatus, &d.LastPoll,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ClaimBatch selects up to limit active devices due for polling, oldest poll
// first (never-polled devices first), stamps last_poll, and returns them.
//
// The select and the stamp happen in one transaction with
// FOR UPDATE SKIP LOCKED, so concurrent scheduler instances claim disjoint
// batches and no device ever has two polls in flight.
func (r *DeviceRepo) ClaimBatch(ctx context.Context, limit int) ([]models.Device, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: begin claim: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		UPDATE npm.devices
		SET last_poll = NOW()
		WHERE id IN (
			SELECT id FROM npm.devices
			WHERE is_active = true
			ORDER BY last_poll ASC NULLS FIRST
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+deviceColumns, limit)
	if err != nil {
		return nil, fmt.Errorf("store: claim batch: %w", err)
	}

	var devices []models.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: scan device: %w", err)
		}
		devices = append(devices, *d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: claim rows: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("store: commit claim: %w", err)
	}
	return devices, nil
}

// Get fetches one device by ID. Returns (nil, nil) when it does not exist.
func (r *DeviceRepo) Get(ctx context.Context, id string) (*models.Device, error) {
	d, err := scanDevice(r.pool.QueryRow(ctx,
		`SELECT `+deviceColumns+` FROM npm.devices WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get device %s: %w", id, err)
	}
	return d, nil
}

// GetCredential fetches the SNMPv3 credential referenced by a device.
// Returns (nil, nil) when the credential does not exist.
func (r *DeviceRepo) GetCredential(ctx context.Context, id string) (*models.SNMPCredential, error) {
	var c models.SNMPCredential
	err := r.pool.QueryRow(ctx, `
		SELECT id, username, security_level,
		       COALESCE(auth_protocol, ''), COALESCE(priv_protocol, ''),
		       COALESCE(context_name, ''),
		       COALESCE(auth_password_encrypted, ''),
		       COALESCE(priv_password_encrypted, '')
		FROM npm.snmpv3_credentials
		WHERE id = $1`, id).Scan(
		&c.ID, &c.Username, &c.SecurityLevel,
		&c.AuthProtocol, &c.PrivProtocol, &c.ContextName,
		&c.AuthPasswordEncrypted, &c.PrivPasswordEncrypted,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get credential %s: %w", id, err)
	}
	return &c, nil
}

// UpdateStatus writes the per-protocol and overall status after a poll, and
// conditionally stamps last_icmp_poll / last_snmp_poll for protocols that ran.
func (r *DeviceRepo) UpdateStatus(ctx context.Context, deviceID string, res *models.PollResult, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE npm.devices
		SET status = $2,
		    icmp_status = $3,
		    snmp_status = $4,
		    last_poll = $5,
		    last_icmp_poll = CASE WHEN $6 THEN $5 ELSE last_icmp_poll END,
		    last_snmp_poll = CASE WHEN $7 THEN $5 ELSE last_snmp_poll END,
		    updated_at = NOW()
		WHERE id = $1`,
		deviceID,
		string(res.OverallStatus()),
		string(res.ICMPStatus),
		string(res.SNMPStatus),
		at,
		res.ICMPStatus != models.StatusUnknown,
		res.SNMPStatus != models.StatusUnknown,
	)
	if err != nil {
		return fmt.Errorf("store: update status %s: %w", deviceID, err)
	}
	return nil
}
