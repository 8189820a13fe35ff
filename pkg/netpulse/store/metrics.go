package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridwatch/netpulse/models"
)

// MetricsRepo writes npm.device_metrics (append-only) and the interface
// dimension + npm.interface_metrics pair.
type MetricsRepo struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// InsertDeviceMetrics appends one sample row. Unset pointer fields become
// NULL columns.
func (r *MetricsRepo) InsertDeviceMetrics(ctx context.Context, m *models.DeviceMetrics) error {
	var services []byte
	if len(m.ServicesStatus) > 0 {
		var err error
		services, err = json.Marshal(m.ServicesStatus)
		if err != nil {
			return fmt.Errorf("store: marshal services_status: %w", err)
		}
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO npm.device_metrics (
			device_id, collected_at,
			icmp_reachable, icmp_latency_ms, icmp_packet_loss_percent,
			cpu_utilization, memory_utilization, memory_total_bytes, memory_used_bytes,
			disk_utilization, disk_total_bytes, disk_used_bytes,
			swap_utilization, swap_total_bytes,
			uptime_seconds,
			total_interfaces, interfaces_up, interfaces_down,
			total_in_octets, total_out_octets, total_in_errors, total_out_errors,
			services_status, is_available
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23::jsonb, $24
		)`,
		m.DeviceID, m.Timestamp,
		m.ICMPReachable, m.ICMPLatencyMs, m.ICMPPacketLossPercent,
		m.CPUUtilization, m.MemoryUtilization, m.MemoryTotalBytes, m.MemoryUsedBytes,
		m.DiskUtilization, m.DiskTotalBytes, m.DiskUsedBytes,
		m.SwapUtilization, m.SwapTotalBytes,
		m.UptimeSeconds,
		m.InterfaceCount, m.InterfacesUp, m.InterfacesDown,
		int64(m.TotalInOctets), int64(m.TotalOutOctets),
		int64(m.TotalInErrors), int64(m.TotalOutErrors),
		services, m.IsAvailable,
	)
	if err != nil {
		return fmt.Errorf("store: insert device metrics %s: %w", m.DeviceID, err)
	}
	return nil
}

// UpsertInterface creates or refreshes the interface dimension row keyed by
// (device_id, if_index) and returns its ID. Attributes only overwrite when
// the new sample actually carries them.
func (r *MetricsRepo) UpsertInterface(ctx context.Context, deviceID string, s *models.InterfaceSample) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO npm.interfaces (device_id, if_index, name, speed_mbps, admin_status, oper_status)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
		ON CONFLICT (device_id, if_index)
		DO UPDATE SET
			name = COALESCE(EXCLUDED.name, npm.interfaces.name),
			speed_mbps = COALESCE(EXCLUDED.speed_mbps, npm.interfaces.speed_mbps),
			admin_status = COALESCE(EXCLUDED.admin_status, npm.interfaces.admin_status),
			oper_status = COALESCE(EXCLUDED.oper_status, npm.interfaces.oper_status),
			updated_at = NOW()
		RETURNING id`,
		deviceID, s.IfIndex, s.Name, s.SpeedMbps,
		string(s.AdminStatus), string(s.OperStatus),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("store: upsert interface %s/%d: %w", deviceID, s.IfIndex, err)
	}
	return id, nil
}

// InsertInterfaceMetrics appends one counter sample for an interface.
func (r *MetricsRepo) InsertInterfaceMetrics(ctx context.Context, interfaceID string, m *models.DeviceMetrics, s *models.InterfaceSample) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO npm.interface_metrics (
			interface_id, collected_at,
			in_octets, out_octets, in_errors, out_errors,
			in_discards, out_discards, speed_mbps,
			admin_status, oper_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		interfaceID, m.Timestamp,
		int64(s.InOctets), int64(s.OutOctets),
		int64(s.InErrors), int64(s.OutErrors),
		int64(s.InDiscards), int64(s.OutDiscards),
		s.SpeedMbps,
		string(s.AdminStatus), string(s.OperStatus),
	)
	if err != nil {
		return fmt.Errorf("store: insert interface metrics %s: %w", interfaceID, err)
	}
	return nil
}
