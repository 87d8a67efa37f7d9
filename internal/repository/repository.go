package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/septivank/smartbag-service/internal/db"
	"github.com/septivank/smartbag-service/internal/device"
)

const uniqueViolation = "23505"

var _ device.Store = (*PostgresStore)(nil)

// PostgresStore keeps device records in PostgreSQL. Zone and battery state live in JSONB
// columns and are patched key by key so concurrent telemetry and control writes stay disjoint.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new repository
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks the database is reachable
func (r *PostgresStore) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Create inserts a new device
func (r *PostgresStore) Create(ctx context.Context, d *device.Device) error {
	row, err := db.NewDeviceRow(d)
	if err != nil {
		return err
	}

	query := `INSERT INTO devices (` + db.DeviceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	_, err = r.pool.Exec(ctx, query,
		row.ID,
		row.DeviceCode,
		row.SecretHash,
		row.Name,
		row.BagType,
		row.OwnerID,
		row.IsClaimed,
		row.ClaimedAt,
		row.Status,
		row.LastSeen,
		row.HotZone,
		row.ColdZone,
		row.Battery,
		row.HardwareVersion,
		row.FirmwareVersion,
		row.ManufacturingDate,
		row.CreatedAt,
		row.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", device.ErrCodeConflict, d.DeviceCode)
		}
		return fmt.Errorf("failed to insert device: %w", err)
	}
	return nil
}

// FindByID retrieves a device by its ID
func (r *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*device.Device, error) {
	query := `SELECT ` + db.DeviceColumns + ` FROM devices WHERE id = $1`

	d, err := scanDevice(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %s", device.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to find device by id: %w", err)
	}
	return d, nil
}

// FindByCode retrieves a device by its code
func (r *PostgresStore) FindByCode(ctx context.Context, code string) (*device.Device, error) {
	query := `SELECT ` + db.DeviceColumns + ` FROM devices WHERE device_code = $1`

	d, err := scanDevice(r.pool.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: code %s", device.ErrNotFound, code)
		}
		return nil, fmt.Errorf("failed to find device by code: %w", err)
	}
	return d, nil
}

// ListByOwner returns the owner's claimed devices, newest claim first
func (r *PostgresStore) ListByOwner(ctx context.Context, ownerID string) ([]*device.Device, error) {
	query := `SELECT ` + db.DeviceColumns + `
		FROM devices
		WHERE owner_id = $1 AND is_claimed = TRUE
		ORDER BY claimed_at DESC, id ASC`

	return r.queryDevices(ctx, query, ownerID)
}

// ListAll returns every device
func (r *PostgresStore) ListAll(ctx context.Context) ([]*device.Device, error) {
	query := `SELECT ` + db.DeviceColumns + ` FROM devices ORDER BY created_at ASC, id ASC`

	return r.queryDevices(ctx, query)
}

// Claim binds an unclaimed device to an owner. The WHERE clause makes this a
// compare-and-swap on is_claimed, so of two racing claims exactly one wins.
func (r *PostgresStore) Claim(ctx context.Context, code, ownerID, name string, at time.Time) (*device.Device, error) {
	query := `
		UPDATE devices
		SET owner_id = $2,
			is_claimed = TRUE,
			claimed_at = $4,
			last_seen = $4,
			name = CASE WHEN $3 = '' THEN name ELSE $3 END,
			updated_at = $4
		WHERE device_code = $1 AND is_claimed = FALSE
		RETURNING ` + db.DeviceColumns

	d, err := scanDevice(r.pool.QueryRow(ctx, query, code, ownerID, name, at))
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to claim device: %w", err)
	}

	// Nothing updated: either the code is unknown or someone else holds it
	if _, findErr := r.FindByCode(ctx, code); findErr != nil {
		return nil, findErr
	}
	return nil, fmt.Errorf("%w: code %s", device.ErrAlreadyClaimed, code)
}

// Touch updates last_seen
func (r *PostgresStore) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE devices SET last_seen = $2, updated_at = $2 WHERE id = $1`
	return r.execOne(ctx, id, query, id, at)
}

// SetStatus updates the online flag and last_seen
func (r *PostgresStore) SetStatus(ctx context.Context, id uuid.UUID, online bool, at time.Time) error {
	query := `UPDATE devices SET status = $2, last_seen = $3, updated_at = $3 WHERE id = $1`
	return r.execOne(ctx, id, query, id, online, at)
}

// UpdateZoneReading patches current temperature and humidity of a zone
func (r *PostgresStore) UpdateZoneReading(ctx context.Context, id uuid.UUID, zone device.Zone, reading device.ZoneReading, at time.Time) error {
	column, guard := zoneColumn(zone)
	query := fmt.Sprintf(`
		UPDATE devices
		SET %[1]s = %[1]s || jsonb_build_object('currentTemp', $2::float8, 'humidity', $3::float8),
			last_seen = $4,
			updated_at = $4
		WHERE id = $1%[2]s`, column, guard)

	return r.execZone(ctx, id, zone, query, id, reading.Temp, reading.Humidity, at)
}

// UpdateBattery overwrites the battery document
func (r *PostgresStore) UpdateBattery(ctx context.Context, id uuid.UUID, b device.Battery, at time.Time) error {
	query := `
		UPDATE devices
		SET battery = jsonb_build_object('chargeLevel', $2::float8, 'voltage', $3::float8, 'isCharging', $4::boolean),
			last_seen = $5,
			updated_at = $5
		WHERE id = $1`

	return r.execOne(ctx, id, query, id, b.ChargeLevel, b.Voltage, b.IsCharging, at)
}

// UpdateZoneSettings patches target temperature and actuator flags of a zone
func (r *PostgresStore) UpdateZoneSettings(ctx context.Context, id uuid.UUID, zone device.Zone, s device.ZoneSettings, at time.Time) error {
	column, guard := zoneColumn(zone)
	actuator := "heaterOn"
	if zone == device.ZoneCold {
		actuator = "coolerOn"
	}
	query := fmt.Sprintf(`
		UPDATE devices
		SET %[1]s = %[1]s || jsonb_build_object('targetTemp', $2::float8, '%[3]s', $3::boolean, 'fanOn', $4::boolean),
			updated_at = $5
		WHERE id = $1%[2]s`, column, guard, actuator)

	return r.execZone(ctx, id, zone, query, id, s.TargetTemp, s.ActuatorOn, s.FanOn, at)
}

// UpdateSafetyBounds replaces the safety window of a zone
func (r *PostgresStore) UpdateSafetyBounds(ctx context.Context, id uuid.UUID, zone device.Zone, b device.SafetyBounds, at time.Time) error {
	column, guard := zoneColumn(zone)
	query := fmt.Sprintf(`
		UPDATE devices
		SET %[1]s = %[1]s || jsonb_build_object('safety', jsonb_build_object('low', $2::float8, 'high', $3::float8)),
			updated_at = $4
		WHERE id = $1%[2]s`, column, guard)

	return r.execZone(ctx, id, zone, query, id, b.Low, b.High, at)
}

// BeginTx starts a new transaction
func (r *PostgresStore) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// AppendObservation inserts a sample and trims the series to the newest keep entries
func (r *PostgresStore) AppendObservation(ctx context.Context, id uuid.UUID, o device.Observation, keep int) error {
	tx, err := r.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	insertQuery := `
		INSERT INTO device_observations (device_id, component, temp, humidity, charge_level, voltage, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = tx.Exec(ctx, insertQuery, id, string(o.Component), o.Temp, o.Humidity, o.ChargeLevel, o.Voltage, o.RecordedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("%w: id %s", device.ErrNotFound, id)
		}
		return fmt.Errorf("failed to insert observation: %w", err)
	}

	trimQuery := `
		DELETE FROM device_observations
		WHERE device_id = $1 AND component = $2 AND id NOT IN (
			SELECT id FROM device_observations
			WHERE device_id = $1 AND component = $2
			ORDER BY recorded_at DESC, id DESC
			LIMIT $3
		)`

	if _, err := tx.Exec(ctx, trimQuery, id, string(o.Component), keep); err != nil {
		return fmt.Errorf("failed to trim observations: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListObservations returns samples newer than since, newest first
func (r *PostgresStore) ListObservations(ctx context.Context, id uuid.UUID, c device.Component, since time.Time, limit int) ([]device.Observation, error) {
	query := `
		SELECT id, device_id, component, temp, humidity, charge_level, voltage, recorded_at
		FROM device_observations
		WHERE device_id = $1 AND component = $2 AND recorded_at > $3
		ORDER BY recorded_at DESC, id DESC
		LIMIT $4`

	rows, err := r.pool.Query(ctx, query, id, string(c), since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	observations := []device.Observation{}
	for rows.Next() {
		var row db.ObservationRow
		if err := rows.Scan(&row.ID, &row.DeviceID, &row.Component, &row.Temp, &row.Humidity, &row.ChargeLevel, &row.Voltage, &row.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		observations = append(observations, row.ToObservation())
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return observations, nil
}

func (r *PostgresStore) queryDevices(ctx context.Context, query string, args ...any) ([]*device.Device, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	devices := []*device.Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return devices, nil
}

// execOne runs an update that must hit exactly the device with id
func (r *PostgresStore) execOne(ctx context.Context, id uuid.UUID, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %s", device.ErrNotFound, id)
	}
	return nil
}

// execZone runs a zone update; a miss on the cold zone is told apart from a missing device
func (r *PostgresStore) execZone(ctx context.Context, id uuid.UUID, zone device.Zone, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s zone: %w", zone, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s zone on device %s", device.ErrUnsupportedZone, zone, id)
}

// zoneColumn maps a zone to its JSONB column and the extra WHERE guard it needs.
// Only fixed identifiers are returned, never user input.
func zoneColumn(zone device.Zone) (column, guard string) {
	if zone == device.ZoneCold {
		return "cold_zone", " AND bag_type = 'dual-zone' AND cold_zone IS NOT NULL"
	}
	return "hot_zone", ""
}

func scanDevice(row pgx.Row) (*device.Device, error) {
	var r db.DeviceRow
	if err := row.Scan(r.ScanTargets()...); err != nil {
		return nil, err
	}
	return r.ToDevice()
}
