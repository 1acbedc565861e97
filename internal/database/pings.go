package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ieraasyl/PingService/internal/models"
	"github.com/ieraasyl/PingService/pkg/utils"
)

const pingColumns = `id, user_id, latitude, longitude, timestamp, parent_ping_id`

// pingOrderColumns whitelists the sortable columns. Only values from this
// map are ever interpolated into SQL.
var pingOrderColumns = map[string]string{
	models.PingOrderTimestamp: "timestamp",
	models.PingOrderLatitude:  "latitude",
	models.PingOrderLongitude: "longitude",
}

// CreatePing inserts a ping. When a parent is given the parent row is locked
// with FOR KEY SHARE inside the same transaction, so it cannot be deleted
// between the existence check and the insert.
//
// A nil latitude or longitude is sent as NULL and rejected by the column
// constraint; the violation comes back as a validation error on that field.
func (p *PostgresDB) CreatePing(ctx context.Context, np models.NewPing) (*models.Ping, error) {
	var ping *models.Ping

	start := time.Now()
	err := p.WithTransaction(ctx, func(tx *sql.Tx) error {
		if np.ParentPingID != nil {
			if err := lockPing(ctx, tx, *np.ParentPingID); err != nil {
				return err
			}
		}

		query := `
			INSERT INTO pings (user_id, latitude, longitude, parent_ping_id)
			VALUES ($1, $2, $3, $4)
			RETURNING ` + pingColumns

		var err error
		ping, err = scanPing(tx.QueryRowContext(ctx, query,
			np.UserID,
			np.Latitude,
			np.Longitude,
			np.ParentPingID,
		))
		if err != nil {
			return fmt.Errorf("failed to insert ping: %w", mapPQError(err))
		}
		return nil
	})
	p.observe("create_ping", start, err)
	if err != nil {
		return nil, err
	}

	return ping, nil
}

// lockPing takes a key-share lock on a ping row, failing with a parent_ping
// validation error when the row does not exist.
func lockPing(ctx context.Context, q Querier, id int64) error {
	var found int64
	err := q.QueryRowContext(ctx, `SELECT id FROM pings WHERE id = $1 FOR KEY SHARE`, id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return utils.FieldError("parent_ping", MsgInvalidPK)
	}
	if err != nil {
		return fmt.Errorf("failed to lock parent ping: %w", err)
	}
	return nil
}

// RespondToPing creates a reply to parentID in a single INSERT ... SELECT, so
// the existence check and the insert are one statement. Returns
// utils.ErrNotFound when the parent does not exist.
func (p *PostgresDB) RespondToPing(ctx context.Context, parentID int64, np models.NewPing) (*models.Ping, error) {
	query := `
		INSERT INTO pings (user_id, latitude, longitude, parent_ping_id)
		SELECT $1, $2, $3, id FROM pings WHERE id = $4
		RETURNING ` + pingColumns

	start := time.Now()
	ping, err := scanPing(p.db.QueryRowContext(ctx, query,
		np.UserID,
		np.Latitude,
		np.Longitude,
		parentID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		p.observe("respond_ping", start, nil)
		return nil, utils.ErrNotFound
	}
	p.observe("respond_ping", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to respond to ping: %w", mapPQError(err))
	}

	return ping, nil
}

// GetPing returns a ping and the ids of its direct replies.
func (p *PostgresDB) GetPing(ctx context.Context, id int64) (*models.PingDetail, error) {
	start := time.Now()
	ping, err := scanPing(p.db.QueryRowContext(ctx,
		`SELECT `+pingColumns+` FROM pings WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		p.observe("get_ping", start, nil)
		return nil, utils.ErrNotFound
	}
	if err != nil {
		p.observe("get_ping", start, err)
		return nil, fmt.Errorf("failed to get ping: %w", err)
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT id FROM pings WHERE parent_ping_id = $1 ORDER BY id`, id)
	if err != nil {
		p.observe("get_ping", start, err)
		return nil, fmt.Errorf("failed to get child pings: %w", err)
	}
	defer rows.Close()

	children := []int64{}
	for rows.Next() {
		var childID int64
		if err := rows.Scan(&childID); err != nil {
			return nil, fmt.Errorf("failed to scan child ping: %w", err)
		}
		children = append(children, childID)
	}
	err = rows.Err()
	p.observe("get_ping", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to iterate child pings: %w", err)
	}

	return &models.PingDetail{Ping: *ping, ChildPings: children}, nil
}

// ListPings returns one page of pings matching the filter and the total
// number of matches.
func (p *PostgresDB) ListPings(ctx context.Context, filter models.PingFilter) ([]models.Ping, int64, error) {
	listQuery, countQuery, args, err := buildPingListQuery(filter)
	if err != nil {
		return nil, 0, err
	}

	start := time.Now()

	var total int64
	// The count query uses only the filter arguments; limit and offset are
	// always the last two.
	if err := p.db.QueryRowContext(ctx, countQuery, args[:len(args)-2]...).Scan(&total); err != nil {
		p.observe("list_pings", start, err)
		return nil, 0, fmt.Errorf("failed to count pings: %w", err)
	}

	pings, err := p.queryPings(ctx, listQuery, args...)
	p.observe("list_pings", start, err)
	if err != nil {
		return nil, 0, err
	}

	return pings, total, nil
}

// LatestPings returns the n most recent pings across all users, newest
// first. Pings sharing a timestamp are ordered by id, newest id first.
func (p *PostgresDB) LatestPings(ctx context.Context, n int) ([]models.Ping, error) {
	query := `SELECT ` + pingColumns + ` FROM pings ORDER BY timestamp DESC, id DESC LIMIT $1`

	start := time.Now()
	pings, err := p.queryPings(ctx, query, n)
	p.observe("latest_pings", start, err)
	return pings, err
}

// UpdatePing applies a partial location update to a ping owned by ownerID.
// A ping that does not exist and a ping owned by someone else are both
// reported as utils.ErrNotFound.
func (p *PostgresDB) UpdatePing(ctx context.Context, id int64, ownerID uuid.UUID, upd models.PingUpdate) (*models.Ping, error) {
	query := `
		UPDATE pings
		SET latitude = COALESCE($3, latitude),
			longitude = COALESCE($4, longitude)
		WHERE id = $1 AND user_id = $2
		RETURNING ` + pingColumns

	start := time.Now()
	ping, err := scanPing(p.db.QueryRowContext(ctx, query, id, ownerID, upd.Latitude, upd.Longitude))
	if errors.Is(err, sql.ErrNoRows) {
		p.observe("update_ping", start, nil)
		return nil, utils.ErrNotFound
	}
	p.observe("update_ping", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to update ping: %w", mapPQError(err))
	}

	return ping, nil
}

// DeletePing deletes a ping owned by ownerID. Replies keep existing with a
// NULL parent through ON DELETE SET NULL.
func (p *PostgresDB) DeletePing(ctx context.Context, id int64, ownerID uuid.UUID) error {
	start := time.Now()
	result, err := p.db.ExecContext(ctx, `DELETE FROM pings WHERE id = $1 AND user_id = $2`, id, ownerID)
	p.observe("delete_ping", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete ping: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return utils.ErrNotFound
	}

	return nil
}

func (p *PostgresDB) queryPings(ctx context.Context, query string, args ...interface{}) ([]models.Ping, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pings: %w", err)
	}
	defer rows.Close()

	pings := []models.Ping{}
	for rows.Next() {
		ping, err := scanPing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ping: %w", err)
		}
		pings = append(pings, *ping)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pings: %w", err)
	}

	return pings, nil
}

// buildPingListQuery renders the listing and count statements for a filter.
// The returned args end with limit and offset, which only the listing
// statement uses.
func buildPingListQuery(f models.PingFilter) (listQuery, countQuery string, args []interface{}, err error) {
	order := f.Order
	if order.Field == "" {
		order = models.DefaultPingOrder
	}
	column, ok := pingOrderColumns[order.Field]
	if !ok {
		return "", "", nil, utils.FieldError("ordering", fmt.Sprintf("Cannot order by %q.", order.Field))
	}
	direction := "ASC"
	if order.Descending {
		direction = "DESC"
	}

	var conds []string
	if f.UserID != nil {
		args = append(args, *f.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Timestamp != nil {
		args = append(args, f.Timestamp.UTC())
		conds = append(conds, fmt.Sprintf("timestamp = $%d", len(args)))
	}
	if f.Day != nil {
		day := f.Day.UTC()
		args = append(args, day, day.Add(24*time.Hour))
		conds = append(conds, fmt.Sprintf("timestamp >= $%d AND timestamp < $%d", len(args)-1, len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	countQuery = `SELECT COUNT(*) FROM pings` + where

	limit := f.Limit
	if limit <= 0 {
		limit = utils.DefaultPageSize
	}
	args = append(args, limit, f.Offset)
	listQuery = fmt.Sprintf(`SELECT %s FROM pings%s ORDER BY %s %s, id %s LIMIT $%d OFFSET $%d`,
		pingColumns, where, column, direction, direction, len(args)-1, len(args))

	return listQuery, countQuery, args, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPing(row rowScanner) (*models.Ping, error) {
	var ping models.Ping
	var parent sql.NullInt64
	err := row.Scan(
		&ping.ID,
		&ping.UserID,
		&ping.Latitude,
		&ping.Longitude,
		&ping.Timestamp,
		&parent,
	)
	if err != nil {
		return nil, err
	}
	ping.Timestamp = ping.Timestamp.UTC()
	if parent.Valid {
		id := parent.Int64
		ping.ParentPingID = &id
	}
	return &ping, nil
}
