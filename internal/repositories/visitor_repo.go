package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BradenHooton/iplanding/internal/database"
	"github.com/BradenHooton/iplanding/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// VisitorRepository stores visitor records in visitor_logs.
type VisitorRepository struct {
	pool *pgxpool.Pool
}

func NewVisitorRepository(db *database.DB) *VisitorRepository {
	return &VisitorRepository{pool: db.Pool}
}

const visitorColumns = `
	id, category, ip_address, geo_status, geo_reason,
	country, country_code, region, city, postal_code, latitude, longitude,
	timezone, calling_code, currency, languages, asn, organization,
	network, continent_code, in_eu, utc_offset, country_code_iso3,
	country_capital, currency_name, hostname,
	user_agent, is_bot, form_data, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVisitorRow(scanner rowScanner) (*models.VisitorRecord, error) {
	var (
		v         models.VisitorRecord
		geoReason *string
		lat, lon  *float64
		formData  []byte
	)
	g := &v.Geo

	err := scanner.Scan(
		&v.ID, &v.Category, &v.IPAddress, &v.GeoStatus, &geoReason,
		&g.Country, &g.CountryCode, &g.Region, &g.City, &g.PostalCode, &lat, &lon,
		&g.Timezone, &g.CallingCode, &g.Currency, &g.Languages, &g.ASN, &g.Organization,
		&g.Network, &g.ContinentCode, &g.InEU, &g.UTCOffset, &g.CountryISO3,
		&g.CountryCapital, &g.CurrencyName, &g.Hostname,
		&v.UserAgent, &v.IsBot, &formData, &v.Timestamp,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if geoReason != nil {
		v.GeoReason = *geoReason
	}
	if lat != nil && lon != nil {
		g.Coordinates = &models.Coordinates{Latitude: *lat, Longitude: *lon}
	}
	if len(formData) > 0 {
		var form models.FormFields
		if err := json.Unmarshal(formData, &form); err != nil {
			return nil, fmt.Errorf("failed to decode form data: %w", err)
		}
		v.Form = &form
	}
	v.Timestamp = v.Timestamp.UTC()

	return &v, nil
}

func scanVisitorRows(rows pgx.Rows) ([]*models.VisitorRecord, error) {
	defer rows.Close()

	visitors := make([]*models.VisitorRecord, 0)
	for rows.Next() {
		v, err := scanVisitorRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan visitor: %w", err)
		}
		visitors = append(visitors, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", database.MapPostgresError(err))
	}
	return visitors, nil
}

func coordinates(c *models.Coordinates) (lat, lon *float64) {
	if c == nil {
		return nil, nil
	}
	return &c.Latitude, &c.Longitude
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// CountSubmissionsSince counts submissions from ipAddress at or after since.
func (r *VisitorRepository) CountSubmissionsSince(ctx context.Context, ipAddress string, since time.Time) (int, error) {
	return r.countSince(ctx, models.CategorySubmission, ipAddress, since)
}

// CountPageViewsSince counts page views from ipAddress at or after since.
func (r *VisitorRepository) CountPageViewsSince(ctx context.Context, ipAddress string, since time.Time) (int, error) {
	return r.countSince(ctx, models.CategoryPageView, ipAddress, since)
}

func (r *VisitorRepository) countSince(ctx context.Context, category models.VisitorCategory, ipAddress string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM visitor_logs
		WHERE ip_address = $1 AND category = $2 AND created_at >= $3
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, ipAddress, category, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s records: %w", category, database.MapPostgresError(err))
	}
	return count, nil
}

// Insert stores record and returns its ID.
func (r *VisitorRepository) Insert(ctx context.Context, record *models.VisitorRecord) (uuid.UUID, error) {
	var formData []byte
	if record.Form != nil {
		data, err := json.Marshal(record.Form)
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to encode form data: %w", err)
		}
		formData = data
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	g := record.Geo
	lat, lon := coordinates(g.Coordinates)

	query := `
		INSERT INTO visitor_logs (` + visitorColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		        $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30)
		RETURNING id
	`

	var id uuid.UUID
	err := r.pool.QueryRow(ctx, query,
		record.ID, record.Category, record.IPAddress, record.GeoStatus, nullableString(record.GeoReason),
		g.Country, g.CountryCode, g.Region, g.City, g.PostalCode, lat, lon,
		g.Timezone, g.CallingCode, g.Currency, g.Languages, g.ASN, g.Organization,
		g.Network, g.ContinentCode, g.InEU, g.UTCOffset, g.CountryISO3,
		g.CountryCapital, g.CurrencyName, g.Hostname,
		record.UserAgent, record.IsBot, formData, record.Timestamp,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert visitor record: %w", database.MapPostgresError(err))
	}
	return id, nil
}

// List returns records newest first.
func (r *VisitorRepository) List(ctx context.Context, filter models.ListFilter) ([]*models.VisitorRecord, error) {
	query := `SELECT ` + visitorColumns + ` FROM visitor_logs`
	if filter.LocatedOnly {
		query += ` WHERE geo_status = 'resolved'`
	}
	query += ` ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list visitors: %w", database.MapPostgresError(err))
	}
	return scanVisitorRows(rows)
}

func (r *VisitorRepository) Count(ctx context.Context, locatedOnly bool) (int64, error) {
	query := `SELECT COUNT(*) FROM visitor_logs`
	if locatedOnly {
		query += ` WHERE geo_status = 'resolved'`
	}

	var count int64
	if err := r.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count visitors: %w", database.MapPostgresError(err))
	}
	return count, nil
}

func (r *VisitorRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.VisitorRecord, error) {
	query := `SELECT ` + visitorColumns + ` FROM visitor_logs WHERE id = $1`
	return scanVisitorRow(r.pool.QueryRow(ctx, query, id))
}

// Stats aggregates the whole table. topCountries limits the country list.
func (r *VisitorRepository) Stats(ctx context.Context, topCountries int) (*models.VisitorStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(DISTINCT ip_address),
			COUNT(*) FILTER (WHERE category = 'submission'),
			COUNT(*) FILTER (WHERE is_bot),
			COUNT(*) FILTER (WHERE geo_status = 'degraded')
		FROM visitor_logs
	`

	stats := &models.VisitorStats{}
	err := r.pool.QueryRow(ctx, query).Scan(
		&stats.TotalVisitors, &stats.UniqueIPs, &stats.FormSubmissions,
		&stats.BotVisits, &stats.DegradedLookups,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", database.MapPostgresError(err))
	}

	countryQuery := `
		SELECT country, COUNT(*) AS visits
		FROM visitor_logs
		WHERE country IS NOT NULL
		GROUP BY country
		ORDER BY visits DESC, country
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, countryQuery, topCountries)
	if err != nil {
		return nil, fmt.Errorf("failed to load top countries: %w", database.MapPostgresError(err))
	}
	defer rows.Close()

	stats.TopCountries = make([]models.CountryCount, 0, topCountries)
	for rows.Next() {
		var cc models.CountryCount
		if err := rows.Scan(&cc.Country, &cc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan country: %w", err)
		}
		stats.TopCountries = append(stats.TopCountries, cc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return stats, nil
}

// DailyStats groups records since the given time by UTC day.
func (r *VisitorRepository) DailyStats(ctx context.Context, since time.Time) ([]models.DailyStat, error) {
	query := `
		SELECT
			to_char(date_trunc('day', created_at AT TIME ZONE 'UTC'), 'YYYY-MM-DD') AS day,
			COUNT(*),
			COUNT(*) FILTER (WHERE category = 'submission'),
			COUNT(DISTINCT ip_address)
		FROM visitor_logs
		WHERE created_at >= $1
		GROUP BY day
		ORDER BY day
	`

	rows, err := r.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load daily stats: %w", database.MapPostgresError(err))
	}
	defer rows.Close()

	stats := make([]models.DailyStat, 0)
	for rows.Next() {
		var d models.DailyStat
		if err := rows.Scan(&d.Date, &d.Visits, &d.Submissions, &d.UniqueIPs); err != nil {
			return nil, fmt.Errorf("failed to scan daily stat: %w", err)
		}
		stats = append(stats, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return stats, nil
}

// ListDegraded returns the newest records whose lookup degraded, skipping
// local and invalid addresses that would degrade again.
func (r *VisitorRepository) ListDegraded(ctx context.Context, limit int) ([]*models.VisitorRecord, error) {
	query := `SELECT ` + visitorColumns + ` FROM visitor_logs
		WHERE geo_status = 'degraded' AND COALESCE(geo_reason, '') <> 'invalid_ip'
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list degraded visitors: %w", database.MapPostgresError(err))
	}
	return scanVisitorRows(rows)
}

// UpdateLocation replaces the geolocation columns of one record.
func (r *VisitorRepository) UpdateLocation(ctx context.Context, id uuid.UUID, result models.GeoResult) error {
	g := result.Record
	lat, lon := coordinates(g.Coordinates)

	query := `
		UPDATE visitor_logs SET
			geo_status = $2, geo_reason = $3,
			country = $4, country_code = $5, region = $6, city = $7, postal_code = $8,
			latitude = $9, longitude = $10, timezone = $11, calling_code = $12,
			currency = $13, languages = $14, asn = $15, organization = $16,
			network = $17, continent_code = $18, in_eu = $19, utc_offset = $20,
			country_code_iso3 = $21, country_capital = $22, currency_name = $23, hostname = $24
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query,
		id, result.Status, nullableString(result.Reason),
		g.Country, g.CountryCode, g.Region, g.City, g.PostalCode,
		lat, lon, g.Timezone, g.CallingCode,
		g.Currency, g.Languages, g.ASN, g.Organization,
		g.Network, g.ContinentCode, g.InEU, g.UTCOffset,
		g.CountryISO3, g.CountryCapital, g.CurrencyName, g.Hostname,
	)
	if err != nil {
		return fmt.Errorf("failed to update location: %w", database.MapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteOlderThan removes page views created before cutoff. Submissions are kept.
func (r *VisitorRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM visitor_logs WHERE created_at < $1 AND category = $2`, cutoff, models.CategoryPageView)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old visitors: %w", database.MapPostgresError(err))
	}
	return tag.RowsAffected(), nil
}
