package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/example/trip-tracking/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) FindByTripID(ctx context.Context, tripID string) (*models.Trip, error) {
	row := p.db.QueryRowContext(ctx, `SELECT trip_id, status, driver_id, customer_id, user_lat, user_lng, driver_lat, driver_lng, created_at, updated_at FROM trips WHERE trip_id=$1`, tripID)

	var (
		t                    models.Trip
		status               string
		driverID, customerID sql.NullString
		userLat, userLng     sql.NullFloat64
		driverLat, driverLng sql.NullFloat64
	)
	err := row.Scan(&t.TripID, &status, &driverID, &customerID, &userLat, &userLng, &driverLat, &driverLng, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Status = models.TripStatus(status)
	t.DriverID = driverID.String
	t.CustomerID = customerID.String
	if userLat.Valid && userLng.Valid {
		t.UserLocation = &models.Location{Lat: userLat.Float64, Lng: userLng.Float64}
	}
	if driverLat.Valid && driverLng.Valid {
		t.CurrentDriverLocation = &models.Location{Lat: driverLat.Float64, Lng: driverLng.Float64}
	}
	return &t, nil
}

func (p *PostgresStore) Create(ctx context.Context, t *models.Trip) error {
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	_, err := p.db.ExecContext(ctx, `INSERT INTO trips(trip_id, status, driver_id, customer_id, user_lat, user_lng, driver_lat, driver_lng, created_at, updated_at) VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		t.TripID, string(t.Status), nullString(t.DriverID), nullString(t.CustomerID),
		nullLat(t.UserLocation), nullLng(t.UserLocation), nullLat(t.CurrentDriverLocation), nullLng(t.CurrentDriverLocation),
		t.CreatedAt, t.UpdatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

func (p *PostgresStore) Save(ctx context.Context, t *models.Trip) error {
	t.UpdatedAt = time.Now()
	_, err := p.db.ExecContext(ctx, `UPDATE trips SET status=$2, driver_id=$3, customer_id=$4, user_lat=$5, user_lng=$6, driver_lat=$7, driver_lng=$8, updated_at=$9 WHERE trip_id=$1`,
		t.TripID, string(t.Status), nullString(t.DriverID), nullString(t.CustomerID),
		nullLat(t.UserLocation), nullLng(t.UserLocation), nullLat(t.CurrentDriverLocation), nullLng(t.CurrentDriverLocation),
		t.UpdatedAt)
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullLat(l *models.Location) sql.NullFloat64 {
	if l == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: l.Lat, Valid: true}
}

func nullLng(l *models.Location) sql.NullFloat64 {
	if l == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: l.Lng, Valid: true}
}
