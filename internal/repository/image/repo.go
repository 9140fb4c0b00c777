package image

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"github.com/wb-go/wbf/dbpg"

	"github.com/aliskhannn/image-converter/internal/model"
)

var ErrConversionNotFound = errors.New("conversion not found")

//go:embed migrations
var embedMigrations embed.FS

// Migrate applies the embedded goose migrations to db.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose set dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	return nil
}

// Repository stores the history of conversions in the database.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new Repository with the given DB connection.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// SaveConversion inserts a conversion record and returns its UUID.
func (r *Repository) SaveConversion(ctx context.Context, c model.Conversion) (uuid.UUID, error) {
	query := `
		INSERT INTO conversions (logical_name, image_name, path, format, thumbnails)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	thumbs := c.Thumbnails
	if thumbs == nil {
		thumbs = []string{}
	}

	thumbsJSON, err := json.Marshal(thumbs)
	if err != nil {
		return uuid.Nil, fmt.Errorf("save: failed to marshal thumbnails: %w", err)
	}

	var id uuid.UUID
	err = r.db.Master.QueryRowContext(
		ctx, query, c.LogicalName, c.ImageName, c.Path, c.Format, thumbsJSON,
	).Scan(&id, &c.CreatedAt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("save: failed to save conversion: %w", err)
	}

	return id, nil
}

// LatestConversion returns the most recent conversion of a logical name
// under path.
func (r *Repository) LatestConversion(ctx context.Context, path, logical string) (model.Conversion, error) {
	query := `
		SELECT id, logical_name, image_name, path, format, thumbnails, created_at
		FROM conversions
		WHERE path = $1 AND logical_name = $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	var c model.Conversion
	var thumbsBytes []byte

	err := r.db.QueryRowContext(
		ctx, query, path, logical,
	).Scan(&c.ID, &c.LogicalName, &c.ImageName, &c.Path, &c.Format, &thumbsBytes, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Conversion{}, ErrConversionNotFound
		}

		return model.Conversion{}, fmt.Errorf("latest: failed to get conversion: %w", err)
	}

	if err := json.Unmarshal(thumbsBytes, &c.Thumbnails); err != nil {
		return model.Conversion{}, fmt.Errorf("latest: failed to unmarshal thumbnails: %w", err)
	}

	return c, nil
}
