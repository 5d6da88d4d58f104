package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"chat-sync-engine/internal/chat"
	"chat-sync-engine/internal/models"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrNotMember = errors.New("not a member of the group")
	ErrForbidden = errors.New("forbidden")
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies the embedded schema migrations. url uses the pgx5://
// scheme.
func Migrate(url string) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	version, dirty, _ := m.Version()
	log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Database schema up to date")
	return nil
}

// ImageSigner turns stored image references into loadable URLs
type ImageSigner interface {
	Resolve(ctx context.Context, ref string) (string, error)
	SignMessages(ctx context.Context, msgs []models.Message)
}

// Backend serves the platform API directly from its Postgres schema
type Backend struct {
	db     *pgxpool.Pool
	codec  *chat.Codec
	signer ImageSigner
	now    func() time.Time
}

// NewBackend creates a new backend. signer may be nil when images are
// stored as absolute URLs.
func NewBackend(db *pgxpool.Pool, codec *chat.Codec, signer ImageSigner) *Backend {
	return &Backend{
		db:     db,
		codec:  codec,
		signer: signer,
		now:    time.Now,
	}
}

// Client is the backend seen by one authenticated user
type Client struct {
	*Backend
	userID string
}

// ForUser returns a client acting as userID
func (b *Backend) ForUser(userID string) *Client {
	return &Client{Backend: b, userID: userID}
}

// UserID returns the user the client acts as
func (c *Client) UserID() string {
	return c.userID
}

func (c *Client) requireMember(ctx context.Context, groupID string) error {
	query := `
		SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)
		    OR EXISTS(SELECT 1 FROM groups WHERE id = $1 AND created_by = $2)
	`
	var ok bool
	if err := c.db.QueryRow(ctx, query, groupID, c.userID).Scan(&ok); err != nil {
		return fmt.Errorf("failed to check membership: %w", err)
	}
	if !ok {
		return ErrNotMember
	}
	return nil
}
