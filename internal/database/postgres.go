package database

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"realtime-chat/internal/models"
	"realtime-chat/pkg/logger"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(ctx context.Context, databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to postgres successfully")
	return &PostgresDB{pool: pool}, nil
}

// Migrate creates the tables if they do not exist yet.
func (db *PostgresDB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// User Repository Implementation
func (db *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT id, username, email, avatar, password_hash, created_at FROM users WHERE email = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, email).Scan(
		&user.ID, &user.Username, &user.Email, &user.Avatar, &user.PasswordHash, &user.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return user, nil
}

func (db *PostgresDB) CreateUser(ctx context.Context, u *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (id, username, email, avatar, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, username, email, avatar, created_at`

	user := &models.User{PasswordHash: u.PasswordHash}
	err := db.pool.QueryRow(ctx, query, uuid.NewString(), u.Username, u.Email, u.Avatar, u.PasswordHash).Scan(
		&user.ID, &user.Username, &user.Email, &user.Avatar, &user.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return nil, fmt.Errorf("email %q: %w", u.Email, ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func (db *PostgresDB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT id, username, email, avatar, created_at FROM users WHERE id = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Username, &user.Email, &user.Avatar, &user.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return user, nil
}

func (db *PostgresDB) GetUsersByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	query := `SELECT id, username, email, avatar, created_at FROM users WHERE id = ANY($1) ORDER BY id`

	rows, err := db.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user := &models.User{}
		if err := rows.Scan(&user.ID, &user.Username, &user.Email, &user.Avatar, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// Room Repository Implementation
const roomColumns = `id, name, kind, is_public, owner_id, status, participant_a, participant_b, created_at`

func scanRoom(row pgx.Row) (*models.Room, error) {
	var (
		room                = &models.Room{}
		name, owner, pa, pb *string
		kind, status        string
	)
	if err := row.Scan(&room.ID, &name, &kind, &room.IsPublic, &owner, &status, &pa, &pb, &room.CreatedAt); err != nil {
		return nil, err
	}
	room.Kind = models.RoomKind(kind)
	room.Status = models.RoomStatus(status)
	if name != nil {
		room.Name = *name
	}
	if owner != nil {
		room.OwnerID = *owner
	}
	if pa != nil && pb != nil {
		room.Participants = []string{*pa, *pb}
	}
	return room, nil
}

func (db *PostgresDB) CreateRoom(ctx context.Context, req *models.CreateRoomRequest, ownerID string) (*models.Room, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO rooms (id, name, kind, is_public, owner_id, status, created_at)
		VALUES ($1, $2, 'channel', $3, $4, 'active', NOW())
		RETURNING ` + roomColumns

	room, err := scanRoom(tx.QueryRow(ctx, query, uuid.NewString(), req.Name, req.IsPublic, ownerID))
	if err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	// The owner is always a member of its channel
	if _, err := tx.Exec(ctx, `INSERT INTO memberships (user_id, room_id) VALUES ($1, $2)`, ownerID, room.ID); err != nil {
		return nil, fmt.Errorf("failed to add owner membership: %w", err)
	}

	return room, tx.Commit(ctx)
}

func (db *PostgresDB) GetOrCreateDirectRoom(ctx context.Context, userA, userB string) (*models.Room, error) {
	a, b := orderedPair(userA, userB)
	query := `
		INSERT INTO rooms (id, kind, is_public, status, participant_a, participant_b, created_at)
		VALUES ($1, 'direct', false, 'active', $2, $3, NOW())
		ON CONFLICT (participant_a, participant_b) DO UPDATE SET participant_a = EXCLUDED.participant_a
		RETURNING ` + roomColumns

	room, err := scanRoom(db.pool.QueryRow(ctx, query, uuid.NewString(), a, b))
	if err != nil {
		return nil, fmt.Errorf("failed to create direct room: %w", err)
	}
	return room, nil
}

func (db *PostgresDB) GetRoomByID(ctx context.Context, id string) (*models.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE id = $1`

	room, err := scanRoom(db.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return room, nil
}

func (db *PostgresDB) ListUserRooms(ctx context.Context, userID string) ([]*models.Room, error) {
	query := `
		SELECT r.id, r.name, r.kind, r.is_public, r.owner_id, r.status, r.participant_a, r.participant_b, r.created_at
		FROM rooms r
		LEFT JOIN memberships m ON r.id = m.room_id AND m.user_id = $1
		WHERE (r.kind = 'channel' AND (r.is_public = true OR m.user_id IS NOT NULL))
		   OR (r.kind = 'direct' AND (r.participant_a = $1 OR r.participant_b = $1))
		ORDER BY r.created_at`

	rows, err := db.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []*models.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// Message Repository Implementation
const messageSelect = `
	SELECT m.id, m.room_id, m.body, m.image, m.image_key, m.status, m.created_at, m.updated_at,
	       u.id, u.username, u.email, u.avatar`

func scanMessage(row pgx.Row) (*models.Message, error) {
	var (
		msg    = &models.Message{}
		status string
	)
	err := row.Scan(
		&msg.ID, &msg.RoomID, &msg.Body, &msg.Image, &msg.ImageKey, &status, &msg.CreatedAt, &msg.UpdatedAt,
		&msg.Sender.ID, &msg.Sender.Username, &msg.Sender.Email, &msg.Sender.Avatar,
	)
	if err != nil {
		return nil, err
	}
	msg.Status = models.MessageStatus(status)
	return msg, nil
}

func (db *PostgresDB) CreateMessage(ctx context.Context, in *models.NewMessage) (*models.Message, error) {
	// One statement: the insert and the sender join commit or fail together.
	query := `
		WITH m AS (
			INSERT INTO messages (id, room_id, sender_id, body, image, image_key, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, 'unread', $7, $7)
			RETURNING id, room_id, sender_id, body, image, image_key, status, created_at, updated_at
		)` + messageSelect + `
		FROM m JOIN users u ON u.id = m.sender_id`

	msg, err := scanMessage(db.pool.QueryRow(ctx, query,
		uuid.NewString(), in.RoomID, in.SenderID, in.Body, in.Image, in.ImageKey, time.Now().UTC(),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	return msg, nil
}

func (db *PostgresDB) GetLastMessage(ctx context.Context, roomID string) (*models.Message, error) {
	query := messageSelect + `
		FROM messages m
		JOIN users u ON m.sender_id = u.id
		WHERE m.room_id = $1
		ORDER BY m.created_at DESC
		LIMIT 1`

	msg, err := scanMessage(db.pool.QueryRow(ctx, query, roomID))
	if err != nil {
		return nil, notFound(err)
	}
	return msg, nil
}

// Membership Repository Implementation
func (db *PostgresDB) AddMembership(ctx context.Context, userID, roomID string) error {
	query := `
		INSERT INTO memberships (user_id, room_id) VALUES ($1, $2)
		ON CONFLICT (user_id, room_id) DO NOTHING`

	_, err := db.pool.Exec(ctx, query, userID, roomID)
	return err
}

func (db *PostgresDB) RemoveMembership(ctx context.Context, userID, roomID string) error {
	query := `DELETE FROM memberships WHERE user_id = $1 AND room_id = $2`
	_, err := db.pool.Exec(ctx, query, userID, roomID)
	return err
}

func (db *PostgresDB) IsMember(ctx context.Context, userID, roomID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM memberships WHERE user_id = $1 AND room_id = $2)`

	var exists bool
	err := db.pool.QueryRow(ctx, query, userID, roomID).Scan(&exists)
	return exists, err
}

func (db *PostgresDB) GetRoomMembers(ctx context.Context, roomID string) ([]*models.Member, error) {
	query := `
		SELECT u.id, u.username, u.email
		FROM memberships m
		JOIN users u ON m.user_id = u.id
		WHERE m.room_id = $1
		ORDER BY u.username`

	rows, err := db.pool.Query(ctx, query, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*models.Member
	for rows.Next() {
		member := &models.Member{}
		if err := rows.Scan(&member.ID, &member.Username, &member.Email); err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	return members, rows.Err()
}
