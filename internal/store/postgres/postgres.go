// Package postgres is a PostgreSQL implementation of store.Store built on pgxpool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alphabot-ai/quill/internal/model"
	"github.com/alphabot-ai/quill/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	pgxPoolNewWithConfig = pgxpool.NewWithConfig
	connectRetries       = 10
	retryDelay           = 2 * time.Second
	pingTimeout          = 2 * time.Second
	sleep                = time.Sleep
)

const uniqueViolation = "23505"

type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn, retrying while the database comes up, and applies pending migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 5 * time.Minute

	var lastErr error
	for i := 0; i < connectRetries; i++ {
		pool, err := pgxPoolNewWithConfig(ctx, cfg)
		if err != nil {
			lastErr = err
			sleep(retryDelay)
			continue
		}
		ctxPing, cancel := context.WithTimeout(ctx, pingTimeout)
		err = pool.Ping(ctxPing)
		cancel()
		if err == nil {
			if err := applySchema(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
			return &Store{pool: pool}, nil
		}
		lastErr = err
		pool.Close()
		sleep(retryDelay)
	}
	return nil, fmt.Errorf("db ping retries exhausted: %w", lastErr)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	username TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS posts (
	id UUID PRIMARY KEY,
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	author_id UUID NOT NULL REFERENCES users(id),
	tags JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	version BIGINT NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at DESC);

CREATE TABLE IF NOT EXISTS post_comments (
	id UUID PRIMARY KEY,
	post_id UUID NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
	user_id UUID NOT NULL,
	text TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	seq INT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_post_comments_post ON post_comments(post_id, seq);

CREATE TABLE IF NOT EXISTS post_likes (
	post_id UUID NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
	user_id UUID NOT NULL,
	seq INT NOT NULL,
	PRIMARY KEY(post_id, user_id)
);
`,
}

func applySchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INT PRIMARY KEY)`); err != nil {
		return err
	}
	var current int
	if err := pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return err
	}
	for i := current; i < len(migrations); i++ {
		if _, err := pool.Exec(ctx, migrations[i]); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := pool.Exec(ctx, `INSERT INTO schema_version (version) VALUES ($1)`, i+1); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.UpdatedAt = user.CreatedAt
	_, err := s.pool.Exec(ctx, `
INSERT INTO users (id, username, email, password_hash, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, user.ID, user.Username, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if isUniqueViolation(err) {
		return store.ErrDuplicateEmail
	}
	return err
}

func (s *Store) GetUser(ctx context.Context, id string) (model.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.User{}, store.ErrNotFound
	}
	row := s.pool.QueryRow(ctx, `
SELECT id::text, username, email, password_hash, created_at, updated_at FROM users WHERE id = $1
`, id)
	return scanUser(row)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (model.User, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id::text, username, email, password_hash, created_at, updated_at FROM users WHERE email = $1
`, email)
	return scanUser(row)
}

func (s *Store) UpdateUser(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
UPDATE users SET username = $1, email = $2, updated_at = $3 WHERE id = $4
`, user.Username, user.Email, user.UpdatedAt, user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateEmail
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) InsertPost(ctx context.Context, post *model.Post) error {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC()
	}
	post.UpdatedAt = post.CreatedAt
	post.Version = 1
	tags, err := encodeTags(post.Tags)
	if err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
INSERT INTO posts (id, title, content, author_id, tags, created_at, updated_at, version)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, post.ID, post.Title, post.Content, post.Author.ID, tags, post.CreatedAt, post.UpdatedAt, post.Version); err != nil {
			return err
		}
		return writeChildren(ctx, tx, post)
	})
}

const selectPost = `
SELECT p.id::text, p.title, p.content, p.author_id::text, COALESCE(u.username, ''), p.tags, p.created_at, p.updated_at, p.version
FROM posts p
LEFT JOIN users u ON u.id = p.author_id
`

func (s *Store) GetPost(ctx context.Context, id string) (model.Post, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Post{}, store.ErrNotFound
	}
	post, err := scanPost(s.pool.QueryRow(ctx, selectPost+`WHERE p.id = $1`, id))
	if err != nil {
		return model.Post{}, err
	}
	if err := s.loadChildren(ctx, &post); err != nil {
		return model.Post{}, err
	}
	return post, nil
}

func (s *Store) SavePost(ctx context.Context, post *model.Post) error {
	if _, err := uuid.Parse(post.ID); err != nil {
		return store.ErrNotFound
	}
	tags, err := encodeTags(post.Tags)
	if err != nil {
		return err
	}
	updated := time.Now().UTC()
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
UPDATE posts SET title = $1, content = $2, tags = $3, updated_at = $4, version = version + 1
WHERE id = $5 AND version = $6
`, post.Title, post.Content, tags, updated, post.ID, post.Version)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM posts WHERE id = $1)`, post.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return store.ErrNotFound
			}
			return store.ErrConflict
		}
		if _, err := tx.Exec(ctx, `DELETE FROM post_comments WHERE post_id = $1`, post.ID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM post_likes WHERE post_id = $1`, post.ID); err != nil {
			return err
		}
		return writeChildren(ctx, tx, post)
	})
	if err != nil {
		return err
	}
	post.Version++
	post.UpdatedAt = updated
	return nil
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return store.ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CountPosts(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM posts`).Scan(&n)
	return n, err
}

func (s *Store) ListPosts(ctx context.Context, opts store.ListOpts) ([]model.Post, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	skip := opts.Skip
	if skip < 0 {
		skip = 0
	}
	rows, err := s.pool.Query(ctx, selectPost+`ORDER BY p.created_at DESC, p.id DESC LIMIT $1 OFFSET $2`, limit, skip)
	if err != nil {
		return nil, err
	}
	var posts []model.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		posts = append(posts, post)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range posts {
		if err := s.loadChildren(ctx, &posts[i]); err != nil {
			return nil, err
		}
	}
	return posts, nil
}

func (s *Store) loadChildren(ctx context.Context, post *model.Post) error {
	rows, err := s.pool.Query(ctx, `
SELECT c.id::text, c.user_id::text, COALESCE(u.username, ''), c.text, c.created_at
FROM post_comments c
LEFT JOIN users u ON u.id = c.user_id
WHERE c.post_id = $1
ORDER BY c.seq ASC
`, post.ID)
	if err != nil {
		return err
	}
	post.Comments, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Comment, error) {
		var c model.Comment
		err := row.Scan(&c.ID, &c.User.ID, &c.User.Username, &c.Text, &c.CreatedAt)
		c.CreatedAt = c.CreatedAt.UTC()
		return c, err
	})
	if err != nil {
		return err
	}

	rows, err = s.pool.Query(ctx, `SELECT user_id::text FROM post_likes WHERE post_id = $1 ORDER BY seq ASC`, post.ID)
	if err != nil {
		return err
	}
	post.Likes, err = pgx.CollectRows(rows, pgx.RowTo[string])
	return err
}

func writeChildren(ctx context.Context, tx pgx.Tx, post *model.Post) error {
	batch := &pgx.Batch{}
	for i := range post.Comments {
		c := &post.Comments[i]
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now().UTC()
		}
		batch.Queue(`INSERT INTO post_comments (id, post_id, user_id, text, created_at, seq) VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, post.ID, c.User.ID, c.Text, c.CreatedAt, i)
	}
	for i, id := range post.Likes {
		batch.Queue(`INSERT INTO post_likes (post_id, user_id, seq) VALUES ($1, $2, $3)`, post.ID, id, i)
	}
	if batch.Len() == 0 {
		return nil
	}
	return tx.SendBatch(ctx, batch).Close()
}

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, store.ErrNotFound
		}
		return model.User{}, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

func scanPost(row pgx.Row) (model.Post, error) {
	var p model.Post
	var tagsRaw []byte
	if err := row.Scan(&p.ID, &p.Title, &p.Content, &p.Author.ID, &p.Author.Username, &tagsRaw, &p.CreatedAt, &p.UpdatedAt, &p.Version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Post{}, store.ErrNotFound
		}
		return model.Post{}, err
	}
	tags, err := decodeTags(tagsRaw)
	if err != nil {
		return model.Post{}, fmt.Errorf("decode tags of post %s: %w", p.ID, err)
	}
	p.Tags = tags
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func decodeTags(raw []byte) ([]string, error) {
	tags := []string{}
	if len(raw) == 0 {
		return tags, nil
	}
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil, err
	}
	if tags == nil {
		tags = []string{}
	}
	return tags, nil
}

func encodeTags(tags []string) ([]byte, error) {
	if tags == nil {
		tags = []string{}
	}
	return json.Marshal(tags)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
