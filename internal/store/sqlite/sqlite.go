package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alphabot-ai/quill/internal/model"
	"github.com/alphabot-ai/quill/internal/store"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection serializes writers and keeps shared in-memory databases alive.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrations is an ordered list of SQL migrations.
// Each migration runs exactly once, tracked by schema_version table.
var migrations = []string{
	// Migration 1: Initial schema
	`
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL,
	email TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email);

CREATE TABLE IF NOT EXISTS posts (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	author_id TEXT NOT NULL,
	tags TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	version INTEGER NOT NULL DEFAULT 1,
	FOREIGN KEY(author_id) REFERENCES users(id)
);
CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at DESC);

CREATE TABLE IF NOT EXISTS post_comments (
	id TEXT PRIMARY KEY,
	post_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	text TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	seq INTEGER NOT NULL,
	FOREIGN KEY(post_id) REFERENCES posts(id)
);
CREATE INDEX IF NOT EXISTS idx_post_comments_post ON post_comments(post_id, seq);

CREATE TABLE IF NOT EXISTS post_likes (
	post_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	PRIMARY KEY(post_id, user_id),
	FOREIGN KEY(post_id) REFERENCES posts(id)
);
`,
	// Future migrations go here:
	// Migration 2: `ALTER TABLE ...`,
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return err
	}

	var currentVersion int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&currentVersion); err != nil {
		return err
	}

	for i := currentVersion; i < len(migrations); i++ {
		if _, err := db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, i+1); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
	}

	return nil
}

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = user.CreatedAt
	_, err := s.db.ExecContext(ctx, `
INSERT INTO users (id, username, email, password_hash, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
`, user.ID, user.Username, user.Email, user.PasswordHash, user.CreatedAt.UnixMilli(), user.UpdatedAt.UnixMilli())
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, username, email, password_hash, created_at, updated_at FROM users WHERE id = ?
`, id)
	return scanUser(row)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, username, email, password_hash, created_at, updated_at FROM users WHERE email = ?
`, email)
	return scanUser(row)
}

func (s *Store) UpdateUser(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
UPDATE users SET username = ?, email = ?, updated_at = ? WHERE id = ?
`, user.Username, user.Email, user.UpdatedAt.UnixMilli(), user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateEmail
		}
		return err
	}
	return requireAffected(res)
}

func (s *Store) InsertPost(ctx context.Context, post *model.Post) (err error) {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.UpdatedAt = post.CreatedAt
	post.Version = 1
	tags, err := encodeTags(post.Tags)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `
INSERT INTO posts (id, title, content, author_id, tags, created_at, updated_at, version)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, post.ID, post.Title, post.Content, post.Author.ID, tags, post.CreatedAt.UnixMilli(), post.UpdatedAt.UnixMilli(), post.Version); err != nil {
		return err
	}
	if err = writeChildren(ctx, tx, post); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetPost(ctx context.Context, id string) (model.Post, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT p.id, p.title, p.content, p.author_id, u.username, p.tags, p.created_at, p.updated_at, p.version
FROM posts p
LEFT JOIN users u ON u.id = p.author_id
WHERE p.id = ?
`, id)
	post, err := scanPost(row)
	if err != nil {
		return model.Post{}, err
	}
	if err := s.loadChildren(ctx, &post); err != nil {
		return model.Post{}, err
	}
	return post, nil
}

func (s *Store) SavePost(ctx context.Context, post *model.Post) (err error) {
	tags, err := encodeTags(post.Tags)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	updated := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
UPDATE posts SET title = ?, content = ?, tags = ?, updated_at = ?, version = version + 1
WHERE id = ? AND version = ?
`, post.Title, post.Content, tags, updated.UnixMilli(), post.ID, post.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts WHERE id = ?`, post.ID).Scan(&exists)
		if err != nil {
			return err
		}
		if exists == 0 {
			err = store.ErrNotFound
		} else {
			err = store.ErrConflict
		}
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM post_comments WHERE post_id = ?`, post.ID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM post_likes WHERE post_id = ?`, post.ID); err != nil {
		return err
	}
	if err = writeChildren(ctx, tx, post); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	post.Version++
	post.UpdatedAt = updated
	return nil
}

func (s *Store) DeletePost(ctx context.Context, id string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, `DELETE FROM post_comments WHERE post_id = ?`, id); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM post_likes WHERE post_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err = requireAffected(res); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) CountPosts(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
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
	rows, err := s.db.QueryContext(ctx, `
SELECT p.id, p.title, p.content, p.author_id, u.username, p.tags, p.created_at, p.updated_at, p.version
FROM posts p
LEFT JOIN users u ON u.id = p.author_id
ORDER BY p.created_at DESC, p.rowid DESC
LIMIT ? OFFSET ?
`, limit, skip)
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
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	// Children are loaded after the cursor is closed: the pool holds one connection.
	for i := range posts {
		if err := s.loadChildren(ctx, &posts[i]); err != nil {
			return nil, err
		}
	}
	return posts, nil
}

func (s *Store) loadChildren(ctx context.Context, post *model.Post) error {
	rows, err := s.db.QueryContext(ctx, `
SELECT c.id, c.user_id, u.username, c.text, c.created_at
FROM post_comments c
LEFT JOIN users u ON u.id = c.user_id
WHERE c.post_id = ?
ORDER BY c.seq ASC
`, post.ID)
	if err != nil {
		return err
	}
	post.Comments = []model.Comment{}
	for rows.Next() {
		var c model.Comment
		var username sql.NullString
		var created int64
		if err := rows.Scan(&c.ID, &c.User.ID, &username, &c.Text, &created); err != nil {
			rows.Close()
			return err
		}
		c.User.Username = username.String
		c.CreatedAt = time.UnixMilli(created).UTC()
		post.Comments = append(post.Comments, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `SELECT user_id FROM post_likes WHERE post_id = ? ORDER BY seq ASC`, post.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	post.Likes = []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		post.Likes = append(post.Likes, id)
	}
	return rows.Err()
}

func writeChildren(ctx context.Context, tx *sql.Tx, post *model.Post) error {
	for i := range post.Comments {
		c := &post.Comments[i]
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO post_comments (id, post_id, user_id, text, created_at, seq) VALUES (?, ?, ?, ?, ?, ?)
`, c.ID, post.ID, c.User.ID, c.Text, c.CreatedAt.UnixMilli(), i); err != nil {
			return err
		}
	}
	for i, id := range post.Likes {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO post_likes (post_id, user_id, seq) VALUES (?, ?, ?)
`, post.ID, id, i); err != nil {
			return err
		}
	}
	return nil
}

func scanUser(scanner interface{ Scan(dest ...any) error }) (model.User, error) {
	var u model.User
	var created, updated int64
	if err := scanner.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, store.ErrNotFound
		}
		return model.User{}, err
	}
	u.CreatedAt = time.UnixMilli(created).UTC()
	u.UpdatedAt = time.UnixMilli(updated).UTC()
	return u, nil
}

func scanPost(scanner interface{ Scan(dest ...any) error }) (model.Post, error) {
	var p model.Post
	var username sql.NullString
	var tagsRaw sql.NullString
	var created, updated int64
	if err := scanner.Scan(&p.ID, &p.Title, &p.Content, &p.Author.ID, &username, &tagsRaw, &created, &updated, &p.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Post{}, store.ErrNotFound
		}
		return model.Post{}, err
	}
	p.Author.Username = username.String
	p.Tags = []string{}
	if tagsRaw.Valid && tagsRaw.String != "" {
		if err := json.Unmarshal([]byte(tagsRaw.String), &p.Tags); err != nil {
			return model.Post{}, fmt.Errorf("decode tags of post %s: %w", p.ID, err)
		}
	}
	p.CreatedAt = time.UnixMilli(created).UTC()
	p.UpdatedAt = time.UnixMilli(updated).UTC()
	return p, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}
