// Package sqlite keeps the bot's durable state in a single SQLite file: the
// selection universe, the already-selected species, the sequence counter and
// the history of published posts.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/blackmichael/species-poster/internal/domain"
)

//go:embed schema.sql
var schema string

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const (
	sequenceCounter = "sequence"
	insertBatchSize = 500
)

// Repository implements domain.SelectionStore and domain.PostRepository on
// top of SQLite.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository opens (creating if needed) the database at path and applies
// the schema. The caller should call Close when the repository is no longer
// needed.
func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one writer; also keeps an in-memory database alive on a single connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Repository{db: db, now: time.Now}, nil
}

func dsn(path string) string {
	params := []string{
		"_pragma=busy_timeout(5000)",
		"_txlock=immediate",
	}
	if path != MemoryPath {
		params = append(params, "_pragma=journal_mode(WAL)")
	}
	return path + "?" + strings.Join(params, "&")
}

func initSchema(db *sql.DB) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Claim picks the next species and records it as selected, bumping the
// sequence counter, inside one write transaction. Nothing is written when
// pick fails.
func (r *Repository) Claim(ctx context.Context, pick domain.PickFunc) (domain.Selection, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Selection{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	universe, err := loadIndexSet(ctx, tx, "universe")
	if err != nil {
		return domain.Selection{}, err
	}
	selected, err := loadIndexSet(ctx, tx, "selected")
	if err != nil {
		return domain.Selection{}, err
	}

	idx, err := pick(selected, universe)
	if err != nil {
		return domain.Selection{}, fmt.Errorf("pick species (%d selected of %d): %w", len(selected), len(universe), err)
	}

	query, args, err := sq.Insert("counters").
		Columns("name", "value").
		Values(sequenceCounter, 1).
		Suffix("ON CONFLICT (name) DO UPDATE SET value = counters.value + 1 RETURNING value").
		ToSql()
	if err != nil {
		return domain.Selection{}, fmt.Errorf("build counter query: %w", err)
	}
	var sequence int64
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&sequence); err != nil {
		return domain.Selection{}, fmt.Errorf("increment sequence: %w", err)
	}

	query, args, err = sq.Insert("selected").
		Columns("idx", "sequence", "selected_at").
		Values(idx, sequence, r.now().UTC().Unix()).
		ToSql()
	if err != nil {
		return domain.Selection{}, fmt.Errorf("build selection query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return domain.Selection{}, fmt.Errorf("record selection %d: %w", idx, err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Selection{}, fmt.Errorf("commit transaction: %w", err)
	}

	return domain.Selection{Index: idx, Sequence: sequence}, nil
}

func loadIndexSet(ctx context.Context, tx *sql.Tx, table string) (domain.IndexSet, error) {
	query, args, err := sq.Select("idx").From(table).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s query: %w", table, err)
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	set := domain.NewIndexSet()
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		set[idx] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return set, nil
}

// Stats reports the size of the universe, how much of it has been used and
// the current sequence number.
func (r *Repository) Stats(ctx context.Context) (domain.SelectionStats, error) {
	var stats domain.SelectionStats

	query, args, err := sq.Select("COUNT(*)").From("universe").ToSql()
	if err != nil {
		return stats, err
	}
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&stats.Universe); err != nil {
		return stats, fmt.Errorf("count universe: %w", err)
	}

	query, args, err = sq.Select("COUNT(*)").
		From("selected s").
		Join("universe u ON u.idx = s.idx").
		ToSql()
	if err != nil {
		return stats, err
	}
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&stats.Selected); err != nil {
		return stats, fmt.Errorf("count selected: %w", err)
	}
	stats.Remaining = stats.Universe - stats.Selected

	query, args, err = sq.Select("value").
		From("counters").
		Where(sq.Eq{"name": sequenceCounter}).
		ToSql()
	if err != nil {
		return stats, err
	}
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&stats.Sequence)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return stats, fmt.Errorf("read sequence: %w", err)
	}

	return stats, nil
}

// Seed adds indices to the selection universe, ignoring ones already present.
// Returns how many were added.
func (r *Repository) Seed(ctx context.Context, indices []int) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	added, err := insertUniverse(ctx, tx, indices)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return added, nil
}

func insertUniverse(ctx context.Context, tx *sql.Tx, indices []int) (int64, error) {
	var added int64
	for chunk := range slices.Chunk(indices, insertBatchSize) {
		b := sq.Insert("universe").Options("OR IGNORE").Columns("idx")
		for _, idx := range chunk {
			b = b.Values(idx)
		}
		query, args, err := b.ToSql()
		if err != nil {
			return 0, fmt.Errorf("build universe insert: %w", err)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("insert universe: %w", err)
		}
		n, _ := res.RowsAffected()
		added += n
	}
	return added, nil
}

// ImportLegacy merges state kept in the old line-oriented text files. Sampled
// indices are recorded as selected with sequence 0 and the counter is raised
// to the legacy number if it is behind.
func (r *Repository) ImportLegacy(ctx context.Context, legacy LegacyState) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// sampled indices always belong to the universe
	if _, err := insertUniverse(ctx, tx, slices.Concat(legacy.Possible, legacy.Sampled)); err != nil {
		return err
	}

	at := r.now().UTC().Unix()
	for chunk := range slices.Chunk(legacy.Sampled, insertBatchSize) {
		b := sq.Insert("selected").Options("OR IGNORE").Columns("idx", "sequence", "selected_at")
		for _, idx := range chunk {
			b = b.Values(idx, 0, at)
		}
		query, args, err := b.ToSql()
		if err != nil {
			return fmt.Errorf("build selected insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert selected: %w", err)
		}
	}

	if legacy.Number > 0 {
		query, args, err := sq.Insert("counters").
			Columns("name", "value").
			Values(sequenceCounter, legacy.Number).
			Suffix("ON CONFLICT (name) DO UPDATE SET value = MAX(counters.value, excluded.value)").
			ToSql()
		if err != nil {
			return fmt.Errorf("build counter query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("import sequence: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// SavePost records a published post. Saving the same URI twice is a no-op.
func (r *Repository) SavePost(ctx context.Context, post *domain.PublishedPost) error {
	query, args, err := sq.Insert("posts").
		Columns("uri", "cid", "idx", "sequence", "caption", "posted_at").
		Values(post.URI, post.CID, post.Index, post.Sequence, post.Caption, post.PostedAt.UTC().Unix()).
		Suffix("ON CONFLICT (uri) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build post insert: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

// RecentPosts returns up to limit posts, newest first.
func (r *Repository) RecentPosts(ctx context.Context, limit int) ([]domain.PublishedPost, error) {
	query, args, err := sq.Select("uri", "cid", "idx", "sequence", "caption", "posted_at").
		From("posts").
		OrderBy("posted_at DESC", "sequence DESC").
		Limit(uint64(max(limit, 0))).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build posts query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts (limit=%d): %w", limit, err)
	}
	defer rows.Close()

	var posts []domain.PublishedPost
	for rows.Next() {
		var (
			p        domain.PublishedPost
			postedAt int64
		)
		err := rows.Scan(
			&p.URI,
			&p.CID,
			&p.Index,
			&p.Sequence,
			&p.Caption,
			&postedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		p.PostedAt = time.Unix(postedAt, 0).UTC()
		posts = append(posts, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}

	return posts, nil
}
