package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/camvision/internal/config"
	"github.com/your-org/camvision/internal/model"
)

// PostgresStore is the Face Store: FaceLabel/FaceRecord persistence. Reads
// are safe from any number of Processing Loop goroutines; writes are
// expected to come only from the single Face Store Writer.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() { s.pool.Close() }

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Label looks up a face label by id. Returns (nil, nil) on a miss — callers
// treat a miss as "discard this frame's attribution", not an error.
func (s *PostgresStore) Label(ctx context.Context, id int) (*model.FaceLabel, error) {
	l := &model.FaceLabel{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, label FROM face_labels WHERE id = $1`, id,
	).Scan(&l.ID, &l.Label)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get face label: %w", err)
	}
	return l, nil
}

// CreateLabel inserts a new named identity and returns its id.
func (s *PostgresStore) CreateLabel(ctx context.Context, name string) (int, error) {
	var id int
	err := s.pool.QueryRow(ctx,
		`INSERT INTO face_labels (label) VALUES ($1) RETURNING id`, name,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create face label: %w", err)
	}
	return id, nil
}

// InsertRecord idempotently inserts a captured or labeled face record. Used
// exclusively by the Face Store Writer.
func (s *PostgresStore) InsertRecord(ctx context.Context, rec model.FaceRecord) error {
	var vec *pgvector.Vector
	if len(rec.Embedding) > 0 {
		v := pgvector.NewVector(rec.Embedding)
		vec = &v
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO face_records (id, label_id, capture_time, embedding)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.LabelID, rec.CaptureTime, vec)
	if err != nil {
		return fmt.Errorf("insert face record: %w", err)
	}
	return nil
}

// LabeledEmbeddings returns every record with label_id > 0, for the
// embedding-family recognizer (DOODS_EU/DOODS_COS) to score against
// in-process, mirroring the original's in-memory loop over all known faces
// rather than a server-side nearest-neighbor query.
func (s *PostgresStore) LabeledEmbeddings(ctx context.Context) ([]model.FaceRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, label_id, capture_time, embedding FROM face_records WHERE label_id > 0`)
	if err != nil {
		return nil, fmt.Errorf("list labeled embeddings: %w", err)
	}
	defer rows.Close()

	var records []model.FaceRecord
	for rows.Next() {
		var rec model.FaceRecord
		var vec pgvector.Vector
		if err := rows.Scan(&rec.ID, &rec.LabelID, &rec.CaptureTime, &vec); err != nil {
			return nil, fmt.Errorf("scan face record: %w", err)
		}
		rec.Embedding = vec.Slice()
		records = append(records, rec)
	}
	return records, nil
}

// UnlabeledCount reports how many training-sideband captures are pending
// manual labeling, exposed for operational visibility.
func (s *PostgresStore) UnlabeledCount(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM face_records WHERE label_id = 0`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unlabeled records: %w", err)
	}
	return n, nil
}

// PruneOlderThan deletes unlabeled training captures past a retention
// window, called periodically by the face store writer's housekeeping tick.
func (s *PostgresStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM face_records WHERE label_id = 0 AND capture_time < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune face records: %w", err)
	}
	return tag.RowsAffected(), nil
}
