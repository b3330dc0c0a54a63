package repository

import (
	"context"
	"time"

	"github.com/foxseedlab/mixerd/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) repository.Repository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) CreateMixer(ctx context.Context, input repository.CreateMixerInput) (*repository.Mixer, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO mixers (id, router_id, created_at, status)
		 VALUES ($1, $2, $3, 'running')
		 RETURNING id, router_id, status::text, created_at, closed_at`,
		input.MixerID, input.RouterID, input.CreatedAt)
	var m repository.Mixer
	var closedAt *time.Time
	if err := row.Scan(&m.ID, &m.RouterID, &m.Status, &m.CreatedAt, &closedAt); err != nil {
		return nil, err
	}
	m.ClosedAt = closedAt
	return &m, nil
}

func (r *PostgresRepository) CompleteMixer(ctx context.Context, input repository.CompleteMixerInput) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE mixers SET status = 'closed', closed_at = $2 WHERE id = $1`,
		input.MixerID, input.ClosedAt)
	return err
}

func (r *PostgresRepository) ListRunningMixers(ctx context.Context, routerID string) ([]repository.Mixer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, router_id, status::text, created_at, closed_at
		 FROM mixers WHERE router_id = $1 AND status = 'running'
		 ORDER BY created_at ASC`,
		routerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.Mixer
	for rows.Next() {
		var m repository.Mixer
		if err := rows.Scan(&m.ID, &m.RouterID, &m.Status, &m.CreatedAt, &m.ClosedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

func (r *PostgresRepository) InsertProducer(ctx context.Context, input repository.InsertProducerInput) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO mixer_producers (producer_id, mixer_id, kind, type, is_primary, admitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		input.ProducerID, input.MixerID, input.Kind, input.Type, input.Primary, input.AdmittedAt)
	return err
}

func (r *PostgresRepository) ReleaseProducer(ctx context.Context, input repository.ReleaseProducerInput) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE mixer_producers SET released_at = $3
		 WHERE mixer_id = $1 AND producer_id = $2 AND released_at IS NULL`,
		input.MixerID, input.ProducerID, input.ReleasedAt)
	return err
}

func (r *PostgresRepository) ListProducersByMixerID(ctx context.Context, mixerID string) ([]repository.MixerProducer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT producer_id, mixer_id, kind, type, is_primary, admitted_at, released_at
		 FROM mixer_producers WHERE mixer_id = $1 ORDER BY admitted_at ASC`,
		mixerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.MixerProducer
	for rows.Next() {
		var p repository.MixerProducer
		if err := rows.Scan(&p.ProducerID, &p.MixerID, &p.Kind, &p.Type, &p.Primary, &p.AdmittedAt, &p.ReleasedAt); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}
