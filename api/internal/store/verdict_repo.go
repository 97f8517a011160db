package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"lettera/api/internal/compare/types"
)

var ErrNotFound = sql.ErrNoRows

type VerdictRepo struct{ DB *sql.DB }

func NewVerdictRepo(db *sql.DB) *VerdictRepo { return &VerdictRepo{DB: db} }

const schema = `
create table if not exists verdict_cache (
    cache_key    text primary key,
    engine       text not null,
    model        text not null,
    verdict_json jsonb not null,
    created_at   timestamptz not null default now()
);
create index if not exists verdict_cache_created_at_idx on verdict_cache(created_at);`

// EnsureSchema создаёт таблицу кэша, если её ещё нет.
func (r *VerdictRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, schema)
	return err
}

// Find возвращает закэшированный вердикт по ключу.
// Если maxAge > 0 и запись старше, вернёт sql.ErrNoRows (чтобы вызвать LLM заново).
func (r *VerdictRepo) Find(ctx context.Context, key string, maxAge time.Duration) (types.Verdict, error) {
	const q = `select verdict_json, created_at from verdict_cache where cache_key=$1`
	var (
		js []byte
		ts time.Time
	)
	if err := r.DB.QueryRowContext(ctx, q, key).Scan(&js, &ts); err != nil {
		return types.Verdict{}, err
	}
	if maxAge > 0 && time.Since(ts) > maxAge {
		return types.Verdict{}, ErrNotFound
	}
	var v types.Verdict
	if err := json.Unmarshal(js, &v); err != nil {
		// Если кэш битый: считаем, что нет валидной записи
		return types.Verdict{}, ErrNotFound
	}
	return v, nil
}

// Upsert сохраняет/обновляет вердикт. PK: cache_key.
func (r *VerdictRepo) Upsert(ctx context.Context, key, engine, model string, v types.Verdict) error {
	js, err := json.Marshal(v)
	if err != nil {
		return err
	}
	const q = `
insert into verdict_cache(cache_key, engine, model, verdict_json)
values ($1,$2,$3,$4)
on conflict (cache_key)
do update set engine=excluded.engine, model=excluded.model, verdict_json=excluded.verdict_json, created_at=now()`
	_, err = r.DB.ExecContext(ctx, q, key, engine, model, js)
	return err
}

// Prune удаляет записи старше maxAge, возвращает число удалённых строк.
func (r *VerdictRepo) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	res, err := r.DB.ExecContext(ctx, `delete from verdict_cache where created_at < $1`, time.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
