package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL. The schema lives in the
// database package migrations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func scanLogic(row pgx.Row) (*LogicRecord, error) {
	var (
		rec            LogicRecord
		codeHash, addr string
	)
	if err := row.Scan(&rec.L1ChainID, &rec.L2ChainID, &codeHash, &addr, &rec.ContractName); err != nil {
		return nil, err
	}
	rec.CodeHash = common.HexToHash(codeHash)
	rec.Address = common.HexToAddress(addr)
	return &rec, nil
}

// GetLogic retrieves a logic record by code hash.
func (s *PostgresStore) GetLogic(ctx context.Context, scope Scope, codeHash common.Hash) (*LogicRecord, error) {
	query := `
		SELECT l1_chain_id, l2_chain_id, code_hash, address, contract_name
		FROM logic_records
		WHERE l1_chain_id = $1 AND l2_chain_id = $2 AND code_hash = $3`

	rec, err := scanLogic(s.pool.QueryRow(ctx, query, scope.L1ChainID, scope.L2ChainID, codeHash.Hex()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetLogic: %w", err)
	}
	return rec, nil
}

// GetLogics retrieves every logic record matching one of codeHashes.
func (s *PostgresStore) GetLogics(ctx context.Context, scope Scope, codeHashes []common.Hash) ([]LogicRecord, error) {
	hexes := make([]string, len(codeHashes))
	for i, h := range codeHashes {
		hexes[i] = h.Hex()
	}

	query := `
		SELECT l1_chain_id, l2_chain_id, code_hash, address, contract_name
		FROM logic_records
		WHERE l1_chain_id = $1 AND l2_chain_id = $2 AND code_hash = ANY($3)
		ORDER BY seq`

	rows, err := s.pool.Query(ctx, query, scope.L1ChainID, scope.L2ChainID, hexes)
	if err != nil {
		return nil, fmt.Errorf("GetLogics: %w", err)
	}
	defer rows.Close()

	var out []LogicRecord
	for rows.Next() {
		rec, err := scanLogic(rows)
		if err != nil {
			return nil, fmt.Errorf("GetLogics: scan: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// GetLogicByName retrieves the earliest logic record registered under name.
func (s *PostgresStore) GetLogicByName(ctx context.Context, scope Scope, name string) (*LogicRecord, error) {
	query := `
		SELECT l1_chain_id, l2_chain_id, code_hash, address, contract_name
		FROM logic_records
		WHERE l1_chain_id = $1 AND l2_chain_id = $2 AND contract_name = $3
		ORDER BY seq
		LIMIT 1`

	rec, err := scanLogic(s.pool.QueryRow(ctx, query, scope.L1ChainID, scope.L2ChainID, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetLogicByName: %w", err)
	}
	return rec, nil
}

// SaveLogics inserts logic records in one transaction.
func (s *PostgresStore) SaveLogics(ctx context.Context, records ...LogicRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("SaveLogics: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	selectQuery := `
		SELECT l1_chain_id, l2_chain_id, code_hash, address, contract_name
		FROM logic_records
		WHERE l1_chain_id = $1 AND l2_chain_id = $2 AND code_hash = $3
		FOR UPDATE`
	insertQuery := `
		INSERT INTO logic_records (l1_chain_id, l2_chain_id, code_hash, address, contract_name)
		VALUES ($1, $2, $3, $4, $5)`

	for _, rec := range records {
		if err := rec.validate(); err != nil {
			return err
		}
		existing, err := scanLogic(tx.QueryRow(ctx, selectQuery, rec.L1ChainID, rec.L2ChainID, rec.CodeHash.Hex()))
		if errors.Is(err, pgx.ErrNoRows) {
			existing = nil
		} else if err != nil {
			return fmt.Errorf("SaveLogics: %w", err)
		}
		write, err := checkedPut(existing, &rec, logicEqual, false, logicKey(rec.Scope, rec.CodeHash))
		if err != nil {
			return err
		}
		if !write {
			continue
		}
		if _, err := tx.Exec(ctx, insertQuery,
			rec.L1ChainID, rec.L2ChainID, rec.CodeHash.Hex(), rec.Address.Hex(), rec.ContractName,
		); err != nil {
			return fmt.Errorf("SaveLogics: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("SaveLogics: commit: %w", err)
	}
	return nil
}

func scanBundle(row pgx.Row) (*VersionedBundle, error) {
	var b VersionedBundle
	if err := row.Scan(&b.L1ChainID, &b.L2ChainID, &b.Version, &b.Roles); err != nil {
		return nil, err
	}
	return &b, nil
}

// SaveBundle seals a bundle, applying the equality check inside a row lock.
func (s *PostgresStore) SaveBundle(ctx context.Context, b *VersionedBundle, overwrite bool) error {
	if err := b.validate(); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("SaveBundle: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		SELECT l1_chain_id, l2_chain_id, version, roles
		FROM versioned_bundles
		WHERE l1_chain_id = $1 AND l2_chain_id = $2 AND version = $3
		FOR UPDATE`

	existing, err := scanBundle(tx.QueryRow(ctx, query, b.L1ChainID, b.L2ChainID, b.Version))
	if errors.Is(err, pgx.ErrNoRows) {
		existing = nil
	} else if err != nil {
		return fmt.Errorf("SaveBundle: %w", err)
	}

	write, err := checkedPut(existing, b, (*VersionedBundle).Equal, overwrite, bundleKey(b.Scope, b.Version))
	if err != nil || !write {
		return err
	}

	upsert := `
		INSERT INTO versioned_bundles (l1_chain_id, l2_chain_id, version, roles)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (l1_chain_id, l2_chain_id, version)
		DO UPDATE SET roles = EXCLUDED.roles, updated_at = NOW()`

	if _, err := tx.Exec(ctx, upsert, b.L1ChainID, b.L2ChainID, b.Version, b.Roles); err != nil {
		return fmt.Errorf("SaveBundle: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("SaveBundle: commit: %w", err)
	}
	return nil
}

// GetBundle retrieves the bundle sealed at version.
func (s *PostgresStore) GetBundle(ctx context.Context, scope Scope, version uint64) (*VersionedBundle, error) {
	query := `
		SELECT l1_chain_id, l2_chain_id, version, roles
		FROM versioned_bundles
		WHERE l1_chain_id = $1 AND l2_chain_id = $2 AND version = $3`

	b, err := scanBundle(s.pool.QueryRow(ctx, query, scope.L1ChainID, scope.L2ChainID, version))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetBundle: %w", err)
	}
	return b, nil
}

// LatestBundle retrieves the highest sealed version in scope.
func (s *PostgresStore) LatestBundle(ctx context.Context, scope Scope) (*VersionedBundle, error) {
	query := `
		SELECT l1_chain_id, l2_chain_id, version, roles
		FROM versioned_bundles
		WHERE l1_chain_id = $1 AND l2_chain_id = $2
		ORDER BY version DESC
		LIMIT 1`

	b, err := scanBundle(s.pool.QueryRow(ctx, query, scope.L1ChainID, scope.L2ChainID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("LatestBundle: %w", err)
	}
	return b, nil
}

func scanRollup(row pgx.Row) (*RollupInstance, error) {
	var r RollupInstance
	if err := row.Scan(&r.L1ChainID, &r.L2ChainID, &r.Version, &r.L1Proxies, &r.L2Proxies); err != nil {
		return nil, err
	}
	return &r, nil
}

// SaveRollup creates a rollup instance.
func (s *PostgresStore) SaveRollup(ctx context.Context, r *RollupInstance) error {
	if err := r.validate(); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("SaveRollup: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		SELECT l1_chain_id, l2_chain_id, version, l1_proxies, l2_proxies
		FROM rollup_instances
		WHERE l1_chain_id = $1 AND l2_chain_id = $2
		FOR UPDATE`

	existing, err := scanRollup(tx.QueryRow(ctx, query, r.L1ChainID, r.L2ChainID))
	if errors.Is(err, pgx.ErrNoRows) {
		existing = nil
	} else if err != nil {
		return fmt.Errorf("SaveRollup: %w", err)
	}

	write, err := checkedPut(existing, r, (*RollupInstance).Equal, false, "rollup "+rollupKey(r.L1ChainID, r.L2ChainID))
	if err != nil || !write {
		return err
	}

	insert := `
		INSERT INTO rollup_instances (l1_chain_id, l2_chain_id, version, l1_proxies, l2_proxies)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := tx.Exec(ctx, insert, r.L1ChainID, r.L2ChainID, r.Version, r.L1Proxies, r.L2Proxies); err != nil {
		return fmt.Errorf("SaveRollup: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("SaveRollup: commit: %w", err)
	}
	return nil
}

// GetRollup retrieves the instance of a chain pair.
func (s *PostgresStore) GetRollup(ctx context.Context, l1ChainID, l2ChainID uint64) (*RollupInstance, error) {
	query := `
		SELECT l1_chain_id, l2_chain_id, version, l1_proxies, l2_proxies
		FROM rollup_instances
		WHERE l1_chain_id = $1 AND l2_chain_id = $2`

	r, err := scanRollup(s.pool.QueryRow(ctx, query, l1ChainID, l2ChainID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetRollup: %w", err)
	}
	return r, nil
}

// ListRollups retrieves every rollup instance ordered by chain ids.
func (s *PostgresStore) ListRollups(ctx context.Context) ([]*RollupInstance, error) {
	query := `
		SELECT l1_chain_id, l2_chain_id, version, l1_proxies, l2_proxies
		FROM rollup_instances
		ORDER BY l1_chain_id, l2_chain_id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ListRollups: %w", err)
	}
	defer rows.Close()

	var out []*RollupInstance
	for rows.Next() {
		r, err := scanRollup(rows)
		if err != nil {
			return nil, fmt.Errorf("ListRollups: scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateRollupVersion moves an instance forward to version.
func (s *PostgresStore) UpdateRollupVersion(ctx context.Context, l1ChainID, l2ChainID, version uint64) error {
	query := `
		UPDATE rollup_instances
		SET version = $3, updated_at = NOW()
		WHERE l1_chain_id = $1 AND l2_chain_id = $2 AND version <= $3`

	result, err := s.pool.Exec(ctx, query, l1ChainID, l2ChainID, version)
	if err != nil {
		return fmt.Errorf("UpdateRollupVersion: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	current, err := s.GetRollup(ctx, l1ChainID, l2ChainID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: stored %d, requested %d", ErrVersionRegression, current.Version, version)
}

// SaveGenesis upserts the genesis of a chain pair.
func (s *PostgresStore) SaveGenesis(ctx context.Context, g *GenesisRecord) error {
	if err := g.validate(); err != nil {
		return err
	}
	doc, err := json.Marshal(g.Genesis)
	if err != nil {
		return fmt.Errorf("SaveGenesis: marshal: %w", err)
	}

	query := `
		INSERT INTO l2_genesis (l1_chain_id, l2_chain_id, hash, genesis)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (l1_chain_id, l2_chain_id)
		DO UPDATE SET hash = EXCLUDED.hash, genesis = EXCLUDED.genesis, updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, g.L1ChainID, g.L2ChainID, g.Hash.Hex(), doc); err != nil {
		return fmt.Errorf("SaveGenesis: %w", err)
	}
	return nil
}

// GetGenesis retrieves the genesis of a chain pair.
func (s *PostgresStore) GetGenesis(ctx context.Context, l1ChainID, l2ChainID uint64) (*GenesisRecord, error) {
	query := `
		SELECT l1_chain_id, l2_chain_id, hash, genesis
		FROM l2_genesis
		WHERE l1_chain_id = $1 AND l2_chain_id = $2`

	var (
		g    GenesisRecord
		hash string
		doc  []byte
	)
	err := s.pool.QueryRow(ctx, query, l1ChainID, l2ChainID).Scan(&g.L1ChainID, &g.L2ChainID, &hash, &doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetGenesis: %w", err)
	}
	g.Hash = common.HexToHash(hash)
	g.Genesis = new(core.Genesis)
	if err := json.Unmarshal(doc, g.Genesis); err != nil {
		return nil, fmt.Errorf("GetGenesis: decode: %w", err)
	}
	return &g, nil
}

var registryTables = []string{"logic_records", "versioned_bundles", "rollup_instances", "l2_genesis"}

// deleteWhere runs the same filtered DELETE against every registry table.
func (s *PostgresStore) deleteWhere(ctx context.Context, op, where string, args ...any) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, table := range registryTables {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table+where, args...); err != nil {
			return fmt.Errorf("%s: %s: %w", op, table, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

// DeleteAll purges every registry table.
func (s *PostgresStore) DeleteAll(ctx context.Context) error {
	return s.deleteWhere(ctx, "DeleteAll", "")
}

// DeleteL1 purges everything settled on an L1 chain.
func (s *PostgresStore) DeleteL1(ctx context.Context, l1ChainID uint64) error {
	return s.deleteWhere(ctx, "DeleteL1", " WHERE l1_chain_id = $1", l1ChainID)
}

// DeleteL2 purges the L2 records of a chain pair.
func (s *PostgresStore) DeleteL2(ctx context.Context, l1ChainID, l2ChainID uint64) error {
	return s.deleteWhere(ctx, "DeleteL2", " WHERE l1_chain_id = $1 AND l2_chain_id = $2", l1ChainID, l2ChainID)
}

// Close is a no-op; the pool is owned by the database package.
func (s *PostgresStore) Close() error { return nil }

var _ Store = (*PostgresStore)(nil)
