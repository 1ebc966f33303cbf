package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/stepc/internal/ir"
	"github.com/roach88/stepc/internal/kernel"
)

// Manifest describes one stored artifact.
type Manifest struct {
	Key           ir.Key    `json:"key"`
	Toolchain     string    `json:"toolchain"`
	KernelVersion string    `json:"kernel_version"`
	Schema        ir.Schema `json:"schema"`
	Source        []string  `json:"source"`
	Size          int64     `json:"artifact_size"`
	RunID         string    `json:"run_id"`
	Seq           int64     `json:"seq"`
}

// writeManifest records the artifact for key. The first record for a key
// wins; later writes are ignored. seq is assigned as one past the current
// maximum.
func (s *Store) writeManifest(ctx context.Context, key ir.Key, p *kernel.Program, size int) error {
	schemaJSON, err := marshalSchema(p.Schema)
	if err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	sourceJSON, err := marshalSource(p.Source)
	if err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	// WHERE true disambiguates the upsert clause after INSERT ... SELECT.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO manifests
		(key, toolchain, kernel_version, schema, source, artifact_size, run_id, seq)
		SELECT ?, ?, ?, ?, ?, ?, ?, COALESCE(MAX(seq), 0) + 1 FROM manifests WHERE true
		ON CONFLICT(key) DO NOTHING
	`,
		string(key),
		kernel.ToolchainID(),
		p.Kernel,
		schemaJSON,
		sourceJSON,
		size,
		s.runID,
	)
	if err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Manifest returns the manifest for key, or ErrNotFound.
func (s *Store) Manifest(ctx context.Context, key ir.Key) (Manifest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT key, toolchain, kernel_version, schema, source, artifact_size, run_id, seq
		FROM manifests
		WHERE key = ?
	`, string(key))

	m, err := scanManifest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Manifest{}, fmt.Errorf("manifest %s: %w", key.Short(), ErrNotFound)
	}
	return m, err
}

// List returns every manifest in deterministic order.
//
// Returns an empty slice (not nil) for an empty store.
func (s *Store) List(ctx context.Context) ([]Manifest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, toolchain, kernel_version, schema, source, artifact_size, run_id, seq
		FROM manifests
		ORDER BY seq ASC, key COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query manifests: %w", err)
	}
	defer rows.Close()

	manifests := []Manifest{}
	for rows.Next() {
		m, err := scanManifest(rows)
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate manifests: %w", err)
	}
	return manifests, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanManifest(row scanner) (Manifest, error) {
	var (
		m          Manifest
		key        string
		schemaJSON string
		sourceJSON string
	)
	if err := row.Scan(&key, &m.Toolchain, &m.KernelVersion, &schemaJSON, &sourceJSON,
		&m.Size, &m.RunID, &m.Seq); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Manifest{}, err
		}
		return Manifest{}, fmt.Errorf("scan manifest: %w", err)
	}
	m.Key = ir.Key(key)

	var err error
	if m.Schema, err = unmarshalSchema(schemaJSON); err != nil {
		return Manifest{}, err
	}
	if m.Source, err = unmarshalSource(sourceJSON); err != nil {
		return Manifest{}, err
	}
	return m, nil
}
