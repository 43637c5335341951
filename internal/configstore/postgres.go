package configstore

import (
	"context"
	"encoding/json"
	"fmt"

	"mourne/internal/domain/jsoncfg"
	"mourne/internal/infra"
	"mourne/internal/sqlinline"
)

// DefaultSettingKey is the row key under which the provider document is kept.
const DefaultSettingKey = "providers"

// PostgresBackend stores the config document as one jsonb row.
type PostgresBackend struct {
	sql infra.SQLExecutor
	key string
}

func NewPostgresBackend(sql infra.SQLExecutor) *PostgresBackend {
	return &PostgresBackend{sql: sql, key: DefaultSettingKey}
}

// EnsureSchema creates the settings table when missing.
func (b *PostgresBackend) EnsureSchema(ctx context.Context) error {
	_, err := b.sql.Exec(ctx, sqlinline.QCreateProviderSettings)
	return err
}

func (b *PostgresBackend) Read(ctx context.Context) (jsoncfg.ProviderDocument, bool, error) {
	var doc jsoncfg.ProviderDocument
	var raw []byte
	if err := b.sql.QueryRow(ctx, sqlinline.QSelectProviderSetting, b.key).Scan(&raw); err != nil {
		if infra.IsNoRows(err) {
			return doc, false, nil
		}
		return doc, false, err
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, false, fmt.Errorf("configstore: decode setting %q: %w", b.key, err)
	}
	return doc, true, nil
}

func (b *PostgresBackend) Write(ctx context.Context, doc jsoncfg.ProviderDocument) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = b.sql.Exec(ctx, sqlinline.QUpsertProviderSetting, b.key, raw)
	return err
}

var _ Backend = (*PostgresBackend)(nil)
