package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/sweeper/pkg/resource"
)

// DefaultTable is the table deletions are written to.
const DefaultTable = "RemovedResourceGroups"

// TableAPI defines the table operations used by TableSink.
type TableAPI interface {
	CreateTable(ctx context.Context, options *aztables.CreateTableOptions) (aztables.CreateTableResponse, error)
	AddEntity(ctx context.Context, entity []byte, options *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
}

// TableSink writes deletion records to Azure Table Storage.
type TableSink struct {
	table TableAPI
	name  string
}

// NewTableSink connects with a storage account connection string and
// ensures the table exists.
func NewTableSink(ctx context.Context, connectionString, table string) (*TableSink, error) {
	if table == "" {
		table = DefaultTable
	}

	svc, err := aztables.NewServiceClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("create table service client: %w", err)
	}

	return newTableSink(ctx, svc.NewClient(table), table)
}

func newTableSink(ctx context.Context, client TableAPI, name string) (*TableSink, error) {
	if _, err := client.CreateTable(ctx, nil); err != nil && !isTableExists(err) {
		return nil, fmt.Errorf("create table %s: %w", name, err)
	}
	log.Debug().Str("table", name).Msg("audit table ready")
	return &TableSink{table: client, name: name}, nil
}

// Append inserts rec as a new entity.
func (t *TableSink) Append(ctx context.Context, rec resource.DeletionRecord) error {
	entity := aztables.EDMEntity{
		Entity: aztables.Entity{
			PartitionKey: SanitizeKey(rec.PartitionKey),
			RowKey:       SanitizeKey(rec.RowKey),
		},
		Properties: map[string]any{
			"Name":      rec.Name,
			"RemovedOn": aztables.EDMDateTime(rec.RemovedOn.UTC()),
		},
	}

	body, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("marshal table entity: %w", err)
	}

	if _, err := t.table.AddEntity(ctx, body, nil); err != nil {
		return fmt.Errorf("add entity to %s: %w", t.name, err)
	}
	return nil
}

// Close is a no-op; the SDK client holds no resources.
func (t *TableSink) Close() error {
	return nil
}

var keyReplacer = strings.NewReplacer("/", "|", `\`, "|", "#", "_", "?", "_")

// SanitizeKey makes s usable as a table PartitionKey or RowKey, which may not
// contain '/', '\', '#', '?' or control characters.
func SanitizeKey(s string) string {
	s = keyReplacer.Replace(s)
	return strings.Map(func(r rune) rune {
		if r < 0x20 || (r >= 0x7f && r <= 0x9f) {
			return -1
		}
		return r
	}, s)
}

func isTableExists(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode == "TableAlreadyExists"
}
