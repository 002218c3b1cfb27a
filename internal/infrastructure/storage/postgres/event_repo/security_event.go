// Package event_repo stores security events and notifications.
package event_repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"crmflow/internal/core/id"
	"crmflow/internal/domain/securityevent"
	"crmflow/internal/infrastructure/storage/postgres"
)

const eventsTable = "security_events"

// SecurityEventRepo implements securityevent.Repository. It always writes
// through the pool: an event must persist even when the request's
// transaction rolls back.
type SecurityEventRepo struct {
	txm   *postgres.TxManager
	codec *postgres.JSONCodec
}

// NewSecurityEventRepo creates the repository.
func NewSecurityEventRepo(txm *postgres.TxManager, codec *postgres.JSONCodec) *SecurityEventRepo {
	return &SecurityEventRepo{txm: txm, codec: codec}
}

// Insert appends one event.
func (r *SecurityEventRepo) Insert(ctx context.Context, ev *securityevent.Event) error {
	doc, err := r.codec.Encode(ev.Details)
	if err != nil {
		return fmt.Errorf("encode event details: %w", err)
	}

	sql, args, err := insertEventQuery(ev, doc).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.PoolQuerier().Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert security event: %w", err)
	}
	return nil
}

func insertEventQuery(ev *securityevent.Event, doc postgres.Encoded) squirrel.InsertBuilder {
	var inline any
	if doc.Inline != nil {
		inline = string(doc.Inline)
	}

	return postgres.Builder().
		Insert(eventsTable).
		Columns("id", "event_type", "user_id", "ip_address", "user_agent",
			"details", "details_compressed", "compression_algo", "severity", "created_at").
		Values(ev.ID, string(ev.EventType), ev.UserID, ev.IPAddress, ev.UserAgent,
			inline, doc.Compressed, string(doc.Algo), string(ev.Severity), ev.CreatedAt)
}

type eventRow struct {
	ID                id.ID                   `db:"id"`
	EventType         securityevent.EventType `db:"event_type"`
	UserID            *id.ID                  `db:"user_id"`
	IPAddress         string                  `db:"ip_address"`
	UserAgent         string                  `db:"user_agent"`
	Details           json.RawMessage         `db:"details"`
	DetailsCompressed []byte                  `db:"details_compressed"`
	CompressionAlgo   string                  `db:"compression_algo"`
	Severity          securityevent.Severity  `db:"severity"`
	CreatedAt         time.Time               `db:"created_at"`
}

var eventCols = postgres.Columns[eventRow]()

// List returns events newest first with the total match count.
func (r *SecurityEventRepo) List(ctx context.Context, filter securityevent.ListFilter) ([]securityevent.Event, int, error) {
	filter.Normalize()
	q := r.txm.PoolQuerier()
	where := eventWhere(filter)

	countSQL, countArgs, err := applyWhere(postgres.Builder().Select("COUNT(*)").From(eventsTable), where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}

	var total int
	if err := q.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count security events: %w", err)
	}
	if total == 0 {
		return []securityevent.Event{}, 0, nil
	}

	sql, args, err := applyWhere(postgres.Builder().Select(eventCols...).From(eventsTable), where).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(filter.Limit)).
		Offset(uint64(filter.Offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build query: %w", err)
	}

	var rows []eventRow
	if err := pgxscan.Select(ctx, q, &rows, sql, args...); err != nil {
		return nil, 0, fmt.Errorf("list security events: %w", err)
	}

	out := make([]securityevent.Event, 0, len(rows))
	for _, row := range rows {
		ev := securityevent.Event{
			ID:        row.ID,
			EventType: row.EventType,
			UserID:    row.UserID,
			IPAddress: row.IPAddress,
			UserAgent: row.UserAgent,
			Severity:  row.Severity,
			CreatedAt: row.CreatedAt,
		}
		if err := r.codec.Decode(row.Details, row.DetailsCompressed, postgres.CompressionAlgo(row.CompressionAlgo), &ev.Details); err != nil {
			return nil, 0, fmt.Errorf("decode event %s details: %w", row.ID, err)
		}
		out = append(out, ev)
	}
	return out, total, nil
}

func eventWhere(f securityevent.ListFilter) squirrel.And {
	where := squirrel.And{}
	if f.EventType != "" {
		where = append(where, squirrel.Eq{"event_type": string(f.EventType)})
	}
	if f.UserID != nil {
		where = append(where, squirrel.Eq{"user_id": *f.UserID})
	}
	if f.Severity != "" {
		where = append(where, squirrel.Eq{"severity": string(f.Severity)})
	}
	if f.Since != nil {
		where = append(where, squirrel.GtOrEq{"created_at": *f.Since})
	}
	return where
}

func applyWhere(q squirrel.SelectBuilder, where squirrel.And) squirrel.SelectBuilder {
	if len(where) == 0 {
		return q
	}
	return q.Where(where)
}

var _ securityevent.Repository = (*SecurityEventRepo)(nil)
