package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/rxhub/pharmacy/internal/platform/apperr"
	"github.com/rxhub/pharmacy/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const notificationCols = `id, recipient_id, recipient_role, type, priority, title, message,
	data, channels, status, delivered_at, read_at, created_at`

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	var data []byte
	var channels []string
	if err := row.Scan(&n.ID, &n.RecipientID, &n.RecipientRole, &n.Type, &n.Priority,
		&n.Title, &n.Message, &data, &channels, &n.Status, &n.DeliveredAt, &n.ReadAt,
		&n.CreatedAt); err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &n.Data); err != nil {
			return nil, errors.Wrap(err, "decode notification data")
		}
	}
	n.Channels = make([]Channel, len(channels))
	for i, c := range channels {
		n.Channels[i] = Channel(c)
	}
	return &n, nil
}

func (r *repoPG) Create(ctx context.Context, n *Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	data, err := json.Marshal(n.Data)
	if err != nil {
		return errors.Wrap(err, "encode notification data")
	}
	if n.Data == nil {
		data = []byte("{}")
	}
	channels := make([]string, len(n.Channels))
	for i, c := range n.Channels {
		channels[i] = string(c)
	}

	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO notification (id, recipient_id, recipient_role, type, priority, title,
			message, data, channels, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at`,
		n.ID, n.RecipientID, n.RecipientRole, n.Type, n.Priority, n.Title,
		n.Message, data, channels, n.Status).Scan(&n.CreatedAt)
	return apperr.FromDB(errors.Wrap(err, "insert notification"), "notification")
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Notification, error) {
	n, err := scanNotification(r.conn(ctx).QueryRow(ctx,
		`SELECT `+notificationCols+` FROM notification WHERE id = $1`, id))
	if err != nil {
		return nil, apperr.FromDB(errors.Wrap(err, "get notification"), "notification")
	}
	return n, nil
}

func (r *repoPG) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE notification SET status = $2, delivered_at = $3 WHERE id = $1`,
		id, StatusDelivered, at)
	if err != nil {
		return errors.Wrap(err, "mark notification delivered")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("notification not found")
	}
	return nil
}

func (r *repoPG) MarkRead(ctx context.Context, id uuid.UUID, recipients []uuid.UUID, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE notification SET read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND recipient_id = ANY($2)`,
		id, recipients, at)
	if err != nil {
		return errors.Wrap(err, "mark notification read")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("notification not found")
	}
	return nil
}

func (r *repoPG) ListByRecipients(ctx context.Context, recipients []uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	where := `recipient_id = ANY($1)`
	if unreadOnly {
		where += ` AND read_at IS NULL`
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM notification WHERE `+where, recipients).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count notifications")
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+notificationCols+` FROM notification WHERE `+where+`
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, recipients, limit, offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list notifications")
	}
	defer rows.Close()

	items := make([]*Notification, 0, limit)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "scan notification")
		}
		items = append(items, n)
	}
	return items, total, errors.Wrap(rows.Err(), "iterate notifications")
}

func (r *repoPG) CountUnread(ctx context.Context, recipients []uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM notification WHERE recipient_id = ANY($1) AND read_at IS NULL`,
		recipients).Scan(&n)
	return n, errors.Wrap(err, "count unread notifications")
}
