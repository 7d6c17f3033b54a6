package notify

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/wolfeidau/backoffice/internal/models"
)

const (
	NotificationsPath = "/api/v1/notifications/"
	CountPath         = "/api/v1/notifications/count/"
	MarkAllReadPath   = "/api/v1/notifications/mark-all-read/"
	ClearAllPath      = "/api/v1/notifications/clear-all/"
)

// Client is the subset of the authenticated client used by the notification API.
type Client interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Delete(ctx context.Context, path string, body any) error
}

// API wraps the backend notification endpoints.
type API struct {
	client Client
}

func NewAPI(c Client) *API {
	return &API{client: c}
}

// ListOptions filters and paginates List. Zero values are omitted from the query.
type ListOptions struct {
	Page     int
	PageSize int
	Read     *bool
}

func (o ListOptions) query() url.Values {
	q := url.Values{}
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(o.PageSize))
	}
	if o.Read != nil {
		q.Set("read", strconv.FormatBool(*o.Read))
	}
	return q
}

func (a *API) Count(ctx context.Context) (models.NotificationCounters, error) {
	var counters models.NotificationCounters
	if err := a.client.Get(ctx, CountPath, nil, &counters); err != nil {
		return models.NotificationCounters{}, fmt.Errorf("failed to fetch notification count: %w", err)
	}
	return counters, nil
}

func (a *API) List(ctx context.Context, opts ListOptions) (models.NotificationPage, error) {
	var page models.NotificationPage
	if err := a.client.Get(ctx, NotificationsPath, opts.query(), &page); err != nil {
		return models.NotificationPage{}, fmt.Errorf("failed to list notifications: %w", err)
	}
	return page, nil
}

func (a *API) MarkRead(ctx context.Context, id string) error {
	path := NotificationsPath + url.PathEscape(id) + "/mark-read/"
	if err := a.client.Post(ctx, path, nil, nil); err != nil {
		return fmt.Errorf("failed to mark notification %s read: %w", id, err)
	}
	return nil
}

func (a *API) MarkAllRead(ctx context.Context) error {
	if err := a.client.Post(ctx, MarkAllReadPath, nil, nil); err != nil {
		return fmt.Errorf("failed to mark all notifications read: %w", err)
	}
	return nil
}

func (a *API) ClearAll(ctx context.Context) error {
	if err := a.client.Delete(ctx, ClearAllPath, nil); err != nil {
		return fmt.Errorf("failed to clear notifications: %w", err)
	}
	return nil
}
