package sessioncache

import (
	"context"
	"strconv"

	"github.com/captify/captify/internal/services/shared/apiclient"
)

// Remote tables holding the cached collections.
const (
	TableUsers        = "users"
	TableApplications = "applications"
	TableUserState    = "user-state"
)

// Source fetches the collections a snapshot is built from.
type Source interface {
	ListUsers(ctx context.Context) ([]Item, error)
	ListApplications(ctx context.Context) ([]Item, error)
	ListUserState(ctx context.Context, userID string) ([]Item, error)
}

// RemoteSource reads the collections through the platform API.
type RemoteSource struct {
	runner apiclient.Runner
}

// NewRemoteSource builds a source over runner.
func NewRemoteSource(runner apiclient.Runner) *RemoteSource {
	return &RemoteSource{runner: runner}
}

// ListUsers scans the users table.
func (s *RemoteSource) ListUsers(ctx context.Context) ([]Item, error) {
	return apiclient.RunItems[Item](ctx, s.runner, apiclient.Request{
		Service:   "dynamo",
		Operation: "scan",
		Table:     TableUsers,
	}).Unpack()
}

// ListApplications scans the applications table.
func (s *RemoteSource) ListApplications(ctx context.Context) ([]Item, error) {
	return apiclient.RunItems[Item](ctx, s.runner, apiclient.Request{
		Service:   "dynamo",
		Operation: "scan",
		Table:     TableApplications,
	}).Unpack()
}

// ListUserState queries the user-state rows owned by userID.
func (s *RemoteSource) ListUserState(ctx context.Context, userID string) ([]Item, error) {
	return apiclient.RunItems[Item](ctx, s.runner, apiclient.Request{
		Service:   "dynamo",
		Operation: "query",
		Table:     TableUserState,
		Data:      map[string]any{"filter": "owner_id = " + strconv.Quote(userID)},
	}).Unpack()
}
