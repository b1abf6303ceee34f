package store

import "context"

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Reports
	SaveReport(ctx context.Context, report *Report) error
	GetReport(ctx context.Context, id string) (*Report, error)
	LatestReport(ctx context.Context, app string) (*Report, error)
	ListReports(ctx context.Context, filter ReportFilter) ([]*Report, error)
	DeleteReports(ctx context.Context, app string) (int64, error)

	// Secrets
	StoreSecret(ctx context.Context, key string, value []byte) error
	GetSecret(ctx context.Context, key string) ([]byte, error)
	DeleteSecret(ctx context.Context, key string) error
	ListSecrets(ctx context.Context, prefix string) ([]string, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
