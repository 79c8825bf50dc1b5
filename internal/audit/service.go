package audit

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// Repository provides the persistence required by the ledger service.
type Repository interface {
	Insert(ctx context.Context, entry Entry) (Entry, error)
	List(ctx context.Context, filters Filters, limit, offset int) ([]Entry, error)
}

// Service coordinates reads and appends on the audit ledger. There is
// deliberately no update or delete path.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Append validates and persists one ledger entry. A rejected write is
// returned to the caller; it is never swallowed.
func (s *Service) Append(ctx context.Context, entry Entry) (Entry, error) {
	if s.repo == nil {
		return Entry{}, fmt.Errorf("audit: repository not configured")
	}
	if err := validate(entry); err != nil {
		return Entry{}, err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	stored, err := s.repo.Insert(ctx, entry)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: append: %w", err)
	}
	return stored, nil
}

// Query returns one page of ledger entries, newest first. Ordering is
// created_at descending with id as tiebreaker so pagination stays stable
// while new entries are appended.
func (s *Service) Query(ctx context.Context, filters Filters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rows, err := s.repo.List(ctx, filters, pageSize+1, offset)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Entries: rows, Paging: paging}, nil
}

// Export returns every entry matching the filters, newest first, ignoring
// pagination. Used by the CSV exporter.
func (s *Service) Export(ctx context.Context, filters Filters) ([]Entry, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	const exportWindow = 10_000
	return s.repo.List(ctx, filters, exportWindow, 0)
}

func validate(entry Entry) error {
	if !entry.Action.Valid() {
		return fmt.Errorf("audit: unknown action %q", entry.Action)
	}
	if !entry.PermissionType.Valid() {
		return fmt.Errorf("audit: unknown permission type %q", entry.PermissionType)
	}
	if strings.TrimSpace(entry.UserID) == "" && strings.TrimSpace(entry.Role) == "" {
		return fmt.Errorf("audit: user id or role required")
	}
	if strings.TrimSpace(entry.CreatedBy) == "" {
		return fmt.Errorf("audit: created_by required")
	}
	return nil
}
