package audit

import (
	"context"
	"fmt"
)

// TimelinePort menyediakan akses query timeline yang dibutuhkan service.
type TimelinePort interface {
	Timeline(ctx context.Context, f TimelineFilters, offset, limit int) ([]LogEntry, error)
}

// PagingInfo membawa informasi halaman untuk hasil timeline.
type PagingInfo struct {
	Page     int
	PageSize int
	PrevPage int
	NextPage int
	HasNext  bool
}

// Result membungkus hasil timeline dengan informasi paging.
type Result struct {
	Rows   []LogEntry
	Paging PagingInfo
}

// Service mengoordinasikan pengambilan data audit.
type Service struct {
	repo TimelinePort
}

// NewTimelineService membuat service timeline baru.
func NewTimelineService(repo TimelinePort) *Service {
	return &Service{repo: repo}
}

// Timeline mengambil data audit dengan paging.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rows, err := s.repo.Timeline(ctx, filters, offset, pageSize+1)
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
	return Result{Rows: rows, Paging: paging}, nil
}

// Export mengambil seluruh data timeline tanpa paging.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]LogEntry, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	const batch = 500
	var all []LogEntry
	offset := 0
	for {
		rows, err := s.repo.Timeline(ctx, filters, offset, batch)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
		if len(rows) < batch {
			return all, nil
		}
		offset += batch
	}
}
