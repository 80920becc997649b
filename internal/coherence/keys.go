// Package coherence keeps the read-side cache consistent with the
// store: it owns the deterministic cache-key vocabulary and the
// invalidation table applied on every committed mutation.
package coherence

import (
	"fmt"
	"strings"
	"time"
)

// Cache key namespaces. Single-resource and un-parameterized aggregate
// keys have bounded identity and are evicted explicitly; parameterized
// list and date-ranged keys form unbounded families and are left to
// expire by TTL.
const (
	nsPost      = "post"
	nsPostList  = "posts:list"
	nsStats     = "stats"
	nsRolesMeta = "roles:meta"
)

// Stat entities addressed by StatsKey and StatsRangeKey.
const (
	StatsPosts    = "posts"
	StatsComments = "comments"
	StatsUsers    = "users"
)

// PostKey addresses the single-post view, comment count and last
// comment included.
func PostKey(id int64) string {
	return fmt.Sprintf("%s:%d", nsPost, id)
}

// StatsKey addresses an un-parameterized aggregate.
func StatsKey(entity string) string {
	return nsStats + ":" + entity
}

// StatsRangeKey addresses a date-bounded aggregate. Range keys are a
// TTL family and never evicted explicitly.
func StatsRangeKey(entity string, from, to time.Time) string {
	return fmt.Sprintf("%s:%s:range:%s:%s", nsStats, entity, dayToken(from), dayToken(to))
}

// RolesMetaKey addresses the role metadata listing.
func RolesMetaKey() string {
	return nsRolesMeta
}

// ListParams is the canonicalized parameter tuple of a post listing.
// Build it through NormalizeListParams so equivalent requests yield
// byte-identical keys.
type ListParams struct {
	Status    string
	SortField string
	SortOrder string
	Page      int
	PageSize  int
	From      *time.Time
	To        *time.Time
}

// NormalizeListParams applies defaults and folds case so the key is
// independent of how the caller spelled the query.
func NormalizeListParams(p ListParams) ListParams {
	p.Status = strings.ToLower(strings.TrimSpace(p.Status))
	p.SortField = strings.ToLower(strings.TrimSpace(p.SortField))
	if p.SortField == "" {
		p.SortField = "published_at"
	}
	p.SortOrder = strings.ToLower(strings.TrimSpace(p.SortOrder))
	if p.SortOrder != "asc" {
		p.SortOrder = "desc"
	}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 || p.PageSize > 100 {
		p.PageSize = 20
	}
	return p
}

// PostListKey composes the cache key for a listing. The field order is
// fixed, so two parameter tuples that differ only in construction
// order produce the same key.
func PostListKey(p ListParams) string {
	p = NormalizeListParams(p)
	status := p.Status
	if status == "" {
		status = "all"
	}
	return fmt.Sprintf("%s:status=%s:sort=%s:order=%s:page=%d:size=%d:from=%s:to=%s",
		nsPostList, status, p.SortField, p.SortOrder, p.Page, p.PageSize,
		rangeToken(p.From), rangeToken(p.To))
}

func dayToken(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func rangeToken(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return dayToken(*t)
}
