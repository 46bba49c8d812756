package audit

import (
	"strings"
	"testing"
	"time"
)

func TestBuildReportQueryUnfiltered(t *testing.T) {
	query, args := buildReportQuery(ReportFilter{})
	if len(args) != 0 {
		t.Fatalf("args = %v", args)
	}
	if strings.Contains(query, "WHERE") {
		t.Fatalf("unfiltered query has WHERE clause: %s", query)
	}
	if !strings.HasSuffix(query, "ORDER BY created_at DESC") {
		t.Fatalf("missing newest-first ordering: %s", query)
	}
}

func TestBuildReportQueryAllPredicates(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	query, args := buildReportQuery(ReportFilter{UserID: int64p(7), Start: &start, End: &end})

	if len(args) != 3 {
		t.Fatalf("args = %v", args)
	}
	for _, want := range []string{"user_id = $1", "created_at >= $2", "created_at <= $3"} {
		if !strings.Contains(query, want) {
			t.Fatalf("query missing %q: %s", want, query)
		}
	}
	if args[0] != int64(7) {
		t.Fatalf("first arg = %v", args[0])
	}
	// Inclusive bounds: both comparisons carry equality.
	if strings.Contains(query, "created_at > $") || strings.Contains(query, "created_at < $") {
		t.Fatalf("bounds must be inclusive: %s", query)
	}
}

func TestBuildReportQueryTimeOnly(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	query, args := buildReportQuery(ReportFilter{Start: &start})
	if len(args) != 1 {
		t.Fatalf("args = %v", args)
	}
	if !strings.Contains(query, "created_at >= $1") {
		t.Fatalf("placeholder numbering wrong: %s", query)
	}
}
