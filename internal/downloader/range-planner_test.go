package downloader

import (
	"errors"
	"reflect"
	"testing"
)

func TestPlanRangesExamples(t *testing.T) {
	tests := []struct {
		total       int64
		parallelism int
		want        []Range
	}{
		{1000, 4, []Range{{0, 249}, {250, 499}, {500, 749}, {750, 999}}},
		{10, 4, []Range{{0, 1}, {2, 3}, {4, 5}, {6, 9}}},
		{7, 1, []Range{{0, 6}}},
		{3, 8, []Range{{0, 0}, {1, 1}, {2, 2}}},
		{1, 1, []Range{{0, 0}}},
	}
	for _, tt := range tests {
		got, err := PlanRanges(tt.total, tt.parallelism)
		if err != nil {
			t.Fatalf("PlanRanges(%d, %d): %v", tt.total, tt.parallelism, err)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("PlanRanges(%d, %d) = %v, want %v", tt.total, tt.parallelism, got, tt.want)
		}
	}
}

func TestPlanRangesCoversTotal(t *testing.T) {
	for total := int64(1); total <= 300; total++ {
		for parallelism := 1; parallelism <= 17; parallelism++ {
			ranges, err := PlanRanges(total, parallelism)
			if err != nil {
				t.Fatalf("PlanRanges(%d, %d): %v", total, parallelism, err)
			}
			want := parallelism
			if total < int64(parallelism) {
				want = int(total)
			}
			if len(ranges) != want {
				t.Fatalf("PlanRanges(%d, %d) gave %d ranges, want %d", total, parallelism, len(ranges), want)
			}
			var sum, next int64
			for i, r := range ranges {
				if r.Start != next {
					t.Fatalf("PlanRanges(%d, %d): range %d starts at %d, want %d", total, parallelism, i, r.Start, next)
				}
				if r.Len() <= 0 {
					t.Fatalf("PlanRanges(%d, %d): range %d is empty", total, parallelism, i)
				}
				if i < len(ranges)-1 && r.Len() != ranges[0].Len() {
					t.Fatalf("PlanRanges(%d, %d): only the last range may differ in size", total, parallelism)
				}
				sum += r.Len()
				next = r.End + 1
			}
			if sum != total || next != total {
				t.Fatalf("PlanRanges(%d, %d) covers %d bytes, want %d", total, parallelism, sum, total)
			}
		}
	}
}

func TestPlanRangesErrors(t *testing.T) {
	if _, err := PlanRanges(0, 4); !errors.Is(err, ErrEmptyResource) {
		t.Errorf("total 0: err = %v, want ErrEmptyResource", err)
	}
	if _, err := PlanRanges(100, 0); !errors.Is(err, ErrInvalidParallelism) {
		t.Errorf("parallelism 0: err = %v, want ErrInvalidParallelism", err)
	}
	if _, err := PlanRanges(100, -2); !errors.Is(err, ErrInvalidParallelism) {
		t.Errorf("parallelism -2: err = %v, want ErrInvalidParallelism", err)
	}
}
