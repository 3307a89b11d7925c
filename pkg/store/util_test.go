package store

import (
	"errors"
	"reflect"
	"testing"
)

func TestChunkRange(t *testing.T) {
	type window struct{ Start, End int }

	tests := []struct {
		name      string
		total     int
		chunkSize int
		want      []window
	}{
		{name: "empty", total: 0, chunkSize: 10, want: nil},
		{name: "single partial window", total: 3, chunkSize: 10, want: []window{{0, 3}}},
		{name: "exact multiple", total: 6, chunkSize: 3, want: []window{{0, 3}, {3, 6}}},
		{name: "trailing remainder", total: 7, chunkSize: 3, want: []window{{0, 3}, {3, 6}, {6, 7}}},
		{name: "non-positive chunk size", total: 5, chunkSize: 0, want: []window{{0, 5}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []window
			err := ChunkRange(tt.total, tt.chunkSize, func(start, end int) error {
				got = append(got, window{start, end})
				return nil
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("unexpected windows: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChunkRangeStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := ChunkRange(10, 3, func(start, end int) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("unexpected error: got %v, want %v", err, boom)
	}
	if calls != 2 {
		t.Fatalf("expected processing to stop after the failing window, got %d calls", calls)
	}
}
