package golemsql

import (
	"testing"
	"time"
)

func TestBindParameters(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		params  map[string]any
		want    string
		wantErr bool
	}{
		{
			name:   "pyformat string",
			query:  "SELECT * FROM t WHERE name = %(name)s",
			params: map[string]any{"name": "Al"},
			want:   "SELECT * FROM t WHERE name = 'Al'",
		},
		{
			name:   "colon style normalized",
			query:  "SELECT * FROM t WHERE age > :age AND name = :name",
			params: map[string]any{"age": 30, "name": "Al"},
			want:   "SELECT * FROM t WHERE age > 30 AND name = 'Al'",
		},
		{
			name:   "quote doubling",
			query:  "INSERT INTO t (name) VALUES (%(v)s)",
			params: map[string]any{"v": "O'Brien"},
			want:   "INSERT INTO t (name) VALUES ('O''Brien')",
		},
		{
			name:   "nil renders NULL",
			query:  "UPDATE t SET name = %(v)s",
			params: map[string]any{"v": nil},
			want:   "UPDATE t SET name = NULL",
		},
		{
			name:   "time renders as datetime literal",
			query:  "INSERT INTO t (at) VALUES (%(at)s)",
			params: map[string]any{"at": time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)},
			want:   "INSERT INTO t (at) VALUES ('2024-06-01 12:30:00')",
		},
		{
			name:   "bytes render as hex literal",
			query:  "INSERT INTO t (b) VALUES (%(b)s)",
			params: map[string]any{"b": []byte{0xDE, 0xAD}},
			want:   "INSERT INTO t (b) VALUES (X'dead')",
		},
		{
			name:   "bool and float",
			query:  "UPDATE t SET a = %(a)s, f = %(f)s",
			params: map[string]any{"a": true, "f": 1.5},
			want:   "UPDATE t SET a = TRUE, f = 1.5",
		},
		{
			name:   "placeholder inside string literal untouched",
			query:  "SELECT * FROM t WHERE name = ':notparam' AND age = :age",
			params: map[string]any{"age": 1},
			want:   "SELECT * FROM t WHERE name = ':notparam' AND age = 1",
		},
		{
			name:    "missing parameter",
			query:   "SELECT * FROM t WHERE name = %(name)s",
			params:  map[string]any{},
			wantErr: true,
		},
		{
			name:    "question mark style rejected",
			query:   "SELECT * FROM t WHERE name = ?",
			params:  map[string]any{},
			wantErr: true,
		},
		{
			name:    "unsupported parameter type",
			query:   "SELECT * FROM t WHERE name = %(v)s",
			params:  map[string]any{"v": struct{}{}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BindParameters(tt.query, tt.params)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("bound = %q\nwant    %q", got, tt.want)
			}
		})
	}
}
