package cache

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"
	"time"
)

type bindingPoint struct {
	X, Y   int
	secret string
}

type bindingLabel string

type bindingIDs []int

type failingValuer struct{}

func (failingValuer) Value() (driver.Value, error) {
	return nil, errors.New("boom")
}

func TestBindingSerializer_Values(t *testing.T) {
	serializer := NewBindingSerializer()
	value := 42

	tests := []struct {
		name     string
		bindings []any
		want     string
	}{
		{
			name:     "no bindings",
			bindings: []any{},
			want:     "a[0]:{}",
		},
		{
			name:     "single int",
			bindings: []any{42},
			want:     "a[1]:{i:42}",
		},
		{
			name:     "basic types",
			bindings: []any{1, "hello", true, 3.14, uint8(7)},
			want:     "a[5]:{i:1;s5:hello;B:true;f:3.14;u:7}",
		},
		{
			name:     "string with separators",
			bindings: []any{"a;b"},
			want:     "a[1]:{s3:a;b}",
		},
		{
			name:     "nil values",
			bindings: []any{nil, (*int)(nil)},
			want:     "a[2]:{N;N}",
		},
		{
			name:     "pointer",
			bindings: []any{&value},
			want:     "a[1]:{i:42}",
		},
		{
			name:     "bytes",
			bindings: []any{[]byte{0xde, 0xad}},
			want:     "a[1]:{b:dead}",
		},
		{
			name:     "time and duration",
			bindings: []any{time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), 90 * time.Second},
			want:     "a[2]:{t:2024-01-02T03:04:05Z;d:1m30s}",
		},
		{
			name:     "slices",
			bindings: []any{[]int{1, 2, 3}, []int(nil)},
			want:     "a[2]:{slice[3]:{i:1,i:2,i:3};slice:nil}",
		},
		{
			name:     "array",
			bindings: []any{[2]string{"a", "b"}},
			want:     "a[1]:{array[2]:{s1:a,s1:b}}",
		},
		{
			name:     "map is sorted",
			bindings: []any{map[string]int{"count": 10, "age": 25}},
			want:     "a[1]:{map[2]:{s3:age=i:25,s5:count=i:10}}",
		},
		{
			name:     "nil map",
			bindings: []any{map[string]int(nil)},
			want:     "a[1]:{map:nil}",
		},
		{
			name:     "struct skips unexported fields",
			bindings: []any{bindingPoint{X: 1, Y: 2, secret: "x"}},
			want:     "a[1]:{struct cache.bindingPoint:{X:i:1,Y:i:2}}",
		},
		{
			name:     "defined types carry their name",
			bindings: []any{bindingLabel("role"), bindingIDs{1, 2}},
			want:     "a[2]:{cache.bindingLabel(s4:role);cache.bindingIDs(slice[2]:{i:1,i:2})}",
		},
		{
			name:     "driver valuer",
			bindings: []any{sql.NullString{String: "x", Valid: true}, sql.NullInt64{}},
			want:     "a[2]:{v:s1:x;v:N}",
		},
		{
			name:     "failing valuer falls back to json",
			bindings: []any{failingValuer{}},
			want:     "a[1]:{json:{}}",
		},
		{
			name:     "unsupported kind",
			bindings: []any{complex(1, 2)},
			want:     "a[1]:{fallback:complex128:(1+2i)}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := serializer.Serialize(tt.bindings); got != tt.want {
				t.Errorf("Serialize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBindingSerializer_NoCollisions(t *testing.T) {
	serializer := NewBindingSerializer()

	pairs := []struct {
		name string
		a, b []any
	}{
		{"int vs string", []any{1}, []any{"1"}},
		{"int vs uint", []any{1}, []any{uint(1)}},
		{"split vs joined", []any{"a", "b"}, []any{"a;b"}},
		{"nil vs empty string", []any{nil}, []any{""}},
		{"bool vs string", []any{true}, []any{"true"}},
		{"nested vs flat", []any{[]int{1, 2}}, []any{1, 2}},
		{"order matters", []any{1, 2}, []any{2, 1}},
		{"defined string vs string", []any{bindingLabel("role")}, []any{"role"}},
		{"defined slice vs slice", []any{bindingIDs{1}}, []any{[]int{1}}},
	}

	for _, tt := range pairs {
		t.Run(tt.name, func(t *testing.T) {
			if a, b := serializer.Serialize(tt.a), serializer.Serialize(tt.b); a == b {
				t.Errorf("Serialize(%v) and Serialize(%v) collide: %q", tt.a, tt.b, a)
			}
		})
	}
}

func TestBindingSerializer_FunctionsAndChannels(t *testing.T) {
	serializer := NewBindingSerializer()

	fn := func() {}
	ch := make(chan int)

	key1 := serializer.Serialize([]any{fn, ch})
	key2 := serializer.Serialize([]any{fn, ch})
	if key1 != key2 {
		t.Errorf("serialization should be stable within a process: %q != %q", key1, key2)
	}

	if !strings.HasPrefix(key1, "a[2]:{func:0x") {
		t.Errorf("function should use the func: prefix with its pointer, got %q", key1)
	}
	if !strings.Contains(key1, ";chan:0x") {
		t.Errorf("channel should use the chan: prefix with its pointer, got %q", key1)
	}
}

func TestBindingSerializer_Stability(t *testing.T) {
	serializer := NewBindingSerializer()
	bindings := []any{1, "hello", []int{1, 2, 3}, map[string]int{"a": 1, "b": 2, "c": 3}}

	want := serializer.Serialize(bindings)
	for i := 0; i < 50; i++ {
		if got := serializer.Serialize(bindings); got != want {
			t.Fatalf("run %d: %q != %q", i, got, want)
		}
	}
}

func BenchmarkBindingSerializer(b *testing.B) {
	serializer := NewBindingSerializer()
	bindings := []any{1, "benchmark", []int{1, 2, 3}, map[string]int{"test": 1}}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		serializer.Serialize(bindings)
	}
}
