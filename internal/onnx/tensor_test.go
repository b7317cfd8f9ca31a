package onnx

import (
	"reflect"
	"strings"
	"testing"
)

func TestNewTensor(t *testing.T) {
	t.Run("float32 ok", func(t *testing.T) {
		tt, err := NewTensor([]float32{1, 2, 3, 4}, []int64{2, 2})
		if err != nil {
			t.Fatalf("NewTensor failed: %v", err)
		}

		if tt.DType() != DTypeFloat32 {
			t.Fatalf("expected dtype float32, got %s", tt.DType())
		}

		if !reflect.DeepEqual(tt.Shape(), []int64{2, 2}) {
			t.Fatalf("unexpected shape: %v", tt.Shape())
		}

		got, err := tt.Float32()
		if err != nil {
			t.Fatalf("Float32 failed: %v", err)
		}

		if !reflect.DeepEqual(got, []float32{1, 2, 3, 4}) {
			t.Fatalf("unexpected data: %v", got)
		}
	})

	t.Run("int64 is not float32", func(t *testing.T) {
		tt, err := NewTensor([]int64{7}, []int64{1})
		if err != nil {
			t.Fatalf("NewTensor failed: %v", err)
		}

		if tt.DType() != DTypeInt64 {
			t.Fatalf("expected dtype int64, got %s", tt.DType())
		}

		if _, err := tt.Float32(); err == nil {
			t.Fatal("expected dtype error")
		}
	})

	t.Run("shape mismatch", func(t *testing.T) {
		_, err := NewTensor([]int64{1, 2, 3}, []int64{2, 2})
		if err == nil {
			t.Fatal("expected shape mismatch error")
		}

		if !strings.Contains(err.Error(), "expects 4 elements, got 3") {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("non-positive dim", func(t *testing.T) {
		if _, err := NewTensor([]float32{}, []int64{0, 3}); err == nil {
			t.Fatal("expected error for zero dim")
		}
	})
}

func TestTensorCopiesData(t *testing.T) {
	src := []float32{1, 2}

	tt, err := NewTensor(src, []int64{2})
	if err != nil {
		t.Fatal(err)
	}

	src[0] = 99

	got, _ := tt.Float32()
	got[1] = 42

	again, _ := tt.Float32()
	if again[0] != 1 || again[1] != 2 {
		t.Fatalf("tensor data aliased caller slices: %v", again)
	}
}
