package weights

import (
	"errors"
	"slices"
	"testing"
)

func TestPadToTargetGrows(t *testing.T) {
	in := Tensor{Shape: []int{2, 2}, Data: []float32{1, 2, 3, 4}}

	out, err := PadToTarget(in, []int{3, 4})
	if err != nil {
		t.Fatal(err)
	}

	want := []float32{
		1, 2, 0, 0,
		3, 4, 0, 0,
		0, 0, 0, 0,
	}
	if !slices.Equal(out.Data, want) {
		t.Errorf("padded data = %v, want %v", out.Data, want)
	}
	if !slices.Equal(out.Shape, []int{3, 4}) {
		t.Errorf("padded shape = %v, want [3 4]", out.Shape)
	}
}

func TestPadToTargetIdempotent(t *testing.T) {
	in := Tensor{Shape: []int{3}, Data: []float32{1, 2, 3}}

	out, err := PadToTarget(in, []int{3})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(out.Data, in.Data) || !slices.Equal(out.Shape, in.Shape) {
		t.Errorf("padding a target-shaped tensor changed it: %+v", out)
	}
}

func TestPadToTargetDoesNotMutateSource(t *testing.T) {
	data := []float32{1, 2}
	in := Tensor{Shape: []int{2}, Data: data}

	if _, err := PadToTarget(in, []int{5}); err != nil {
		t.Fatal(err)
	}

	if !slices.Equal(data, []float32{1, 2}) {
		t.Errorf("source data mutated: %v", data)
	}
}

func TestPadToTargetOversize(t *testing.T) {
	in := Tensor{Shape: []int{4}, Data: make([]float32, 4)}

	_, err := PadToTarget(in, []int{3})
	if !errors.Is(err, ErrPaddingShape) {
		t.Fatalf("err = %v, want ErrPaddingShape", err)
	}
}

func TestPadToTargetRankMismatch(t *testing.T) {
	in := Tensor{Shape: []int{2, 2}, Data: make([]float32, 4)}

	_, err := PadToTarget(in, []int{4})
	if !errors.Is(err, ErrPaddingShape) {
		t.Fatalf("err = %v, want ErrPaddingShape", err)
	}
}

func TestElements(t *testing.T) {
	cases := []struct {
		shape []int
		want  int
	}{
		{nil, 1},
		{[]int{5}, 5},
		{[]int{2, 3, 4}, 24},
	}

	for _, tc := range cases {
		if got := (Tensor{Shape: tc.shape}).Elements(); got != tc.want {
			t.Errorf("Elements(%v) = %d, want %d", tc.shape, got, tc.want)
		}
	}
}
