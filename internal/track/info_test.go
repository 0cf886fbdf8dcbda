package track

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExtract(t *testing.T) {
	var nilBound *Bound

	tests := []struct {
		name string
		ref  Reference
		want Info
	}{
		{"absent", nil, Info{}},
		{"typed nil", nilBound, Info{}},
		{"id only", &Bound{ID: "t1"}, Info{ID: "t1", Label: Unknown}},
		{"empty bound", &Bound{}, Info{ID: Unknown, Label: Unknown}},
		{"empty placeholder", &Placeholder{}, Info{ID: Unknown, Label: Unknown}},
		{"full", &Bound{ID: "mic", Label: "Studio A"}, Info{ID: "mic", Label: "Studio A"}},
		{"placeholder label", &Placeholder{Label: "waiting"}, Info{ID: Unknown, Label: "waiting"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.ref)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Extract() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtractEmptyIsEmpty(t *testing.T) {
	if !Extract(nil).IsEmpty() {
		t.Error("Extract(nil) is not the empty record")
	}
	if Extract(&Placeholder{}).IsEmpty() {
		t.Error("Extract(placeholder) should apply defaults")
	}
}

func TestTypeOf(t *testing.T) {
	if got := TypeOf(nil); got != "undefined" {
		t.Errorf("TypeOf(nil) = %q, want undefined", got)
	}
	if got := TypeOf(&Bound{}); got != "bound" {
		t.Errorf("TypeOf(bound) = %q, want bound", got)
	}
	if got := TypeOf(&Placeholder{}); got != "placeholder" {
		t.Errorf("TypeOf(placeholder) = %q, want placeholder", got)
	}
}

func TestSourceOf(t *testing.T) {
	em := NewEmitter()
	if _, ok := SourceOf(&Bound{Source: em}); !ok {
		t.Error("SourceOf(bound with source) = false")
	}
	if _, ok := SourceOf(&Bound{}); ok {
		t.Error("SourceOf(bound without source) = true")
	}
	if _, ok := SourceOf(&Placeholder{}); ok {
		t.Error("SourceOf(placeholder) = true")
	}
	if _, ok := SourceOf(nil); ok {
		t.Error("SourceOf(nil) = true")
	}
}
