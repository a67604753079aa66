package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func s(v any) Scalar { return Scalar{V: v} }

func TestMerge(t *testing.T) {
	tests := []struct {
		name     string
		defaults Mapping
		override Mapping
		want     Mapping
	}{
		{
			name:     "disjoint keys are unioned",
			defaults: Mapping{"a": s(1)},
			override: Mapping{"b": s(2)},
			want:     Mapping{"a": s(1), "b": s(2)},
		},
		{
			name:     "override wins on scalars",
			defaults: Mapping{"a": s(1)},
			override: Mapping{"a": s(2)},
			want:     Mapping{"a": s(2)},
		},
		{
			name: "nested mappings merge recursively",
			defaults: Mapping{"log": Mapping{
				"level":   s("info"),
				"datefmt": s("%H"),
			}},
			override: Mapping{"log": Mapping{
				"level": s("debug"),
				"file":  Mapping{"path": s("/tmp/x")},
			}},
			want: Mapping{"log": Mapping{
				"level":   s("debug"),
				"datefmt": s("%H"),
				"file":    Mapping{"path": s("/tmp/x")},
			}},
		},
		{
			name:     "scalar replaces mapping wholesale",
			defaults: Mapping{"a": Mapping{"b": s(1)}},
			override: Mapping{"a": s("flat")},
			want:     Mapping{"a": s("flat")},
		},
		{
			name:     "mapping replaces scalar wholesale",
			defaults: Mapping{"a": s("flat")},
			override: Mapping{"a": Mapping{"b": s(1)}},
			want:     Mapping{"a": Mapping{"b": s(1)}},
		},
		{
			name:     "sequences are leaves",
			defaults: Mapping{"a": s([]any{1, 2})},
			override: Mapping{"a": s([]any{3})},
			want:     Mapping{"a": s([]any{3})},
		},
		{
			name:     "empty override",
			defaults: Mapping{"a": s(1)},
			override: Mapping{},
			want:     Mapping{"a": s(1)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(tt.defaults, tt.override)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMerge_SelfIsIdentity(t *testing.T) {
	tree := Mapping{
		"a": s(1),
		"b": Mapping{"c": s("x"), "d": Mapping{"e": s(true)}},
	}

	if diff := cmp.Diff(tree, Merge(tree, tree)); diff != "" {
		t.Errorf("Merge(A, A) != A (-want +got):\n%s", diff)
	}
}

func TestMerge_RecursesPerKey(t *testing.T) {
	a := Mapping{"k": Mapping{"x": s(1), "y": Mapping{"z": s(2)}}}
	b := Mapping{"k": Mapping{"y": Mapping{"w": s(3)}}}

	whole := Merge(a, b)["k"]
	perKey := Merge(a["k"].(Mapping), b["k"].(Mapping))
	if diff := cmp.Diff(Value(perKey), whole); diff != "" {
		t.Errorf("Merge(A, B)[k] != Merge(A[k], B[k]) (-want +got):\n%s", diff)
	}
}

func TestMerge_DoesNotModifyInputs(t *testing.T) {
	a := Mapping{"k": Mapping{"x": s(1)}}
	b := Mapping{"k": Mapping{"x": s(2)}}

	_ = Merge(a, b)

	if got := a["k"].(Mapping)["x"]; got != s(1) {
		t.Errorf("defaults modified: k.x = %v, want 1", got)
	}
}

func TestRegistry_QueryMissing(t *testing.T) {
	reg := FromMapping(Mapping{
		"a": Mapping{"b": Mapping{"c": s("deep")}},
		"leaf": s(5),
	})

	tests := []struct {
		name     string
		segments []string
		want     any
	}{
		{"full path", []string{"a", "b", "c"}, "deep"},
		{"missing first segment", []string{"x"}, nil},
		{"missing middle segment", []string{"a", "x", "c"}, nil},
		{"missing last segment", []string{"a", "b", "x"}, nil},
		{"descending through scalar", []string{"leaf", "x"}, nil},
		{"too deep", []string{"a", "b", "c", "d"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reg.Query(tt.segments...); got != tt.want {
				t.Errorf("Query(%v) = %v, want %v", tt.segments, got, tt.want)
			}
		})
	}
}

func TestRegistry_GetAndHas(t *testing.T) {
	reg := FromMapping(Mapping{
		"top":    s("value"),
		"nested": Mapping{"inner": s(1)},
	})

	if got := reg.Get("top", "fallback"); got != "value" {
		t.Errorf("Get(top) = %v, want value", got)
	}
	if got := reg.Get("absent", "fallback"); got != "fallback" {
		t.Errorf("Get(absent) = %v, want fallback", got)
	}
	if got := reg.Get("nested", nil); !cmp.Equal(got, map[string]any{"inner": 1}) {
		t.Errorf("Get(nested) = %v, want map[inner:1]", got)
	}

	if !reg.Has("top") {
		t.Error("Has(top) = false, want true")
	}
	if reg.Has("inner") {
		t.Error("Has(inner) = true, want false (nested keys are not top level)")
	}
}

func TestRegistry_AccessorsCopySequences(t *testing.T) {
	reg := FromMapping(Mapping{
		"paths":   s([]any{"/lustre/a", map[string]any{"dir": "/lustre/b"}}),
		"archive": Mapping{"exclude": s([]any{"*.tmp"})},
	})
	want := reg.Content()

	paths := reg.Get("paths", nil).([]any)
	paths[0] = "changed"
	paths[1].(map[string]any)["dir"] = "changed"

	exclude := reg.Query("archive", "exclude").([]any)
	exclude[0] = "changed"

	content := reg.Content()
	content["archive"].(Mapping)["exclude"].(Scalar).V.([]any)[0] = "changed"

	section, _ := reg.Lookup("archive")
	section.(Mapping)["exclude"].(Scalar).V.([]any)[0] = "changed"

	leaf, _ := reg.Lookup("paths")
	leaf.(Scalar).V.([]any)[0] = "changed"

	if diff := cmp.Diff(want, reg.Content()); diff != "" {
		t.Errorf("tree modified through accessors (-want +got):\n%s", diff)
	}
}

func TestMapping_CloneCopiesSequences(t *testing.T) {
	orig := Mapping{"list": s([]any{1, 2})}
	clone := orig.Clone()
	clone["list"].(Scalar).V.([]any)[0] = 99

	if got := orig["list"].(Scalar).V.([]any)[0]; got != 1 {
		t.Errorf("original list[0] = %v after modifying clone, want 1", got)
	}
}

func TestParseDocument_Anchors(t *testing.T) {
	doc, err := parseDocument([]byte(`
base: &base
  binary: lfs
  retry_delay: 1s
prod:
  <<: *base
  binary: /usr/bin/lfs
`))
	if err != nil {
		t.Fatalf("parseDocument() error = %v", err)
	}

	want := Mapping{"binary": s("/usr/bin/lfs"), "retry_delay": s("1s")}
	if diff := cmp.Diff(Value(want), doc["prod"]); diff != "" {
		t.Errorf("prod mismatch (-want +got):\n%s", diff)
	}
}
