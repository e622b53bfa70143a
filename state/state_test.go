package state_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tailored-agentic-units/stategraph/state"
)

func mustSchema(t *testing.T, channels ...state.Channel) *state.Schema {
	t.Helper()
	schema, err := state.NewSchema(channels...)
	if err != nil {
		t.Fatalf("NewSchema failed: %v", err)
	}
	return schema
}

func testSchema(t *testing.T) *state.Schema {
	return mustSchema(t,
		state.OverwriteChannel[string]("metrics"),
		state.OverwriteChannel[int]("a"),
		state.OverwriteChannel[int]("b"),
		state.OverwriteChannel[string]("charts.layout"),
		state.OverwriteChannel[string]("layout"),
		state.AppendChannel("completed"),
		state.Channel{Name: "expected", Reduction: state.Overwrite, Default: 0},
	)
}

func TestNewSchema(t *testing.T) {
	tests := []struct {
		name     string
		channels []state.Channel
		wantErr  bool
	}{
		{name: "valid", channels: []state.Channel{state.AppendChannel("done"), state.OverwriteChannel[int]("n")}},
		{name: "empty name", channels: []state.Channel{{Name: " "}}, wantErr: true},
		{name: "duplicate", channels: []state.Channel{state.AppendChannel("x"), state.OverwriteChannel[int]("x")}, wantErr: true},
		{name: "unknown reduction", channels: []state.Channel{{Name: "x", Reduction: 9}}, wantErr: true},
		{
			name: "default of wrong type",
			channels: []state.Channel{func() state.Channel {
				ch := state.OverwriteChannel[int]("n")
				ch.Default = "zero"
				return ch
			}()},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := state.NewSchema(tt.channels...)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewSchema() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSchema_Resolve(t *testing.T) {
	schema := testSchema(t)

	tests := []struct {
		name      string
		namespace string
		key       string
		want      string
		wantOK    bool
	}{
		{name: "qualified wins", namespace: "charts", key: "layout", want: "charts.layout", wantOK: true},
		{name: "flat fallback", namespace: "news", key: "layout", want: "layout", wantOK: true},
		{name: "no namespace", namespace: "", key: "metrics", want: "metrics", wantOK: true},
		{name: "unknown", namespace: "charts", key: "missing", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := schema.Resolve(tt.namespace, tt.key)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Resolve(%q, %q) = (%q, %v), want (%q, %v)",
					tt.namespace, tt.key, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestStore_MergeAppendIsOrderIndependent(t *testing.T) {
	schema := testSchema(t)

	writes := []state.Write{
		{Node: "A", Update: state.Update{"completed": "A"}},
		{Node: "B", Update: state.Update{"completed": []string{"B", "A"}}},
		{Node: "C", Update: state.Update{"completed": state.NewSet("C")}},
	}
	orders := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}

	var reference map[string]any
	for _, order := range orders {
		store, err := state.NewStore(schema, nil)
		if err != nil {
			t.Fatalf("NewStore failed: %v", err)
		}

		permuted := make([]state.Write, len(order))
		for i, idx := range order {
			permuted[i] = writes[idx]
		}
		if _, err := store.Merge(permuted); err != nil {
			t.Fatalf("Merge(%v) failed: %v", order, err)
		}

		if reference == nil {
			reference = store.Values()
			continue
		}
		if diff := cmp.Diff(reference, store.Values()); diff != "" {
			t.Errorf("order %v produced different state (-first +this):\n%s", order, diff)
		}
	}

	want := map[string]any{"completed": state.NewSet("A", "B", "C")}
	if diff := cmp.Diff(want, reference); diff != "" {
		t.Errorf("final state mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_MergeAppendIsIdempotent(t *testing.T) {
	store, err := state.NewStore(testSchema(t), map[string]any{"completed": []string{"A"}})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	for range 3 {
		if _, err := store.Merge([]state.Write{{Node: "A", Update: state.Update{"completed": "A"}}}); err != nil {
			t.Fatalf("Merge failed: %v", err)
		}
	}

	if got := store.Snapshot().Set("completed").Len(); got != 1 {
		t.Errorf("completed has %d members, want 1", got)
	}
}

func TestStore_MergeOverwriteConflict(t *testing.T) {
	store, err := state.NewStore(testSchema(t), map[string]any{"a": 0})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	_, err = store.Merge([]state.Write{
		{Node: "left", Update: state.Update{"a": 1, "completed": "left"}},
		{Node: "right", Update: state.Update{"a": 2}},
	})

	var conflict *state.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.Channel != "a" {
		t.Errorf("Channel = %q, want a", conflict.Channel)
	}
	if diff := cmp.Diff([]string{"left", "right"}, conflict.Nodes); diff != "" {
		t.Errorf("Nodes mismatch (-want +got):\n%s", diff)
	}

	want := map[string]any{"a": 0}
	if diff := cmp.Diff(want, store.Values()); diff != "" {
		t.Errorf("store changed by rejected merge (-want +got):\n%s", diff)
	}
}

func TestStore_MergeErrors(t *testing.T) {
	tests := []struct {
		name   string
		writes []state.Write
		check  func(error) bool
	}{
		{
			name:   "unknown channel",
			writes: []state.Write{{Node: "x", Update: state.Update{"nope": 1}}},
			check: func(err error) bool {
				var e *state.UnknownChannelError
				return errors.As(err, &e) && e.Node == "x" && e.Channel == "nope"
			},
		},
		{
			name:   "overwrite type mismatch",
			writes: []state.Write{{Node: "x", Update: state.Update{"a": "one"}}},
			check: func(err error) bool {
				var e *state.TypeMismatchError
				return errors.As(err, &e) && e.Channel == "a"
			},
		},
		{
			name:   "append type mismatch",
			writes: []state.Write{{Node: "x", Update: state.Update{"completed": 3}}},
			check: func(err error) bool {
				var e *state.TypeMismatchError
				return errors.As(err, &e) && e.Channel == "completed"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := state.NewStore(testSchema(t), nil)
			if err != nil {
				t.Fatalf("NewStore failed: %v", err)
			}
			_, err = store.Merge(tt.writes)
			if err == nil || !tt.check(err) {
				t.Errorf("unexpected error: %v", err)
			}
			if len(store.Values()) != 0 {
				t.Errorf("store changed by rejected merge: %v", store.Values())
			}
		})
	}
}

func TestStore_MergeNamespaced(t *testing.T) {
	store, err := state.NewStore(testSchema(t), nil)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	written, err := store.Merge([]state.Write{
		{Node: "designer", Namespace: "charts", Update: state.Update{"layout": "bar"}},
		{Node: "news", Namespace: "news", Update: state.Update{"layout": "flat"}},
	})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if diff := cmp.Diff([]string{"charts.layout", "layout"}, written); diff != "" {
		t.Errorf("written mismatch (-want +got):\n%s", diff)
	}
	want := map[string]any{"charts.layout": "bar", "layout": "flat"}
	if diff := cmp.Diff(want, store.Values()); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_SnapshotIsIsolated(t *testing.T) {
	store, err := state.NewStore(testSchema(t), map[string]any{"metrics": "pending"})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	view := store.Snapshot()
	if _, err := store.Merge([]state.Write{{Node: "m", Update: state.Update{"metrics": "done"}}}); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if got := view.String("metrics"); got != "pending" {
		t.Errorf("snapshot observed later write: %q", got)
	}
	if got := store.Get("metrics"); got != "done" {
		t.Errorf("Get(metrics) = %v, want done", got)
	}
}

func TestStore_SnapshotCopiesReferenceValues(t *testing.T) {
	schema := mustSchema(t,
		state.OverwriteChannel[[]int]("daily"),
		state.OverwriteChannel[map[string][]string]("tags"),
	)
	store, err := state.NewStore(schema, map[string]any{
		"daily": []int{1, 2, 3},
		"tags":  map[string][]string{"region": {"north"}},
	})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	first, second := store.Snapshot(), store.Snapshot()

	daily, _ := state.Get[[]int](first, "daily")
	daily[0] = 99
	tags, _ := state.Get[map[string][]string](first, "tags")
	tags["region"][0] = "south"
	tags["added"] = []string{"x"}

	want := map[string]any{
		"daily": []int{1, 2, 3},
		"tags":  map[string][]string{"region": {"north"}},
	}
	if diff := cmp.Diff(want, second.Data()); diff != "" {
		t.Errorf("sibling view saw mutation (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, store.Values()); diff != "" {
		t.Errorf("store saw mutation (-want +got):\n%s", diff)
	}

	standalone := state.NewView(schema, want)
	d, _ := state.Get[[]int](standalone, "daily")
	d[1] = 0
	if got := want["daily"].([]int)[1]; got != 2 {
		t.Errorf("NewView shares its input slice: daily[1] = %d", got)
	}
}

func TestNewStore_RejectsUnknownInitial(t *testing.T) {
	_, err := state.NewStore(testSchema(t), map[string]any{"ghost": true})
	var e *state.UnknownChannelError
	if !errors.As(err, &e) {
		t.Errorf("expected UnknownChannelError, got %v", err)
	}
}

func TestView(t *testing.T) {
	schema := testSchema(t)
	view := state.NewView(schema, map[string]any{
		"metrics":       "done",
		"a":             1,
		"charts.layout": "bar",
		"completed":     state.NewSet("A"),
	})

	if got := view.Int("expected"); got != 0 {
		t.Errorf("default expected = %d, want 0", got)
	}
	if view.Has("expected") {
		t.Error("Has(expected) = true for unwritten channel")
	}
	if got := view.Set("completed"); !got.Contains("A") {
		t.Errorf("Set(completed) = %v, want A present", got)
	}
	if got := view.Get("layout"); got != nil {
		t.Errorf("unscoped Get(layout) = %v, want nil", got)
	}
	if got := view.Scoped("charts").String("layout"); got != "bar" {
		t.Errorf("scoped Get(layout) = %q, want bar", got)
	}
	if got := view.Scoped("charts").String("metrics"); got != "done" {
		t.Errorf("scoped flat fallback = %q, want done", got)
	}
	if _, ok := view.Lookup("", "unknown"); ok {
		t.Error("Lookup(unknown) reported a channel")
	}

	n, ok := state.Get[int](view, "a")
	if !ok || n != 1 {
		t.Errorf("Get[int](a) = (%d, %v), want (1, true)", n, ok)
	}
	if _, ok := state.Get[string](view, "a"); ok {
		t.Error("Get[string](a) succeeded on an int channel")
	}
}

func TestView_Int(t *testing.T) {
	schema := mustSchema(t, state.Channel{Name: "n"})

	tests := []struct {
		name  string
		value any
		want  int
	}{
		{name: "int", value: 3, want: 3},
		{name: "int64", value: int64(4), want: 4},
		{name: "float64", value: 5.0, want: 5},
		{name: "string", value: "6", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := state.NewView(schema, map[string]any{"n": tt.value})
			if got := view.Int("n"); got != tt.want {
				t.Errorf("Int(n) = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestView_Nested(t *testing.T) {
	view := state.NewView(testSchema(t), map[string]any{
		"metrics":       "done",
		"charts.layout": "bar",
	})

	want := map[string]any{
		"metrics": "done",
		"charts":  map[string]any{"layout": "bar"},
	}
	if diff := cmp.Diff(want, view.Nested()); diff != "" {
		t.Errorf("Nested() mismatch (-want +got):\n%s", diff)
	}
}

func TestSet(t *testing.T) {
	s := state.NewSet("b", "a", "b")

	if diff := cmp.Diff([]string{"a", "b"}, s.Items()); diff != "" {
		t.Errorf("Items() mismatch (-want +got):\n%s", diff)
	}

	u := s.Union(state.NewSet("c", "a"))
	if u.Len() != 3 || !u.Contains("c") || u.Contains("z") {
		t.Errorf("Union() = %v", u)
	}
	if s.Len() != 2 {
		t.Errorf("Union mutated receiver: %v", s)
	}
	if got := u.String(); got != "{a, b, c}" {
		t.Errorf("String() = %q", got)
	}

	data, err := json.Marshal(state.Set{})
	if err != nil || string(data) != "[]" {
		t.Errorf("Marshal(empty) = %s, %v", data, err)
	}

	var decoded state.Set
	if err := json.Unmarshal([]byte(`["y","x","y"]`), &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !decoded.Equal(state.NewSet("x", "y")) {
		t.Errorf("decoded = %v", decoded)
	}
}

func TestReduction_String(t *testing.T) {
	if state.Overwrite.String() != "overwrite" || state.Append.String() != "append" {
		t.Errorf("unexpected names: %s, %s", state.Overwrite, state.Append)
	}
}
