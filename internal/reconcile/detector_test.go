package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type rec struct {
	id  int
	val string
}

func recKey(r rec) int       { return r.id }
func recEqual(a, b rec) bool { return a == b }

func flags(in []Flagged[rec]) []bool {
	out := make([]bool, len(in))
	for i, f := range in {
		out[i] = f.Changed
	}
	return out
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		prev     []rec
		next     []rec
		expected []bool
	}{
		{"empty previous flags everything", nil, []rec{{1, "a"}, {2, "b"}}, []bool{true, true}},
		{"identical collections", []rec{{1, "a"}}, []rec{{1, "a"}}, []bool{false}},
		{"modified record", []rec{{1, "a"}, {2, "b"}}, []rec{{1, "a"}, {2, "B"}}, []bool{false, true}},
		{"new key", []rec{{1, "a"}}, []rec{{1, "a"}, {3, "c"}}, []bool{false, true}},
		{"reordered but equal", []rec{{1, "a"}, {2, "b"}}, []rec{{2, "b"}, {1, "a"}}, []bool{false, false}},
		{"empty next", []rec{{1, "a"}}, nil, []bool{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Detect(tt.prev, tt.next, recKey, recEqual)
			assert.Equal(t, tt.expected, flags(got))
			for i := range got {
				assert.Equal(t, tt.next[i], got[i].Item, "output follows the order of next")
			}
		})
	}
}

func TestDetectDropsRemovedRecords(t *testing.T) {
	got := Detect([]rec{{1, "a"}, {2, "b"}}, []rec{{2, "b"}}, recKey, recEqual)
	assert.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Item.id)
}

func TestDetectIsIdempotent(t *testing.T) {
	x := []rec{{1, "a"}, {2, "b"}, {3, "c"}}
	for _, f := range Detect(x, x, recKey, recEqual) {
		assert.False(t, f.Changed)
	}
}
