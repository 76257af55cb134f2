package schc_test

import (
	"testing"

	"github.com/dantte-lp/goschc/internal/schc"
)

func TestDirectionCompatibleWith(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rule schc.Direction
		pkt  schc.Direction
		want bool
	}{
		{"up/up", schc.DirUp, schc.DirUp, true},
		{"up/down", schc.DirUp, schc.DirDown, false},
		{"bidi/up", schc.DirBidirectional, schc.DirUp, true},
		{"bidi/down", schc.DirBidirectional, schc.DirDown, true},
		{"down/bidi-pkt", schc.DirDown, schc.DirBidirectional, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.rule.CompatibleWith(tt.pkt); got != tt.want {
				t.Errorf("%s.CompatibleWith(%s) = %v, want %v", tt.rule, tt.pkt, got, tt.want)
			}
		})
	}
}

func TestFilterByDirectionPicksMatchingVariant(t *testing.T) {
	t.Parallel()

	fields := []schc.RuleFieldDescriptor{
		{FieldDescriptor: schc.FieldDescriptor{ID: "f", Direction: schc.DirUp}},
		{FieldDescriptor: schc.FieldDescriptor{ID: "f", Direction: schc.DirDown}},
	}

	up := schc.FilterByDirection(fields, schc.DirUp)
	if len(up) != 1 || up[0].Direction != schc.DirUp {
		t.Fatalf("FilterByDirection(up) = %+v, want the DirUp variant only", up)
	}

	down := schc.FilterByDirection(fields, schc.DirDown)
	if len(down) != 1 || down[0].Direction != schc.DirDown {
		t.Fatalf("FilterByDirection(down) = %+v, want the DirDown variant only", down)
	}
}

func TestBitsNeeded(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n    int
		want int
	}{
		{0, 0},
		{1, 0},
		{2, 1},
		{3, 2},
		{4, 2},
		{5, 3},
		{8, 3},
		{9, 4},
	}
	for _, tt := range tests {
		if got := schc.BitsNeeded(tt.n); got != tt.want {
			t.Errorf("BitsNeeded(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestRuleDescriptorIsDefault(t *testing.T) {
	t.Parallel()

	def := schc.RuleDescriptor{}
	if !def.IsDefault() {
		t.Error("empty RuleDescriptor should be the default rule")
	}

	withFields := schc.RuleDescriptor{Fields: []schc.RuleFieldDescriptor{{}}}
	if withFields.IsDefault() {
		t.Error("RuleDescriptor with fields should not be the default rule")
	}
}
