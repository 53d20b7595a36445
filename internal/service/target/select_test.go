package target

import (
	"testing"

	"targetvision/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
)

// strip builds a tilted rectangle around (cx, cy). A left strip "/" has its
// leftmost corner lowest in the image.
func strip(cx, cy float64, left bool) model.TargetShape {
	corners := [4]r2.Vec{
		{X: cx - 6, Y: cy - 9},
		{X: cx - 2, Y: cy - 11},
		{X: cx + 6, Y: cy + 9},
		{X: cx + 2, Y: cy + 11},
	}
	if left {
		corners = [4]r2.Vec{
			{X: cx - 6, Y: cy + 9},
			{X: cx - 2, Y: cy + 11},
			{X: cx + 6, Y: cy - 9},
			{X: cx + 2, Y: cy - 11},
		}
	}
	return model.TargetShape{Corners: corners, X: int(cx), Y: int(cy), W: 12, H: 22}
}

func TestSelectPair_NoCandidates(t *testing.T) {
	assert.Nil(t, SelectPair(nil, 320))
	assert.Nil(t, SelectPair([]model.TargetShape{strip(100, 100, true)}, 320))
	// Two right-leaning strips never form a pair.
	assert.Nil(t, SelectPair([]model.TargetShape{strip(100, 100, false), strip(140, 100, false)}, 320))
	// Inward-facing order is required: "\" then "/" is not a target.
	assert.Nil(t, SelectPair([]model.TargetShape{strip(100, 100, false), strip(140, 100, true)}, 320))
}

func TestSelectPair_SinglePair(t *testing.T) {
	l, r := strip(140, 120, true), strip(180, 120, false)

	pair := SelectPair([]model.TargetShape{r, l}, 320)
	require.NotNil(t, pair)

	assert.Equal(t, l, pair.Left)
	assert.Equal(t, r, pair.Right)
	assert.Equal(t, 160, pair.X)
	assert.Equal(t, 120, pair.Y)
	assert.Equal(t, 52, pair.W)
	assert.Equal(t, 22, pair.H)
}

func TestSelectPair_PrefersCentredPair(t *testing.T) {
	shapes := []model.TargetShape{
		strip(20, 100, true), strip(60, 100, false), // centre 40
		strip(150, 100, true), strip(190, 100, false), // centre 170
		strip(260, 100, true), strip(300, 100, false), // centre 280
	}

	pair := SelectPair(shapes, 320)
	require.NotNil(t, pair)
	assert.Equal(t, 170, pair.X)
}

func TestSelectPair_DoesNotModifyInput(t *testing.T) {
	shapes := []model.TargetShape{strip(180, 120, false), strip(140, 120, true)}
	first := shapes[0]

	SelectPair(shapes, 320)
	assert.Equal(t, first, shapes[0])
}
