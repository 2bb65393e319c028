package face

// Landmark is one face-mesh point in normalized image coordinates
// (x, y in [0,1], z relative depth in roughly the same scale as x).
type Landmark struct {
	X, Y, Z float64
}

// MeshPoints is the number of mesh landmarks excluding the iris refinement.
const MeshPoints = 468

// RefinedPoints is the landmark count with iris refinement enabled.
const RefinedPoints = 478

type eyeIndices struct {
	Center [2]int
	Iris   [4]int
	Top    int
	Bottom int
	Outer  int
	Inner  int
}

type browIndices struct {
	Outer int
	Inner int
	Top   int
}

// Landmark indices of the 478-point face mesh used by the extractor.
var (
	leftEye = eyeIndices{
		Center: [2]int{33, 133},
		Iris:   [4]int{468, 469, 470, 471},
		Top:    159,
		Bottom: 145,
		Outer:  33,
		Inner:  133,
	}
	rightEye = eyeIndices{
		Center: [2]int{362, 263},
		Iris:   [4]int{473, 474, 475, 476},
		Top:    386,
		Bottom: 374,
		Outer:  362,
		Inner:  263,
	}

	leftBrow  = browIndices{Outer: 282, Inner: 293, Top: 282}
	rightBrow = browIndices{Outer: 52, Inner: 53, Top: 52}

	noseTip    = 1
	noseBridge = 168

	mouthTop         = 0
	mouthBottom      = 17
	mouthLeftCorner  = 61
	mouthRightCorner = 291

	faceChin       = 152
	faceForehead   = 10
	faceLeftCheek  = 234
	faceRightCheek = 454
)

func centroid(lm []Landmark, idx ...int) (x, y float64) {
	if len(idx) == 0 {
		return 0, 0
	}
	for _, i := range idx {
		x += lm[i].X
		y += lm[i].Y
	}
	n := float64(len(idx))
	return x / n, y / n
}
