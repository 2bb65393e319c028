package face

// Features is the fixed-schema record emitted for every sampled frame.
// Every field is always serialized; when FaceDetected is false all numeric
// leaves stay at zero so consumers can index by fixed key paths.
type Features struct {
	FaceDetected bool     `json:"face_detected"`
	Eyes         Eyes     `json:"eyes"`
	Eyebrows     Eyebrows `json:"eyebrows"`
	Mouth        Mouth    `json:"mouth"`
	Head         Head     `json:"head"`
	Face         Geometry `json:"face"`
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Gaze struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
}

type Eye struct {
	WidthHeightRatio float64 `json:"width_height_ratio"`
	IrisPosition     Point   `json:"iris_position"`
	Gaze             Gaze    `json:"gaze"`
}

type Eyes struct {
	Left        Eye     `json:"left"`
	Right       Eye     `json:"right"`
	SaccadeRate float64 `json:"saccade_rate"`
}

type Eyebrow struct {
	Raise  float64 `json:"raise"`
	Furrow float64 `json:"furrow"`
}

type Eyebrows struct {
	Left      Eyebrow `json:"left"`
	Right     Eyebrow `json:"right"`
	Asymmetry float64 `json:"asymmetry"`
}

type Mouth struct {
	MAR              float64 `json:"mar"`
	WidthHeightRatio float64 `json:"width_height_ratio"`
	Asymmetry        float64 `json:"asymmetry"`
	SmileIntensity   float64 `json:"smile_intensity"`
	LipPress         float64 `json:"lip_press"`
	MotionEnergy     float64 `json:"motion_energy"`
}

type Rotation struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

// Motion holds windowed angular velocities in degrees (or proxy units) per second.
type Motion struct {
	NodRate      float64 `json:"nod_rate"`
	ShakeRate    float64 `json:"shake_rate"`
	StabilityRMS float64 `json:"stability_rms"`
	YawRate      float64 `json:"yaw_rate"`
	PitchRate    float64 `json:"pitch_rate"`
	RollRate     float64 `json:"roll_rate"`
}

type Head struct {
	Rotation Rotation `json:"rotation"`
	Motion   Motion   `json:"motion"`
}

type Geometry struct {
	WidthHeightRatio float64 `json:"width_height_ratio"`
	Symmetry         float64 `json:"symmetry"`
	// Scale is the face bounding box area as a percentage of the frame.
	Scale        float64 `json:"scale"`
	CenterOffset Point   `json:"center_offset"`
}
