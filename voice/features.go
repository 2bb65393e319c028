package voice

// Features is the per-segment voice record. All fields are always emitted;
// sub-measurements that could not be computed stay at zero.
type Features struct {
	Energy       Energy       `json:"energy"`
	Pitch        Pitch        `json:"pitch"`
	Rate         Rate         `json:"rate"`
	Pauses       Pauses       `json:"pauses"`
	Spectral     Spectral     `json:"spectral"`
	Quality      Quality      `json:"quality"`
	DerivedFlags DerivedFlags `json:"derived_flags"`
}

type Energy struct {
	RMSMean   float64 `json:"rms_mean"`
	RMSDBMean float64 `json:"rms_db_mean"`
	RMSStd    float64 `json:"rms_std"`
	RMSMax    float64 `json:"rms_max"`
}

type Pitch struct {
	F0Median      float64 `json:"f0_median"`
	F0Std         float64 `json:"f0_std"`
	F0Range       float64 `json:"f0_range"`
	UnvoicedRatio float64 `json:"unvoiced_ratio"`
}

type Rate struct {
	WordsPerMinute     float64 `json:"words_per_minute"`
	SyllablesPerSecond float64 `json:"syllables_per_second"`
	WordCount          int     `json:"word_count"`
	SyllableCount      int     `json:"syllable_count"`
}

type Pauses struct {
	PauseCount         int     `json:"pause_count"`
	TotalPauseDuration float64 `json:"total_pause_duration"`
	LongestPause       float64 `json:"longest_pause"`
	MeanPauseDuration  float64 `json:"mean_pause_duration"`
	// PauseRate is pauses per minute of segment time.
	PauseRate float64 `json:"pause_rate"`
}

type Spectral struct {
	CentroidMean  float64 `json:"centroid_mean"`
	BandwidthMean float64 `json:"bandwidth_mean"`
	RolloffMean   float64 `json:"rolloff_mean"`
	FlatnessMean  float64 `json:"flatness_mean"`
}

// Quality carries zero-crossing statistics and the periodicity measures
// (jitter, shimmer, HNR). The _parselmouth keys are part of the record
// contract consumed downstream and are kept verbatim.
type Quality struct {
	ZeroCrossingRateMean float64 `json:"zero_crossing_rate_mean"`
	ZeroCrossingRateStd  float64 `json:"zero_crossing_rate_std"`
	JitterLocal          float64 `json:"jitter_local"`
	ShimmerLocal         float64 `json:"shimmer_local"`
	HNRMean              float64 `json:"hnr_mean"`
	HNRStd               float64 `json:"hnr_std"`
	F0Mean               float64 `json:"f0_mean_parselmouth"`
	F0Std                float64 `json:"f0_std_parselmouth"`
	F0Min                float64 `json:"f0_min_parselmouth"`
	F0Max                float64 `json:"f0_max_parselmouth"`
	VoicedFraction       float64 `json:"voiced_fraction"`
}

type DerivedFlags struct {
	TooQuiet bool `json:"too_quiet"`
	Monotone bool `json:"monotone"`
	TooFast  bool `json:"too_fast"`
	Choppy   bool `json:"choppy"`
}
