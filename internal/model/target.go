package model

import "time"

// Likelihood grades explicit-content categories, mirroring the vision API's
// safe-search annotation scale.
type Likelihood int

const (
	LikelihoodUnknown Likelihood = iota
	LikelihoodVeryUnlikely
	LikelihoodUnlikely
	LikelihoodPossible
	LikelihoodLikely
	LikelihoodVeryLikely
)

// TextFeature holds submitted or extracted text and the analysis performed
// on it.
type TextFeature struct {
	Data                 string             `json:"data"`
	TranslatedData       string             `json:"translated_data,omitempty"`
	DetectedLanguageCode string             `json:"detected_language_code,omitempty"`
	ToxicityScores       map[string]float64 `json:"toxicity_scores,omitempty"`
}

// ImageFeature holds a submitted image and everything the analysis workflow
// derived from it.
type ImageFeature struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Data        []byte `json:"data,omitempty"`

	// Text extracted through OCR, including downstream translation and
	// toxicity scoring.
	OCRText *TextFeature `json:"ocr_text,omitempty"`

	// Perceptual hash digest of the image bytes.
	Digest string `json:"digest,omitempty"`

	AdultLikelihood    Likelihood `json:"adult_likelihood,omitempty"`
	SpoofLikelihood    Likelihood `json:"spoof_likelihood,omitempty"`
	MedicalLikelihood  Likelihood `json:"medical_likelihood,omitempty"`
	ViolenceLikelihood Likelihood `json:"violence_likelihood,omitempty"`
	RacyLikelihood     Likelihood `json:"racy_likelihood,omitempty"`
}

// FeatureSet is the collection of features that make up a target. Some are
// provided at submission time, others are filled in by analyzers.
type FeatureSet struct {
	Image *ImageFeature `json:"image,omitempty"`
	Text  *TextFeature  `json:"text,omitempty"`
}

// Target is the entity being checked against known signals: one piece of
// submitted platform content. ClientContext is an opaque string stored
// as-is and echoed back in review delivery callbacks; never parse it.
type Target struct {
	ID            string     `json:"id"`
	CreateTime    time.Time  `json:"create_time"`
	ClientContext string     `json:"client_context,omitempty"`
	FeatureSet    FeatureSet `json:"feature_set"`
}
