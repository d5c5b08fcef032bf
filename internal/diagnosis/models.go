package diagnosis

// Request is one image submitted for analysis
type Request struct {
	// Image holds raw image bytes. When empty, ImageDataURL is decoded instead.
	Image        []byte
	ImageDataURL string
	Filename     string

	// Symptoms is free text typed by the user
	Symptoms string

	// Questionnaire holds structured answers, sent JSON encoded
	Questionnaire map[string]any
}

// SimilarDisease is an alternative the model considered
type SimilarDisease struct {
	Name        string  `json:"name"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description,omitempty"`
}

// Diagnosis is the analysis result. Confidence values are percentages.
type Diagnosis struct {
	PredictedDisease string           `json:"predicted_disease"`
	DiseaseCode      string           `json:"disease_code,omitempty"`
	Confidence       float64          `json:"confidence"`
	Summary          string           `json:"summary"`
	Recommendation   string           `json:"recommendation"`
	SimilarDiseases  []SimilarDisease `json:"similar_diseases"`
}

// diagnoseResponse covers both the current payload and the legacy one that
// wraps tagged text in "result"
type diagnoseResponse struct {
	PredictedDisease string           `json:"predicted_disease"`
	DiseaseCode      string           `json:"disease_code"`
	Confidence       float64          `json:"confidence"`
	Summary          string           `json:"summary"`
	Recommendation   string           `json:"recommendation"`
	SimilarDiseases  []SimilarDisease `json:"similar_diseases"`
	Result           string           `json:"result"`
}

// RefineRequest for POST /api/refine-text
type RefineRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// RefineResponse from POST /api/refine-text
type RefineResponse struct {
	RefinedText *string `json:"refined_text"`
}
