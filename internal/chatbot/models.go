package chatbot

// AnalysisContext is the diagnosis the conversation is about
type AnalysisContext struct {
	PredictedDisease string   `json:"predicted_disease"`
	Confidence       float64  `json:"confidence"`
	Summary          string   `json:"summary,omitempty"`
	Recommendation   string   `json:"recommendation,omitempty"`
	SimilarDiseases  []string `json:"similar_diseases,omitempty"`
	Symptoms         string   `json:"symptoms,omitempty"`
}

// StartRequest for POST /chat/start
type StartRequest struct {
	AnalysisContext AnalysisContext `json:"analysis_context"`
	FirstMessage    string          `json:"first_message,omitempty"`
}

// StartResponse from POST /chat/start
type StartResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply,omitempty"`
}

// MessageRequest for POST /chat/message
type MessageRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// MessageResponse from POST /chat/message
type MessageResponse struct {
	Reply string `json:"reply"`
}
