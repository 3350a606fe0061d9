package api

// Params are the keyword arguments of a vendor call.
type Params map[string]any

// Request is the body of every vendor call.
type Request struct {
	APIName string `json:"api_name"`
	Token   string `json:"token"`
	Params  Params `json:"params"`
	Fields  string `json:"fields"`
}

// Response is the envelope of every vendor answer.
type Response struct {
	RequestID string        `json:"request_id,omitempty"`
	Code      int           `json:"code"`
	Msg       string        `json:"msg"`
	Data      *ResponseData `json:"data"`
}

// ResponseData is the column-oriented payload. Numbers decode as json.Number.
type ResponseData struct {
	Fields  []string `json:"fields"`
	Items   [][]any  `json:"items"`
	HasMore bool     `json:"has_more"`
}
