package domain

import "fmt"

// UpstreamStatusError carries a non-2xx response from the OCR engine so the
// failure categorizer can route retry decisions on the status code.
type UpstreamStatusError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("ocr engine returned %d: %s", e.StatusCode, e.Body)
}
