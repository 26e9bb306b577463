package completion

import "errors"

// ErrMalformedResponse is returned when the model's reply cannot be parsed
// or does not match the expected JSON shape.
var ErrMalformedResponse = errors.New("malformed completion response")
