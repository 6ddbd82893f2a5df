package content

import "errors"

// ErrEmptyNarration is returned when the narrator answers with blank text.
var ErrEmptyNarration = errors.New("narrator returned empty text")
