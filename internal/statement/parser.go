package statement

import "context"

// Parser turns canonical UTF-8 statement text into a structured
// payload. A malformed statement yields a *ParseError; any other error
// is an infrastructure failure.
type Parser interface {
	Parse(ctx context.Context, text string) (*Statement, error)
}
