package repository

import "github.com/okian/hackcast/pkg/logger"

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithTopN sets how many teams and markets Facts returns.
func WithTopN(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.topN = n
		}
	}
}

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}
