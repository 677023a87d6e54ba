package composer

// Option applies a configuration option to the Composer.
type Option func(*Composer)

// WithDeveloperExperiments scopes every dispatched query to the member in
// Locals by setting Options["context"].
func WithDeveloperExperiments(enabled bool) Option {
	return func(c *Composer) {
		c.developerExperiments = enabled
	}
}

// WithCancelOnFailure cancels the context of in-flight sibling queries as
// soon as one query fails. When disabled, siblings run to completion and
// their results are dropped.
func WithCancelOnFailure(enabled bool) Option {
	return func(c *Composer) {
		c.cancelOnFailure = enabled
	}
}
