package shortener

// NewGenerator creates the generator used by the shortening service
func NewGenerator(config Config, checker ExistenceChecker) (Generator, error) {
	g, err := NewRandomGenerator(config, checker)
	if err != nil {
		return nil, err
	}
	return g, nil
}
