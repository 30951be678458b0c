package di

// Region is the AWS region the container's clients are bound to.
type Region string

// Option is a function that configures the dependency injection container.
type Option func(*options)

func WithRegion(region string) Option {
	return func(opts *options) {
		opts.region = Region(region)
	}
}

// WithProviders adds constructor functions to the dependency injection container.
// Each provider should be a constructor function that returns one or more values.
// Providers can declare dependencies as function parameters, which will be
// automatically resolved by the container.
//
// Example:
//
//	WithProviders(
//	    func(client *secretsmanager.Client) *services.SecretHolder {
//	        return services.NewSecretHolder(client)
//	    },
//	)
func WithProviders(providers ...any) Option {
	return func(opts *options) {
		opts.providers = append(opts.providers, providers...)
	}
}

type options struct {
	region    Region
	providers []any
}
