package postgres

// Config holds what a client needs to open a Postgres connection (spec
// §4.13's connect(config, rng, stream)).
type Config struct {
	User            string
	Password        string
	Database        string
	ApplicationName string

	ChannelBinding     ChannelBindingPolicy
	TLSServerEndPoint  []byte // non-nil when the transport is TLS and supports channel binding
}
