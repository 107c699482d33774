package params

const (
	// ParamsKeyProtocol stores the admin-tunable protocol parameters.
	ParamsKeyProtocol = "protocol/params"
)
