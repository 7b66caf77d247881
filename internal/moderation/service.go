// Package moderation implements the listing moderation pipeline: the
// submission gate, the strike ledger with its ban cascade, admin claim
// synchronization, and the admin console actions.
package moderation

// Service bundles the pipeline components built over one store.
type Service struct {
	Policy     Policy
	Dispatcher *Dispatcher
	Gate       *ContentSubmissionGate
	Ledger     *TrustLedger
	Cascade    *CascadeDeactivator
	Claims     *AdminClaimSynchronizer
	Admin      *AdminService
}

type Options struct {
	Policy         Policy
	Claims         ClaimsProvider
	Screener       ImageScreener
	AllowBootstrap bool
	// InProcessTriggers makes admin writes dispatch TrustRecordWritten
	// directly. Disable it when the database delivers its own write events.
	InProcessTriggers bool
}

// New builds the pipeline and registers the gate and the claim synchronizer
// on a fresh dispatcher.
func New(store Store, opts Options) (*Service, error) {
	policy := opts.Policy.WithDefaults()

	cascade := NewCascadeDeactivator(store, policy)
	ledger := NewTrustLedger(store, policy, cascade)
	gate, err := NewContentSubmissionGate(store, ledger, policy)
	if err != nil {
		return nil, err
	}
	if opts.Screener != nil {
		gate.SetImageScreener(opts.Screener)
	}
	claims := NewAdminClaimSynchronizer(store, opts.Claims, opts.AllowBootstrap)

	d := NewDispatcher()
	d.OnListingCreated(gate.HandleListingCreated)
	d.OnTrustRecordWritten(claims.HandleTrustRecordWritten)

	var adminDispatch *Dispatcher
	if opts.InProcessTriggers {
		adminDispatch = d
	}

	return &Service{
		Policy:     policy,
		Dispatcher: d,
		Gate:       gate,
		Ledger:     ledger,
		Cascade:    cascade,
		Claims:     claims,
		Admin:      NewAdminService(store, cascade, adminDispatch, policy),
	}, nil
}
