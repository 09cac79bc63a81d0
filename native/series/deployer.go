package series

import (
	"encoding/binary"
	"errors"
	"fmt"

	yserrors "yieldsplit/core/errors"
	"yieldsplit/core/events"
	"yieldsplit/core/host"
	"yieldsplit/core/state"
	"yieldsplit/crypto"
	"yieldsplit/native/clearinghouse"
	"yieldsplit/native/principal"
	"yieldsplit/native/yieldtoken"
)

var (
	// ErrNoSeries is returned when no series has been deployed yet.
	ErrNoSeries = errors.New("series: none deployed")

	errNilDeployer = errors.New("series: deployer not configured")

	keyAdmin   = state.Key("admin")
	keyCurrent = state.Key("current")
	keyScale   = state.Key("scale")
)

// Params are the per-deployment constants every series shares. Scale is
// fixed by Construct; later deployments use the stored value.
type Params struct {
	Scale           uint64
	Decimals        uint32
	PrincipalName   string
	PrincipalSymbol string
	YieldName       string
	YieldSymbol     string
}

// DefaultParams returns the token metadata used when none is configured.
func DefaultParams() Params {
	return Params{
		Scale:           1_000_000,
		Decimals:        7,
		PrincipalName:   "Principal Token",
		PrincipalSymbol: "PT",
		YieldName:       "Yield Token",
		YieldSymbol:     "YT",
	}
}

// Series is one deployed (clearinghouse, PT, YT) triple.
type Series struct {
	Number        uint64
	Clearinghouse *clearinghouse.Clearinghouse
	Principal     *principal.Ledger
	Yield         *yieldtoken.Ledger
}

// Deployer creates series against a single vault and tracks the current one.
// Each series lives at addresses derived from the deployer and its number.
type Deployer struct {
	addr   crypto.Address
	oracle clearinghouse.RateOracle
	shares clearinghouse.ShareToken
	params Params
}

// NewDeployer returns the deployer at addr for the given vault.
func NewDeployer(addr crypto.Address, oracle clearinghouse.RateOracle, shares clearinghouse.ShareToken, params Params) *Deployer {
	return &Deployer{addr: addr, oracle: oracle, shares: shares, params: params}
}

// Address returns the deployer's component address.
func (d *Deployer) Address() crypto.Address {
	if d == nil {
		return crypto.Address{}
	}
	return d.addr
}

func (d *Deployer) enter(env *host.Env) (*host.Env, *state.Store, error) {
	if d == nil || env == nil || d.oracle == nil || d.shares == nil {
		return nil, nil, errNilDeployer
	}
	frame := env.Enter(d.addr)
	return frame, frame.Store(d.addr), nil
}

func seriesSalt(deployer crypto.Address, number uint64) []byte {
	salt := deployer.Bytes()
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], number)
	return append(salt, n[:]...)
}

// build wires the in-process components of series number. It touches no
// state.
func (d *Deployer) build(number uint64) *Series {
	salt := seriesSalt(d.addr, number)
	pt := principal.New(crypto.ComponentAddress("principal", salt))
	yt := yieldtoken.New(crypto.ComponentAddress("yield", salt))
	ch := clearinghouse.New(crypto.ComponentAddress("clearinghouse", salt), clearinghouse.Collaborators{
		Oracle:    d.oracle,
		Shares:    d.shares,
		Principal: pt,
		Yield:     yt,
	})
	yt.Bind(ch)
	return &Series{Number: number, Clearinghouse: ch, Principal: pt, Yield: yt}
}

// Construct records the operator allowed to deploy series and the rate scale
// every series will use.
func (d *Deployer) Construct(env *host.Env, admin crypto.Address) error {
	_, store, err := d.enter(env)
	if err != nil {
		return err
	}
	exists, err := store.Has(keyAdmin)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("series: construct: %w", yserrors.ErrAlreadyInitialized)
	}
	if admin.IsZero() {
		return fmt.Errorf("series: admin required")
	}
	if d.params.Scale == 0 {
		return fmt.Errorf("series: scale must be positive: %w", yserrors.ErrInvalidAmount)
	}
	if err := store.SetUint64(keyScale, d.params.Scale); err != nil {
		return err
	}
	return store.SetAddress(keyAdmin, admin)
}

// Scale returns the rate scale recorded at construction.
func (d *Deployer) Scale(env *host.Env) (uint64, error) {
	_, store, err := d.enter(env)
	if err != nil {
		return 0, err
	}
	scale, err := store.Uint64(keyScale)
	if err != nil {
		return 0, err
	}
	if scale == 0 {
		return 0, fmt.Errorf("series: %w", yserrors.ErrNotInitialized)
	}
	return scale, nil
}

func (d *Deployer) requireAdmin(frame *host.Env, store *state.Store) error {
	admin, err := store.Address(keyAdmin)
	if err != nil {
		return err
	}
	if admin.IsZero() {
		return fmt.Errorf("series: %w", yserrors.ErrNotInitialized)
	}
	return frame.RequireAuth(admin)
}

// Deploy creates the next series maturing at maturity, bootstraps it and
// makes it current. Admin only.
func (d *Deployer) Deploy(env *host.Env, maturity uint64) (*Series, error) {
	frame, store, err := d.enter(env)
	if err != nil {
		return nil, err
	}
	if err := d.requireAdmin(frame, store); err != nil {
		return nil, fmt.Errorf("series: deploy: %w", err)
	}
	return d.deploy(frame, store, maturity)
}

func (d *Deployer) deploy(frame *host.Env, store *state.Store, maturity uint64) (*Series, error) {
	if maturity <= frame.Timestamp() {
		return nil, fmt.Errorf("series: maturity %d is not after %d: %w", maturity, frame.Timestamp(), yserrors.ErrInvalidAmount)
	}
	current, err := store.Uint64(keyCurrent)
	if err != nil {
		return nil, err
	}
	scale, err := store.Uint64(keyScale)
	if err != nil {
		return nil, err
	}
	if scale == 0 {
		return nil, fmt.Errorf("series: deploy: %w", yserrors.ErrNotInitialized)
	}
	s := d.build(current + 1)
	ch := s.Clearinghouse
	if err := ch.Construct(frame, d.addr, d.shares.Address(), d.oracle.Kind(), maturity); err != nil {
		return nil, fmt.Errorf("series: deploy: %w", err)
	}
	if err := s.Principal.Construct(frame, ch.Address(), d.params.PrincipalName, d.params.PrincipalSymbol, d.params.Decimals); err != nil {
		return nil, fmt.Errorf("series: deploy: %w", err)
	}
	if err := s.Yield.Construct(frame, ch.Address(), d.params.YieldName, d.params.YieldSymbol, d.params.Decimals, scale); err != nil {
		return nil, fmt.Errorf("series: deploy: %w", err)
	}
	if err := ch.BootstrapTokens(frame, s.Principal.Address(), s.Yield.Address()); err != nil {
		return nil, fmt.Errorf("series: deploy: %w", err)
	}
	if err := store.SetUint64(keyCurrent, s.Number); err != nil {
		return nil, err
	}
	frame.Emit(events.SeriesDeployed{
		Clearinghouse:  ch.Address(),
		PrincipalToken: s.Principal.Address(),
		YieldToken:     s.Yield.Address(),
		Vault:          d.shares.Address(),
		Maturity:       maturity,
		Number:         s.Number,
	})
	return s, nil
}

// Current returns the most recently deployed series.
func (d *Deployer) Current(env *host.Env) (*Series, error) {
	_, store, err := d.enter(env)
	if err != nil {
		return nil, err
	}
	current, err := store.Uint64(keyCurrent)
	if err != nil {
		return nil, err
	}
	if current == 0 {
		return nil, ErrNoSeries
	}
	return d.build(current), nil
}

// Get returns series number, which must have been deployed.
func (d *Deployer) Get(env *host.Env, number uint64) (*Series, error) {
	_, store, err := d.enter(env)
	if err != nil {
		return nil, err
	}
	current, err := store.Uint64(keyCurrent)
	if err != nil {
		return nil, err
	}
	if number == 0 || number > current {
		return nil, fmt.Errorf("series %d: %w", number, ErrNoSeries)
	}
	return d.build(number), nil
}

// RolloverIfExpired deploys a new series maturing at newMaturity once the
// current series has matured. It reports whether a series was deployed.
// Admin only.
func (d *Deployer) RolloverIfExpired(env *host.Env, newMaturity uint64) (bool, error) {
	frame, store, err := d.enter(env)
	if err != nil {
		return false, err
	}
	if err := d.requireAdmin(frame, store); err != nil {
		return false, fmt.Errorf("series: rollover: %w", err)
	}
	current, err := store.Uint64(keyCurrent)
	if err != nil {
		return false, err
	}
	if current == 0 {
		return false, nil
	}
	previous := d.build(current).Clearinghouse
	maturity, err := previous.Maturity(frame)
	if err != nil {
		return false, err
	}
	if frame.Timestamp() < maturity {
		return false, nil
	}
	next, err := d.deploy(frame, store, newMaturity)
	if err != nil {
		return false, err
	}
	frame.Emit(events.SeriesRolledOver{
		Previous:      previous.Address(),
		Clearinghouse: next.Clearinghouse.Address(),
		Maturity:      newMaturity,
	})
	return true, nil
}
