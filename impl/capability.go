package impl

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/polyglot/errors"
)

// Capability identifies a cross-cutting provider that exists at most once
// per process.
type Capability uint8

const (
	CapabilityAPIAccess Capability = iota
	CapabilityManagement
	CapabilityIO

	numCapabilities
)

func (c Capability) String() string {
	switch c {
	case CapabilityAPIAccess:
		return "api-access"
	case CapabilityManagement:
		return "management"
	case CapabilityIO:
		return "io"
	default:
		return fmt.Sprintf("capability(%d)", uint8(c))
	}
}

// Loader produces the well-known default provider for a capability.
type Loader func() (any, error)

type registration struct {
	value any
	typ   reflect.Type
}

type slot struct {
	provider atomic.Pointer[registration]
	loader   atomic.Pointer[Loader]
	once     sync.Once
	loadErr  error
}

// Capabilities is the singleton registry for capability providers.
// Registration is check-and-set: the first provider wins, a repeated
// registration of the same concrete type is a no-op and any other concrete
// type is rejected. There is no unregister.
type Capabilities struct {
	slots [numCapabilities]slot
}

// NewCapabilities creates an empty registry. Most callers want
// DefaultCapabilities; separate registries exist for isolated tests.
func NewCapabilities() *Capabilities {
	return &Capabilities{}
}

var defaultCapabilities = NewCapabilities()

// DefaultCapabilities returns the process-wide registry.
func DefaultCapabilities() *Capabilities {
	return defaultCapabilities
}

// Register installs provider for capability.
func (c *Capabilities) Register(capability Capability, provider any) error {
	if capability >= numCapabilities {
		return errors.InvalidInput(errors.PhaseBootstrap, "unknown capability "+capability.String())
	}
	if provider == nil {
		return errors.InvalidInput(errors.PhaseBootstrap, capability.String()+" provider cannot be nil")
	}
	if err := checkProvider(capability, provider); err != nil {
		return err
	}

	reg := &registration{value: provider, typ: reflect.TypeOf(provider)}
	s := &c.slots[capability]
	for {
		cur := s.provider.Load()
		if cur != nil {
			if cur.typ == reg.typ {
				return nil
			}
			return errors.DuplicateCapability(capability.String(), cur.typ.String(), reg.typ.String())
		}
		if s.provider.CompareAndSwap(nil, reg) {
			Logger().Debug("capability registered",
				zap.Stringer("capability", capability),
				zap.Stringer("type", reg.typ))
			return nil
		}
	}
}

func checkProvider(capability Capability, provider any) error {
	var ok bool
	switch capability {
	case CapabilityAPIAccess:
		_, ok = provider.(APIAccess)
	case CapabilityManagement:
		_, ok = provider.(ManagementAccess)
	case CapabilityIO:
		_, ok = provider.(IOAccess)
	}
	if !ok {
		return errors.New(errors.PhaseBootstrap, errors.KindInvalidInput).
			Path(capability.String()).
			GoType(fmt.Sprintf("%T", provider)).
			Detail("provider does not implement the capability interface").
			Build()
	}
	return nil
}

// SetDefault installs the loader used when Get finds no registered provider.
func (c *Capabilities) SetDefault(capability Capability, loader Loader) {
	if capability >= numCapabilities || loader == nil {
		return
	}
	c.slots[capability].loader.Store(&loader)
}

// Registered reports whether a provider is installed without triggering the
// default loader.
func (c *Capabilities) Registered(capability Capability) bool {
	if capability >= numCapabilities {
		return false
	}
	return c.slots[capability].provider.Load() != nil
}

// Get returns the provider for capability. When none is registered the
// default loader runs, at most once per registry; its failure is remembered.
func (c *Capabilities) Get(capability Capability) (any, error) {
	if capability >= numCapabilities {
		return nil, errors.InvalidInput(errors.PhaseBootstrap, "unknown capability "+capability.String())
	}
	s := &c.slots[capability]
	if r := s.provider.Load(); r != nil {
		return r.value, nil
	}

	s.once.Do(func() {
		loader := s.loader.Load()
		if loader == nil {
			s.loadErr = errors.CapabilityUnavailable(capability.String(), stderrors.New("no default provider installed"))
			return
		}
		v, err := (*loader)()
		if err != nil {
			s.loadErr = errors.CapabilityUnavailable(capability.String(), err)
			return
		}
		// A concurrent explicit registration may have won; that provider stays.
		if err := c.Register(capability, v); err != nil && !stderrors.Is(err, errors.ErrDuplicateCapability) {
			s.loadErr = errors.CapabilityUnavailable(capability.String(), err)
			return
		}
		Logger().Debug("capability loaded lazily", zap.Stringer("capability", capability))
	})

	if r := s.provider.Load(); r != nil {
		return r.value, nil
	}
	return nil, s.loadErr
}

// API returns the API-access provider.
func (c *Capabilities) API() (APIAccess, error) {
	v, err := c.Get(CapabilityAPIAccess)
	if err != nil {
		return nil, err
	}
	return v.(APIAccess), nil
}

// Management returns the management provider.
func (c *Capabilities) Management() (ManagementAccess, error) {
	v, err := c.Get(CapabilityManagement)
	if err != nil {
		return nil, err
	}
	return v.(ManagementAccess), nil
}

// IO returns the I/O-policy provider.
func (c *Capabilities) IO() (IOAccess, error) {
	v, err := c.Get(CapabilityIO)
	if err != nil {
		return nil, err
	}
	return v.(IOAccess), nil
}
