package intercessor

import (
	"fmt"

	"intercessor/core/events"
)

// Registry is the participant whitelist gating every settlement entry point.
// A single administrative authority is fixed at construction; no removal
// operation exists.
type Registry struct {
	state     EngineState
	authority [20]byte
	emitter   events.Emitter
}

// NewRegistry constructs a registry owned by the supplied authority.
func NewRegistry(authority [20]byte) *Registry {
	return &Registry{
		authority: authority,
		emitter:   events.NoopEmitter{},
	}
}

// SetState configures the state backend.
func (r *Registry) SetState(state EngineState) { r.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// Authority returns the administrative identity.
func (r *Registry) Authority() [20]byte { return r.authority }

// Admit whitelists the identity. Only the authority may call; re-admitting an
// existing participant is a no-op success.
func (r *Registry) Admit(caller, identity [20]byte) error {
	if r == nil || r.state == nil {
		return errNilState
	}
	if caller != r.authority {
		return ErrUnauthorized
	}
	if identity == ([20]byte{}) {
		return fmt.Errorf("intercessor: empty participant identity")
	}
	exists, err := r.state.ParticipantExists(identity)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := r.state.ParticipantAdd(identity); err != nil {
		return err
	}
	if r.emitter != nil {
		r.emitter.Emit(engineEvent{evt: NewParticipantAddedEvent(identity)})
	}
	return nil
}

// IsAdmitted reports whether the identity has been admitted.
func (r *Registry) IsAdmitted(identity [20]byte) (bool, error) {
	if r == nil || r.state == nil {
		return false, errNilState
	}
	return r.state.ParticipantExists(identity)
}

func (r *Registry) requireAdmitted(addrs ...[20]byte) error {
	for _, addr := range addrs {
		admitted, err := r.IsAdmitted(addr)
		if err != nil {
			return err
		}
		if !admitted {
			return ErrUnauthorized
		}
	}
	return nil
}
