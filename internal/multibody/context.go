package multibody

import (
	"fmt"
	"math"

	"github.com/san-kum/mbdyn/internal/spatial"
)

// revision counts mutations per input group. Caches remember the revision of
// the inputs they read and are recomputed when it changes.
type revision struct {
	q, v, params, forces uint64
}

func (r revision) positions() revision  { return revision{q: r.q} }
func (r revision) velocities() revision { return revision{q: r.q, v: r.v} }
func (r revision) inertias() revision   { return revision{q: r.q, params: r.params} }

// Context holds the state, parameters and inputs of one plant evaluation
// together with its lazily computed caches. A Context is not safe for
// concurrent use; give each goroutine its own via Clone.
type Context struct {
	plant *Plant

	q, v    []float64
	inertia []spatial.Inertia
	tau     []float64
	// F_Bo_W per body index.
	applied []spatial.Force

	rev     revision
	version uint64

	position     *positionKinematics
	velocity     *velocityKinematics
	articulated  *articulatedInertias
	forwardCache *forwardDynamics
}

// CreateDefaultContext returns a context at the default state: zero angles and
// translations, identity free-joint poses, zero velocities and no applied
// forces.
func (p *Plant) CreateDefaultContext() (*Context, error) {
	if !p.finalized {
		return nil, ErrNotFinalized
	}
	ctx := &Context{
		plant:   p,
		q:       make([]float64, p.nq),
		v:       make([]float64, p.nv),
		inertia: make([]spatial.Inertia, len(p.bodies)),
		tau:     make([]float64, p.nv),
		applied: make([]spatial.Force, len(p.bodies)),
	}
	for _, n := range p.nodes[1:] {
		jb := n.joint.base()
		n.joint.defaultPositions(ctx.q[jb.qStart : jb.qStart+jb.nq])
	}
	for i, b := range p.bodies {
		ctx.inertia[i] = b.defaultInertia
	}
	return ctx, nil
}

// Plant returns the plant ctx was created by.
func (c *Context) Plant() *Plant { return c.plant }

// Version increases on every mutation.
func (c *Context) Version() uint64 { return c.version }

// Clone returns an independent deep copy without the caches.
func (c *Context) Clone() *Context {
	return &Context{
		plant:   c.plant,
		q:       append([]float64(nil), c.q...),
		v:       append([]float64(nil), c.v...),
		inertia: append([]spatial.Inertia(nil), c.inertia...),
		tau:     append([]float64(nil), c.tau...),
		applied: append([]spatial.Force(nil), c.applied...),
		rev:     c.rev,
		version: c.version,
	}
}

func (c *Context) checkPlant(p *Plant) {
	if c.plant != p {
		panic(ErrWrongPlant)
	}
}

func (c *Context) bumpPositions()  { c.rev.q++; c.version++ }
func (c *Context) bumpVelocities() { c.rev.v++; c.version++ }
func (c *Context) bumpParams()     { c.rev.params++; c.version++ }
func (c *Context) bumpForces()     { c.rev.forces++; c.version++ }

func checkFinite(name string, x []float64) error {
	for i, xi := range x {
		if math.IsNaN(xi) || math.IsInf(xi, 0) {
			return fmt.Errorf("%w: %s[%d] = %g", ErrNonFinite, name, i, xi)
		}
	}
	return nil
}

// validatePositions checks q joint by joint; free joints reject a zero
// quaternion.
func (c *Context) validatePositions(q []float64) error {
	if len(q) != c.plant.nq {
		return fmt.Errorf("%w: %d positions, plant has %d", ErrDimension, len(q), c.plant.nq)
	}
	for _, n := range c.plant.nodes[1:] {
		jb := n.joint.base()
		if err := n.joint.validatePositions(q[jb.qStart : jb.qStart+jb.nq]); err != nil {
			return err
		}
	}
	return nil
}

func (c *Context) SetPositions(q []float64) error {
	if err := c.validatePositions(q); err != nil {
		return err
	}
	copy(c.q, q)
	c.bumpPositions()
	return nil
}

func (c *Context) SetVelocities(v []float64) error {
	if len(v) != c.plant.nv {
		return fmt.Errorf("%w: %d velocities, plant has %d", ErrDimension, len(v), c.plant.nv)
	}
	if err := checkFinite("v", v); err != nil {
		return err
	}
	copy(c.v, v)
	c.bumpVelocities()
	return nil
}

// SetPositionsAndVelocities sets x = [q; v]. Nothing changes on error.
func (c *Context) SetPositionsAndVelocities(x []float64) error {
	nq, nv := c.plant.nq, c.plant.nv
	if len(x) != nq+nv {
		return fmt.Errorf("%w: state has %d entries, plant has %d", ErrDimension, len(x), nq+nv)
	}
	if err := c.validatePositions(x[:nq]); err != nil {
		return err
	}
	if err := checkFinite("v", x[nq:]); err != nil {
		return err
	}
	copy(c.q, x[:nq])
	copy(c.v, x[nq:])
	c.bumpPositions()
	c.bumpVelocities()
	return nil
}

func (c *Context) Positions() []float64  { return append([]float64(nil), c.q...) }
func (c *Context) Velocities() []float64 { return append([]float64(nil), c.v...) }

// PositionsAndVelocities returns x = [q; v].
func (c *Context) PositionsAndVelocities() []float64 {
	x := make([]float64, 0, len(c.q)+len(c.v))
	return append(append(x, c.q...), c.v...)
}

// SetAppliedGeneralizedForces sets τ, one entry per velocity, added to the
// force elements' contribution.
func (c *Context) SetAppliedGeneralizedForces(tau []float64) error {
	if len(tau) != c.plant.nv {
		return fmt.Errorf("%w: %d generalized forces, plant has %d velocities", ErrDimension, len(tau), c.plant.nv)
	}
	if err := checkFinite("tau", tau); err != nil {
		return err
	}
	copy(c.tau, tau)
	c.bumpForces()
	return nil
}

func (c *Context) AppliedGeneralizedForces() []float64 { return append([]float64(nil), c.tau...) }

// SetAppliedSpatialForce applies F_Bo_W to body b, at Bo and expressed in W.
func (c *Context) SetAppliedSpatialForce(b *Body, F_Bo_W spatial.Force) error {
	c.checkPlant(b.plant)
	coeffs := F_Bo_W.Coeffs()
	if err := checkFinite("F_Bo_W", coeffs[:]); err != nil {
		return err
	}
	c.applied[b.index] = F_Bo_W
	c.bumpForces()
	return nil
}

// ClearAppliedForces zeroes τ and every applied spatial force.
func (c *Context) ClearAppliedForces() {
	clear(c.tau)
	clear(c.applied)
	c.bumpForces()
}

func (c *Context) setJointPositions(j Joint, q []float64) error {
	jb := j.base()
	c.checkPlant(jb.frameF.plant)
	if err := j.validatePositions(q); err != nil {
		return err
	}
	copy(c.q[jb.qStart:jb.qStart+jb.nq], q)
	c.bumpPositions()
	return nil
}

func (c *Context) setJointVelocities(j Joint, v []float64) error {
	jb := j.base()
	c.checkPlant(jb.frameF.plant)
	if err := checkFinite(jb.name, v); err != nil {
		return err
	}
	copy(c.v[jb.vStart:jb.vStart+jb.nv], v)
	c.bumpVelocities()
	return nil
}
