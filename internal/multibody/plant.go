package multibody

import (
	"fmt"
	"log/slog"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/mbdyn/internal/kinmath"
	"github.com/san-kum/mbdyn/internal/spatial"
)

// DefaultHingeInertiaTolerance is the relative pivot threshold of the hinge
// inertia factorization, 64 machine epsilons.
const DefaultHingeInertiaTolerance = 64 * 0x1p-52

// DefaultGravity is the gravity vector of a new plant, expressed in W.
var DefaultGravity = mgl64.Vec3{0, 0, -9.81}

type Option func(*Plant)

func WithLogger(l *slog.Logger) Option {
	return func(p *Plant) { p.logger = l }
}

// WithHingeInertiaTolerance sets the relative pivot threshold below which a
// hinge inertia is reported as singular.
func WithHingeInertiaTolerance(tol float64) Option {
	return func(p *Plant) { p.hingeTol = tol }
}

// Plant is a tree of rigid bodies connected by joints. Bodies, frames, joints
// and force elements are added first; Finalize then freezes the topology,
// after which the plant is read-only and safe to share between goroutines
// that each own a Context.
type Plant struct {
	logger   *slog.Logger
	hingeTol float64
	gravity  *UniformGravity

	bodies        []*Body
	frames        []*Frame
	joints        []Joint
	forceElements []ForceElement
	names         map[string]struct{}

	finalized bool
	nodes     []node
	nq, nv    int
}

// node is one entry of the parent-before-child ordering. Node 0 is World.
type node struct {
	body     *Body
	joint    Joint
	parent   int
	children []int
}

// NewPlant returns an empty plant holding the world body and a
// UniformGravity element with DefaultGravity.
func NewPlant(opts ...Option) *Plant {
	p := &Plant{
		logger:   slog.Default(),
		hingeTol: DefaultHingeInertiaTolerance,
		names:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	world := &Body{plant: p, index: WorldIndex, name: "world"}
	p.bodies = append(p.bodies, world)
	world.frame = p.newFrame("world", world, kinmath.IdentityTransform())
	p.names["world"] = struct{}{}

	p.gravity = NewUniformGravity(DefaultGravity)
	p.forceElements = append(p.forceElements, p.gravity)
	return p
}

func (p *Plant) WorldBody() *Body   { return p.bodies[WorldIndex] }
func (p *Plant) WorldFrame() *Frame { return p.frames[0] }
func (p *Plant) IsFinalized() bool  { return p.finalized }
func (p *Plant) NumBodies() int     { return len(p.bodies) }
func (p *Plant) NumFrames() int     { return len(p.frames) }
func (p *Plant) NumJoints() int     { return len(p.joints) }
func (p *Plant) NumPositions() int  { return p.nq }
func (p *Plant) NumVelocities() int { return p.nv }

// NumStates returns nq + nv.
func (p *Plant) NumStates() int { return p.nq + p.nv }

func (p *Plant) Body(i BodyIndex) *Body    { return p.bodies[i] }
func (p *Plant) Frame(i FrameIndex) *Frame { return p.frames[i] }
func (p *Plant) Joint(i JointIndex) Joint  { return p.joints[i] }
func (p *Plant) Gravity() *UniformGravity  { return p.gravity }

func (p *Plant) Logger() *slog.Logger { return p.logger }

func (p *Plant) BodyByName(name string) (*Body, bool) {
	for _, b := range p.bodies {
		if b.name == name {
			return b, true
		}
	}
	return nil, false
}

func (p *Plant) FrameByName(name string) (*Frame, bool) {
	for _, f := range p.frames {
		if f.name == name {
			return f, true
		}
	}
	return nil, false
}

func (p *Plant) JointByName(name string) (Joint, bool) {
	for _, j := range p.joints {
		if j.Name() == name {
			return j, true
		}
	}
	return nil, false
}

func (p *Plant) checkMutable() error {
	if p.finalized {
		return ErrFinalized
	}
	return nil
}

func (p *Plant) claimName(name string) error {
	if _, taken := p.names[name]; taken {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	p.names[name] = struct{}{}
	return nil
}

func (p *Plant) owns(b *Body) error {
	if b == nil || b.plant != p {
		return ErrWrongPlant
	}
	return nil
}

func (p *Plant) newFrame(name string, b *Body, X_BF kinmath.RigidTransform) *Frame {
	f := &Frame{plant: p, index: FrameIndex(len(p.frames)), name: name, body: b, X_BF: X_BF}
	p.frames = append(p.frames, f)
	return f
}

// AddRigidBody adds a body with default spatial inertia M_BBo_B.
func (p *Plant) AddRigidBody(name string, M_BBo_B spatial.Inertia) (*Body, error) {
	if err := p.checkMutable(); err != nil {
		return nil, err
	}
	if err := M_BBo_B.Validate(); err != nil {
		return nil, fmt.Errorf("body %q: %w", name, err)
	}
	if err := p.claimName(name); err != nil {
		return nil, err
	}
	b := &Body{plant: p, index: BodyIndex(len(p.bodies)), name: name, defaultInertia: M_BBo_B}
	p.bodies = append(p.bodies, b)
	b.frame = p.newFrame(name, b, kinmath.IdentityTransform())
	return b, nil
}

// AddFrame adds a frame fixed in b at X_BF.
func (p *Plant) AddFrame(name string, b *Body, X_BF kinmath.RigidTransform) (*Frame, error) {
	if err := p.checkMutable(); err != nil {
		return nil, err
	}
	if err := p.owns(b); err != nil {
		return nil, err
	}
	if err := p.claimName(name); err != nil {
		return nil, err
	}
	return p.newFrame(name, b, X_BF), nil
}

// jointFrames resolves the F and M frames of a new joint, adding offset
// frames when requested.
func (p *Plant) jointFrames(name string, parent, child *Body, spec *jointSpec) (*Frame, *Frame, error) {
	if err := p.owns(parent); err != nil {
		return nil, nil, err
	}
	if err := p.owns(child); err != nil {
		return nil, nil, err
	}
	if parent == child {
		return nil, nil, fmt.Errorf("%w: joint %q connects body %q to itself", ErrTopology, name, child.name)
	}
	F, M := parent.frame, child.frame
	if spec.X_PF != nil {
		F = p.newFrame(name+"_parent", parent, *spec.X_PF)
	}
	if spec.X_BM != nil {
		M = p.newFrame(name+"_child", child, *spec.X_BM)
	}
	return F, M, nil
}

func (p *Plant) addJoint(j Joint, parent, child *Body, opts []JointOption) error {
	if err := p.checkMutable(); err != nil {
		return err
	}
	spec := jointSpec{}
	for _, opt := range opts {
		opt(&spec)
	}
	jb := j.base()
	if spec.damping < 0 {
		return fmt.Errorf("%w: joint %q damping %g", ErrInvalidParameter, jb.name, spec.damping)
	}
	if err := p.claimName(jb.name); err != nil {
		return err
	}
	F, M, err := p.jointFrames(jb.name, parent, child, &spec)
	if err != nil {
		delete(p.names, jb.name)
		return err
	}
	jb.index = JointIndex(len(p.joints))
	jb.frameF, jb.frameM = F, M
	jb.damping = spec.damping
	p.joints = append(p.joints, j)
	return nil
}

func unitAxis(axis mgl64.Vec3, functionName string) (mgl64.Vec3, error) {
	if err := kinmath.CheckVectorMagnitude(axis, functionName, 1e-10); err != nil {
		return mgl64.Vec3{}, fmt.Errorf("%w: %w", kinmath.ErrZeroAxis, err)
	}
	return axis.Normalize(), nil
}

// AddRevoluteJoint lets child rotate about axis (expressed in the joint frame
// F, normalized here).
func (p *Plant) AddRevoluteJoint(name string, parent, child *Body, axis mgl64.Vec3, opts ...JointOption) (*RevoluteJoint, error) {
	k, err := unitAxis(axis, "AddRevoluteJoint")
	if err != nil {
		return nil, err
	}
	j := &RevoluteJoint{jointBase: jointBase{name: name, kind: "revolute", nq: 1, nv: 1}, axis: k}
	if err := p.addJoint(j, parent, child, opts); err != nil {
		return nil, err
	}
	return j, nil
}

// AddPrismaticJoint lets child translate along axis (expressed in F).
func (p *Plant) AddPrismaticJoint(name string, parent, child *Body, axis mgl64.Vec3, opts ...JointOption) (*PrismaticJoint, error) {
	k, err := unitAxis(axis, "AddPrismaticJoint")
	if err != nil {
		return nil, err
	}
	j := &PrismaticJoint{jointBase: jointBase{name: name, kind: "prismatic", nq: 1, nv: 1}, axis: k}
	if err := p.addJoint(j, parent, child, opts); err != nil {
		return nil, err
	}
	return j, nil
}

// AddFreeJoint gives child all six degrees of freedom relative to parent.
func (p *Plant) AddFreeJoint(name string, parent, child *Body, opts ...JointOption) (*FreeJoint, error) {
	j := &FreeJoint{jointBase: jointBase{name: name, kind: "free", nq: 7, nv: 6}}
	if err := p.addJoint(j, parent, child, opts); err != nil {
		return nil, err
	}
	return j, nil
}

// WeldFrames fixes frame B to frame A at X_AB. The body of frameA becomes the
// parent.
func (p *Plant) WeldFrames(frameA, frameB *Frame, X_AB kinmath.RigidTransform) (*WeldJoint, error) {
	if err := p.checkMutable(); err != nil {
		return nil, err
	}
	if frameA == nil || frameB == nil || frameA.plant != p || frameB.plant != p {
		return nil, ErrWrongPlant
	}
	name := frameA.name + "_welds_to_" + frameB.name
	if err := p.claimName(name); err != nil {
		return nil, err
	}
	if frameA.body == frameB.body {
		return nil, fmt.Errorf("%w: weld %q connects body %q to itself", ErrTopology, name, frameA.body.name)
	}
	j := &WeldJoint{
		jointBase: jointBase{index: JointIndex(len(p.joints)), name: name, kind: "weld", frameF: frameA, frameM: frameB},
		X_FM:      X_AB,
	}
	p.joints = append(p.joints, j)
	return j, nil
}

// AddForceElement registers fe; it contributes to every dynamics evaluation.
func (p *Plant) AddForceElement(fe ForceElement) error {
	if err := p.checkMutable(); err != nil {
		return err
	}
	if pl, ok := fe.(planted); ok {
		if err := pl.checkPlant(p); err != nil {
			return fmt.Errorf("force element %q: %w", fe.Name(), err)
		}
	}
	p.forceElements = append(p.forceElements, fe)
	return nil
}

// SetGravity changes the gravity vector, expressed in W.
func (p *Plant) SetGravity(g mgl64.Vec3) error {
	if err := p.checkMutable(); err != nil {
		return err
	}
	if err := kinmath.CheckVectorFinite(g, "SetGravity"); err != nil {
		return err
	}
	p.gravity.G = g
	return nil
}

// Finalize completes the tree: bodies without an inboard joint receive a
// FreeJoint from World, the bodies are ordered parent before child
// (breadth-first from World), and q and v offsets are assigned.
func (p *Plant) Finalize() error {
	if err := p.checkMutable(); err != nil {
		return err
	}

	inboard := make([]Joint, len(p.bodies))
	for _, j := range p.joints {
		child := j.ChildBody()
		if child.index == WorldIndex {
			return fmt.Errorf("%w: joint %q has the world as its child", ErrTopology, j.Name())
		}
		if prev := inboard[child.index]; prev != nil {
			return fmt.Errorf("%w: body %q has two inboard joints, %q and %q",
				ErrTopology, child.name, prev.Name(), j.Name())
		}
		inboard[child.index] = j
	}

	for _, b := range p.bodies[1:] {
		if inboard[b.index] != nil {
			continue
		}
		j, err := p.AddFreeJoint("$world_"+b.name, p.WorldBody(), b)
		if err != nil {
			return err
		}
		inboard[b.index] = j
		p.logger.Info("floating body",
			slog.String("body", b.name),
			slog.String("joint", j.Name()))
	}

	outboard := make([][]Joint, len(p.bodies))
	for _, j := range p.joints {
		parent := j.ParentBody().index
		outboard[parent] = append(outboard[parent], j)
	}

	nodes := []node{{body: p.WorldBody(), parent: -1}}
	p.WorldBody().node = 0
	for head := 0; head < len(nodes); head++ {
		for _, j := range outboard[nodes[head].body.index] {
			child := j.ChildBody()
			child.node = len(nodes)
			nodes[head].children = append(nodes[head].children, child.node)
			nodes = append(nodes, node{body: child, joint: j, parent: head})
		}
	}
	if len(nodes) != len(p.bodies) {
		return fmt.Errorf("%w: %d bodies are not reachable from the world (a loop of joints)",
			ErrTopology, len(p.bodies)-len(nodes))
	}

	nq, nv := 0, 0
	for _, n := range nodes[1:] {
		jb := n.joint.base()
		jb.qStart, jb.vStart = nq, nv
		nq += jb.nq
		nv += jb.nv
	}

	p.nodes, p.nq, p.nv = nodes, nq, nv
	p.finalized = true
	p.logger.Debug("plant finalized",
		slog.Int("bodies", len(p.bodies)),
		slog.Int("joints", len(p.joints)),
		slog.Int("nq", nq),
		slog.Int("nv", nv))
	return nil
}

// Joints returns the joints in node order, each inboard to the body of the
// matching node.
func (p *Plant) Joints() []Joint {
	if !p.finalized {
		return append([]Joint(nil), p.joints...)
	}
	out := make([]Joint, 0, len(p.joints))
	for _, n := range p.nodes[1:] {
		out = append(out, n.joint)
	}
	return out
}

// InboardJoint returns the joint whose child is b, or nil for World.
func (p *Plant) InboardJoint(b *Body) Joint {
	if !p.finalized || b.index == WorldIndex {
		return nil
	}
	return p.nodes[b.node].joint
}
