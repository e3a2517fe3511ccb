package primitive

// Conflict records that two primitives of the same type and name were
// discovered; only the winning source survived into the collection.
type Conflict struct {
	Type          Type
	Name          string
	WinningSource Source
	LosingSources []Source
}

// key identifies a primitive by (type, name) for deduplication.
type key struct {
	t    Type
	name string
}

// Collection is a keyed container of primitives plus any conflicts
// recorded while building it (§3.2).
type Collection struct {
	instructions []Instruction
	contexts     []Context
	chatmodes    []Chatmode
	skills       []Skill

	index     map[key]Source // winning source per (type, name), for conflict detection
	Conflicts []Conflict
}

// NewCollection returns an empty Collection ready for AddX calls.
func NewCollection() *Collection {
	return &Collection{index: make(map[key]Source)}
}

// AddInstruction adds an instruction, applying "first wins" priority: if
// an instruction of the same name already exists, the incoming one is
// dropped and recorded as a conflict (never silently discarded, per I1).
func (c *Collection) AddInstruction(in Instruction) {
	k := key{TypeInstruction, in.Name}
	if existing, ok := c.index[k]; ok {
		c.recordConflict(TypeInstruction, in.Name, existing, in.Source)
		return
	}
	c.index[k] = in.Source
	c.instructions = append(c.instructions, in)
}

// AddContext adds a context primitive with the same priority semantics.
func (c *Collection) AddContext(ctx Context) {
	k := key{TypeContext, ctx.Name}
	if existing, ok := c.index[k]; ok {
		c.recordConflict(TypeContext, ctx.Name, existing, ctx.Source)
		return
	}
	c.index[k] = ctx.Source
	c.contexts = append(c.contexts, ctx)
}

// AddChatmode adds a chatmode/agent primitive with the same priority semantics.
func (c *Collection) AddChatmode(cm Chatmode) {
	k := key{TypeChatmode, cm.Name}
	if existing, ok := c.index[k]; ok {
		c.recordConflict(TypeChatmode, cm.Name, existing, cm.Source)
		return
	}
	c.index[k] = cm.Source
	c.chatmodes = append(c.chatmodes, cm)
}

// AddSkill adds a skill primitive with the same priority semantics.
func (c *Collection) AddSkill(sk Skill) {
	k := key{TypeSkill, sk.Name}
	if existing, ok := c.index[k]; ok {
		c.recordConflict(TypeSkill, sk.Name, existing, sk.Source)
		return
	}
	c.index[k] = sk.Source
	c.skills = append(c.skills, sk)
}

func (c *Collection) recordConflict(t Type, name string, winning, losing Source) {
	for i := range c.Conflicts {
		if c.Conflicts[i].Type == t && c.Conflicts[i].Name == name {
			c.Conflicts[i].LosingSources = append(c.Conflicts[i].LosingSources, losing)
			return
		}
	}
	c.Conflicts = append(c.Conflicts, Conflict{
		Type:          t,
		Name:          name,
		WinningSource: winning,
		LosingSources: []Source{losing},
	})
}

// Instructions returns all instructions currently in the collection.
func (c *Collection) Instructions() []Instruction { return append([]Instruction(nil), c.instructions...) }

// Contexts returns all contexts currently in the collection.
func (c *Collection) Contexts() []Context { return append([]Context(nil), c.contexts...) }

// Chatmodes returns all chatmodes currently in the collection.
func (c *Collection) Chatmodes() []Chatmode { return append([]Chatmode(nil), c.chatmodes...) }

// Skills returns all skills currently in the collection.
func (c *Collection) Skills() []Skill { return append([]Skill(nil), c.skills...) }

// InstructionsBySource filters instructions to those matching the given source
// predicate; used by tests and diagnostics to inspect provenance.
func (c *Collection) InstructionsBySource(pred func(Source) bool) []Instruction {
	var out []Instruction
	for _, in := range c.instructions {
		if pred(in.Source) {
			out = append(out, in)
		}
	}
	return out
}

// LookupInstruction finds an instruction by name.
func (c *Collection) LookupInstruction(name string) (Instruction, bool) {
	for _, in := range c.instructions {
		if in.Name == name {
			return in, true
		}
	}
	return Instruction{}, false
}
