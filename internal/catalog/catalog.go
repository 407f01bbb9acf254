package catalog

type StepTemplate struct {
	Code     string `json:"code"`
	Display  string `json:"display"`
	Template string `json:"template"`
}

type WorkflowDefinition struct {
	Name  string   `json:"name"`
	Steps []string `json:"steps"`
}

type PaperProfile struct {
	Name    string  `json:"name"`
	WidthMM float64 `json:"width_mm"`
}

// Catalog is one parsed snapshot of the workflow definition file. Reloads
// build a fresh Catalog and publish it wholesale; a published Catalog is
// never mutated, so in-flight runs can keep reading the one they resolved
// against.
type Catalog struct {
	steps     map[string]StepTemplate
	workflows map[string]WorkflowDefinition
	papers    map[string]PaperProfile

	stepOrder     []string
	workflowOrder []string
	paperOrder    []string
}

func newCatalog() *Catalog {
	return &Catalog{
		steps:     make(map[string]StepTemplate),
		workflows: make(map[string]WorkflowDefinition),
		papers:    make(map[string]PaperProfile),
	}
}

func (c *Catalog) addStep(s StepTemplate) bool {
	_, dup := c.steps[s.Code]
	if !dup {
		c.stepOrder = append(c.stepOrder, s.Code)
	}
	c.steps[s.Code] = s
	return dup
}

func (c *Catalog) addWorkflow(w WorkflowDefinition) bool {
	_, dup := c.workflows[w.Name]
	if !dup {
		c.workflowOrder = append(c.workflowOrder, w.Name)
	}
	c.workflows[w.Name] = w
	return dup
}

func (c *Catalog) addPaper(p PaperProfile) bool {
	_, dup := c.papers[p.Name]
	if !dup {
		c.paperOrder = append(c.paperOrder, p.Name)
	}
	c.papers[p.Name] = p
	return dup
}

func (c *Catalog) Step(code string) (StepTemplate, bool) {
	s, ok := c.steps[code]
	return s, ok
}

func (c *Catalog) Workflow(name string) (WorkflowDefinition, bool) {
	w, ok := c.workflows[name]
	return w, ok
}

func (c *Catalog) Paper(name string) (PaperProfile, bool) {
	p, ok := c.papers[name]
	return p, ok
}

// Steps returns the step templates in file order.
func (c *Catalog) Steps() []StepTemplate {
	out := make([]StepTemplate, 0, len(c.stepOrder))
	for _, code := range c.stepOrder {
		out = append(out, c.steps[code])
	}
	return out
}

// Workflows returns the workflow definitions in file order.
func (c *Catalog) Workflows() []WorkflowDefinition {
	out := make([]WorkflowDefinition, 0, len(c.workflowOrder))
	for _, name := range c.workflowOrder {
		out = append(out, c.workflows[name])
	}
	return out
}

// Papers returns the paper profiles in file order.
func (c *Catalog) Papers() []PaperProfile {
	out := make([]PaperProfile, 0, len(c.paperOrder))
	for _, name := range c.paperOrder {
		out = append(out, c.papers[name])
	}
	return out
}

func (c *Catalog) WorkflowCount() int { return len(c.workflowOrder) }

func (c *Catalog) PaperCount() int { return len(c.paperOrder) }

// WorkflowAt resolves a 1-based index into the ordered workflow table.
func (c *Catalog) WorkflowAt(index int) (WorkflowDefinition, bool) {
	if index < 1 || index > len(c.workflowOrder) {
		return WorkflowDefinition{}, false
	}
	return c.workflows[c.workflowOrder[index-1]], true
}

// PaperAt resolves a 1-based index into the ordered paper table.
func (c *Catalog) PaperAt(index int) (PaperProfile, bool) {
	if index < 1 || index > len(c.paperOrder) {
		return PaperProfile{}, false
	}
	return c.papers[c.paperOrder[index-1]], true
}
