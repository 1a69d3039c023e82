package route

// VisualizationController is the view-bound state of the visualization route.
type VisualizationController struct {
	Variable                *string `json:"variable" yaml:"variable"`
	StartDate               int     `json:"startDate" yaml:"startDate"`
	EndDate                 int     `json:"endDate" yaml:"endDate"`
	Search                  *string `json:"search" yaml:"search"`
	SearchText              *string `json:"searchText" yaml:"searchText"`
	ToolTips                bool    `json:"toolTips" yaml:"toolTips"`
	DrawerChangeGraphIsOpen bool    `json:"drawerChangeGraphIsOpen" yaml:"drawerChangeGraphIsOpen"`
	DrawerQuestionsIsOpen   bool    `json:"drawerQuestionsIsOpen" yaml:"drawerQuestionsIsOpen"`
}

// NewVisualizationController returns a controller with the date range set to
// the toggle years.
func NewVisualizationController(t Toggles) VisualizationController {
	return VisualizationController{StartDate: t.FirstYear, EndDate: t.LastYear}
}

// ApplyQuery copies the query parameters present in q. Absent parameters
// keep their current value.
func (c *VisualizationController) ApplyQuery(q QueryParams) {
	if q.StartDate != nil {
		c.StartDate = *q.StartDate
	}
	if q.EndDate != nil {
		c.EndDate = *q.EndDate
	}
	if q.Search != nil {
		s := *q.Search
		c.Search = &s
	}
	if q.ToolTips != nil {
		c.ToolTips = *q.ToolTips
	}
}

// Setup closes both drawers and seeds the search box from the search
// parameter.
func (c *VisualizationController) Setup() {
	c.DrawerChangeGraphIsOpen = false
	c.DrawerQuestionsIsOpen = false
	c.SearchText = c.Search
}

// Reset clears the selected variable. When the route is being exited the
// date range also returns to the toggle years.
func (c *VisualizationController) Reset(isExiting bool, t Toggles) {
	c.Variable = nil
	if isExiting {
		c.StartDate = t.FirstYear
		c.EndDate = t.LastYear
	}
}

// IndexController is the view-bound state of the index route.
type IndexController struct {
	Query *string `json:"query" yaml:"query"`
}

// Setup clears the query.
func (c *IndexController) Setup() {
	c.Query = nil
}

// Reset clears the query when the route is being exited.
func (c *IndexController) Reset(isExiting bool) {
	if isExiting {
		c.Query = nil
	}
}

// Patch carries client-side edits to controller state (drawer toggles, the
// selected variable, the index query). Nil fields are left unchanged.
type Patch struct {
	Variable                *string `json:"variable,omitempty"`
	DrawerChangeGraphIsOpen *bool   `json:"drawerChangeGraphIsOpen,omitempty"`
	DrawerQuestionsIsOpen   *bool   `json:"drawerQuestionsIsOpen,omitempty"`
	Query                   *string `json:"query,omitempty"`
}
