package types

// ProjectPage is one page of search results.
type ProjectPage struct {
	Items    []ProjectSummary `json:"items"`
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`

	// Degraded is set when the semantic branch failed and the page was
	// produced from lexical results alone.
	Degraded bool `json:"degraded,omitempty"`
}

// Validate checks the page shape.
func (p *ProjectPage) Validate() error {
	if p.Page < 0 {
		return ErrInvalidPage
	}
	if p.PageSize <= 0 {
		return ErrInvalidPageSize
	}
	if len(p.Items) > p.PageSize {
		return ErrPageOverflow
	}
	return nil
}

// IDs returns the ids of the items in page order.
func (p *ProjectPage) IDs() []int64 {
	ids := make([]int64, len(p.Items))
	for i, it := range p.Items {
		ids[i] = it.ID
	}
	return ids
}
