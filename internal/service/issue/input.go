package issue

import (
	"github.com/heartmarshall/treecleaner/internal/domain"
)

// Page selects one page of a listing. Zero values take the defaults.
type Page struct {
	Page    int
	PerPage int
}

func (p Page) validate() []domain.FieldError {
	var errs []domain.FieldError
	if p.Page < 0 {
		errs = append(errs, domain.FieldError{Field: "page", Message: "must be positive"})
	}
	if p.PerPage < 0 || p.PerPage > MaxPerPage {
		errs = append(errs, domain.FieldError{Field: "per_page", Message: "must be between 1 and 500"})
	}
	return errs
}

// limitOffset converts the 1-based page into a limit and offset.
func (p Page) limitOffset() (int, int) {
	perPage := p.PerPage
	if perPage == 0 {
		perPage = DefaultPerPage
	}
	page := p.Page
	if page == 0 {
		page = 1
	}
	return perPage, (page - 1) * perPage
}

// ListIssuesInput filters the issue listing. Empty Type and Status match any.
type ListIssuesInput struct {
	Type   domain.IssueType
	Status domain.IssueStatus
	Page
}

// Validate checks all fields and collects all errors.
func (i ListIssuesInput) Validate() error {
	errs := i.Page.validate()
	if i.Type != "" && !i.Type.IsValid() {
		errs = append(errs, domain.FieldError{Field: "type", Message: "unknown issue type"})
	}
	if i.Status != "" && !i.Status.IsValid() {
		errs = append(errs, domain.FieldError{Field: "status", Message: "must be open, resolved or ignored"})
	}
	if len(errs) > 0 {
		return &domain.ValidationError{Errors: errs}
	}
	return nil
}

// ListActionLogInput pages through the action log.
type ListActionLogInput struct {
	Page
}

// Validate checks all fields and collects all errors.
func (i ListActionLogInput) Validate() error {
	if errs := i.Page.validate(); len(errs) > 0 {
		return &domain.ValidationError{Errors: errs}
	}
	return nil
}
