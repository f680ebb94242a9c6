package model

import "fmt"

// Category is a node in the forest of categories; cycles are invalid
// (spec.md §3).
type Category struct {
	ID       int64
	Title    string
	ParentID *int64
}

// CategoryForest indexes categories by id for cycle detection and
// name-to-id resolution (used by the rule engine's `category:` transform).
type CategoryForest struct {
	byID map[int64]Category
}

// NewCategoryForest builds a forest from a flat category list, returning
// an error if it contains a cycle.
func NewCategoryForest(cats []Category) (*CategoryForest, error) {
	f := &CategoryForest{byID: make(map[int64]Category, len(cats))}
	for _, c := range cats {
		f.byID[c.ID] = c
	}
	for _, c := range cats {
		if err := f.checkAcyclic(c.ID, map[int64]bool{}); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (f *CategoryForest) checkAcyclic(id int64, visiting map[int64]bool) error {
	if visiting[id] {
		return fmt.Errorf("category %d: cycle detected in category parent chain", id)
	}
	visiting[id] = true
	c, ok := f.byID[id]
	if !ok || c.ParentID == nil {
		return nil
	}
	return f.checkAcyclic(*c.ParentID, visiting)
}

// ByID looks up a category by id.
func (f *CategoryForest) ByID(id int64) (Category, bool) {
	c, ok := f.byID[id]
	return c, ok
}

// IDByTitle resolves a fully-qualified category title (e.g.
// "Expenses:Food:Coffee") to its id. Matching is exact on Title; the rule
// engine is responsible for whatever hierarchical title convention the
// archive uses.
func (f *CategoryForest) IDByTitle(title string) (int64, bool) {
	for id, c := range f.byID {
		if c.Title == title {
			return id, true
		}
	}
	return 0, false
}
