package artifacts

import (
	"fmt"
	"slices"
)

// CategoryGroup describes how one categorical record field was one-hot
// encoded at training time. Values[0] is the baseline category, which gets
// no indicator column; every other value v gets the column Prefix+v.
type CategoryGroup struct {
	Field  string   `json:"field" yaml:"field"`
	Prefix string   `json:"prefix" yaml:"prefix"`
	Values []string `json:"values" yaml:"values"`
}

// Baseline returns the reference category
func (g CategoryGroup) Baseline() string {
	if len(g.Values) == 0 {
		return ""
	}
	return g.Values[0]
}

// Columns returns the indicator column names in training order
func (g CategoryGroup) Columns() []string {
	if len(g.Values) < 2 {
		return nil
	}
	cols := make([]string, 0, len(g.Values)-1)
	for _, v := range g.Values[1:] {
		cols = append(cols, g.Prefix+v)
	}
	return cols
}

// Categories is the categorical part of the feature schema contract
type Categories []CategoryGroup

// DefaultCategories returns the category sets the shipped model was trained with.
// They apply when an artifact manifest does not carry its own.
func DefaultCategories() Categories {
	return Categories{
		{
			Field:  "gender",
			Prefix: "Gender_",
			Values: []string{"Female", "Male"},
		},
		{
			Field:  "occupation",
			Prefix: "Occupation_",
			Values: []string{
				"Accountant", "Doctor", "Engineer", "Lawyer", "Manager", "Nurse",
				"Sales Representative", "Salesperson", "Scientist", "Software Engineer", "Teacher",
			},
		},
		{
			Field:  "bmi_category",
			Prefix: "BMI Category_",
			Values: []string{"Normal", "Normal Weight", "Obese", "Overweight"},
		},
	}
}

// Validate checks group well-formedness
func (c Categories) Validate() error {
	fields := make(map[string]bool, len(c))
	for _, g := range c {
		if g.Field == "" {
			return fmt.Errorf("category group has empty field name")
		}
		if fields[g.Field] {
			return fmt.Errorf("category field %q is declared twice", g.Field)
		}
		fields[g.Field] = true

		if len(g.Values) == 0 {
			return fmt.Errorf("category field %q must list at least its baseline value", g.Field)
		}
		seen := make(map[string]bool, len(g.Values))
		for _, v := range g.Values {
			if v == "" {
				return fmt.Errorf("category field %q has an empty value", g.Field)
			}
			if seen[v] {
				return fmt.Errorf("category field %q lists %q twice", g.Field, v)
			}
			seen[v] = true
		}
	}
	return nil
}

// Group returns the group for a record field
func (c Categories) Group(field string) (CategoryGroup, bool) {
	for _, g := range c {
		if g.Field == field {
			return g, true
		}
	}
	return CategoryGroup{}, false
}

func (c Categories) clone() Categories {
	if c == nil {
		return nil
	}
	out := make(Categories, len(c))
	for i, g := range c {
		g.Values = slices.Clone(g.Values)
		out[i] = g
	}
	return out
}
