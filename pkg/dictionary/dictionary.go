// Package dictionary filters the variables of a dataset and tracks which of them a user picked.
package dictionary

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	apidatasets "github.com/amrdata/amrportal/pkg/api/types/datasets"
)

var (
	ErrUnknownVariable = errors.New("unknown variable")
	ErrEmptySelection  = errors.New("no variables are selected")
)

// Filter narrows variables down. The zero Filter keeps everything.
type Filter struct {
	// Search is matched case-insensitively against name, label and description.
	Search string

	// Type should equal to the variable type as Types lists it, if not empty.
	//
	// Variables without type are "unknown".
	Type string
}

func (f Filter) Match(v apidatasets.Variable) bool {
	if f.Type != "" && typeOf(v) != strings.ToLower(f.Type) {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Search))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(v.Name), q) ||
		strings.Contains(strings.ToLower(v.Label), q) ||
		strings.Contains(strings.ToLower(v.Description), q)
}

// Apply returns variables matching f, in dictionary order.
func (f Filter) Apply(vars []apidatasets.Variable) []apidatasets.Variable {
	ret := []apidatasets.Variable{}
	for _, v := range vars {
		if f.Match(v) {
			ret = append(ret, v)
		}
	}
	return ret
}

// Selection is a set of variable names, remembering dictionary order.
type Selection struct {
	order map[string]int
	names map[string]struct{}
}

// NewSelection creates an empty selection over dict.
func NewSelection(dict apidatasets.Dictionary) *Selection {
	order := make(map[string]int, len(dict.Variables))
	for i, v := range dict.Variables {
		if _, ok := order[v.Name]; !ok {
			order[v.Name] = i
		}
	}
	return &Selection{order: order, names: map[string]struct{}{}}
}

// Toggle selects name if not selected, and unselects otherwise.
//
// It returns whether name is selected after toggling.
func (s *Selection) Toggle(name string) (bool, error) {
	if _, ok := s.order[name]; !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownVariable, name)
	}
	if _, ok := s.names[name]; ok {
		delete(s.names, name)
		return false, nil
	}
	s.names[name] = struct{}{}
	return true, nil
}

// SelectAll selects vars in addition to the current selection. Unknown names are ignored.
func (s *Selection) SelectAll(vars []apidatasets.Variable) {
	for _, v := range vars {
		if _, ok := s.order[v.Name]; ok {
			s.names[v.Name] = struct{}{}
		}
	}
}

func (s *Selection) Clear() {
	s.names = map[string]struct{}{}
}

func (s *Selection) Has(name string) bool {
	_, ok := s.names[name]
	return ok
}

func (s *Selection) Len() int {
	return len(s.names)
}

// Names are selected names in dictionary order.
func (s *Selection) Names() []string {
	ret := make([]string, 0, len(s.names))
	for n := range s.names {
		ret = append(ret, n)
	}
	sort.Slice(ret, func(i, j int) bool { return s.order[ret[i]] < s.order[ret[j]] })
	return ret
}

// ParseSelection builds a selection from names submitted by a form.
//
// Duplicated names are collapsed.
// Unknown names are ErrUnknownVariable, and no names are ErrEmptySelection.
func ParseSelection(dict apidatasets.Dictionary, names []string) (*Selection, error) {
	sel := NewSelection(dict)
	unknown := []string{}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := sel.order[n]; !ok {
			unknown = append(unknown, n)
			continue
		}
		sel.names[n] = struct{}{}
	}
	if len(unknown) != 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVariable, strings.Join(unknown, ", "))
	}
	if sel.Len() == 0 {
		return nil, ErrEmptySelection
	}
	return sel, nil
}

// Outside lists selected names not in allowed, in dictionary order.
func (s *Selection) Outside(allowed []string) []string {
	ok := make(map[string]struct{}, len(allowed))
	for _, n := range allowed {
		ok[n] = struct{}{}
	}
	ret := []string{}
	for _, n := range s.Names() {
		if _, found := ok[n]; !found {
			ret = append(ret, n)
		}
	}
	return ret
}

// TypeGroup is variables of one type.
type TypeGroup struct {
	Type      string
	Variables []apidatasets.Variable
}

// Group groups variables by type.
//
// Groups are ordered by the first appearance of the type, and variables keep dictionary order.
func Group(vars []apidatasets.Variable) []TypeGroup {
	index := map[string]int{}
	groups := []TypeGroup{}
	for _, v := range vars {
		t := typeOf(v)
		i, ok := index[t]
		if !ok {
			i = len(groups)
			index[t] = i
			groups = append(groups, TypeGroup{Type: t})
		}
		groups[i].Variables = append(groups[i].Variables, v)
	}
	return groups
}

// Summarize counts variables per type.
func Summarize(dict apidatasets.Dictionary) map[string]int {
	ret := map[string]int{}
	for _, v := range dict.Variables {
		ret[typeOf(v)] += 1
	}
	return ret
}

// Types lists variable types in dict, sorted.
func Types(dict apidatasets.Dictionary) []string {
	ret := []string{}
	for t := range Summarize(dict) {
		ret = append(ret, t)
	}
	sort.Strings(ret)
	return ret
}

func typeOf(v apidatasets.Variable) string {
	if v.Type == "" {
		return "unknown"
	}
	return strings.ToLower(v.Type)
}
