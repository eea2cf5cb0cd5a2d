package imageref

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrNoElectableCover means every reference was filtered out. The product is
// skipped, not failed.
var ErrNoElectableCover = errors.New("no electable cover")

// Election rules, reported for logging.
const (
	RulePrimaryMarker = "primary-marker"
	RuleExistingCover = "existing-cover"
	RuleFirst         = "first"
)

// Election is the outcome of cover selection.
type Election struct {
	Cover   Reference
	Gallery []Reference
	Rule    string
	Dropped []Reference
}

// Elector picks a product's cover from its normalized references.
type Elector struct {
	primary *regexp.Regexp
	trash   []*regexp.Regexp
}

// NewElector compiles the primary-image marker and discard patterns.
func NewElector(primaryPattern string, trashPatterns []string) (*Elector, error) {
	e := &Elector{}
	if primaryPattern != "" {
		re, err := regexp.Compile(primaryPattern)
		if err != nil {
			return nil, fmt.Errorf("compile primary pattern: %w", err)
		}
		e.primary = re
	}
	for _, p := range trashPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile trash pattern %q: %w", p, err)
		}
		e.trash = append(e.trash, re)
	}
	return e, nil
}

// IsTrash reports whether ref matches a discard pattern. Internal references
// are never trash.
func (e *Elector) IsTrash(ref Reference) bool {
	if ref.IsInternal() {
		return false
	}
	for _, re := range e.trash {
		if re.MatchString(ref.Value) {
			return true
		}
	}
	return false
}

// Elect filters refs and selects the cover. currentCover is the source value
// of the cover already committed for the product, if any.
func (e *Elector) Elect(refs []Reference, currentCover string) (Election, error) {
	var kept, dropped []Reference
	for _, r := range refs {
		if e.IsTrash(r) {
			dropped = append(dropped, r)
			continue
		}
		kept = append(kept, r)
	}

	if len(kept) == 0 {
		return Election{Dropped: dropped}, ErrNoElectableCover
	}

	coverIdx, rule := 0, RuleFirst
	if idx := e.primaryIndex(kept); idx >= 0 {
		coverIdx, rule = idx, RulePrimaryMarker
	} else if idx := indexOf(kept, currentCover); idx >= 0 {
		coverIdx, rule = idx, RuleExistingCover
	}

	gallery := make([]Reference, 0, len(kept)-1)
	for i, r := range kept {
		if i != coverIdx {
			gallery = append(gallery, r)
		}
	}

	return Election{
		Cover:   kept[coverIdx],
		Gallery: gallery,
		Rule:    rule,
		Dropped: dropped,
	}, nil
}

func (e *Elector) primaryIndex(refs []Reference) int {
	if e.primary == nil {
		return -1
	}
	for i, r := range refs {
		if e.primary.MatchString(r.Value) {
			return i
		}
	}
	return -1
}

func indexOf(refs []Reference, value string) int {
	if value == "" {
		return -1
	}
	for i, r := range refs {
		if r.Value == value {
			return i
		}
	}
	return -1
}
