// Package rag holds the retrieval option state and turns it, together with
// the user's text, into a chat request.
package rag

import (
	"slices"

	"github.com/raphaelgruber/propchat/internal/models"
)

// Options is the per-session retrieval configuration. It is a value type;
// copies never share the selection.
//
// Strict is kept even while retrieval is disabled so it can be set up ahead
// of time. It only takes effect through ResolveMode.
type Options struct {
	Enabled  bool
	Strict   bool
	selected map[models.SourceType]bool
}

// DefaultOptions returns retrieval disabled, not strict, every source selected.
func DefaultOptions() Options {
	o := Options{}
	o.SelectAll()
	return o
}

// ToggleRAG flips Enabled.
func (o *Options) ToggleRAG() { o.Enabled = !o.Enabled }

// ToggleStrictMode flips Strict.
func (o *Options) ToggleStrictMode() { o.Strict = !o.Strict }

// ToggleSource adds t to the selection, or removes it if already selected.
func (o *Options) ToggleSource(t models.SourceType) {
	o.own()
	if o.selected[t] {
		delete(o.selected, t)
		return
	}
	o.selected[t] = true
}

// SetSources replaces the selection.
func (o *Options) SetSources(types ...models.SourceType) {
	o.selected = make(map[models.SourceType]bool, len(types))
	for _, t := range types {
		o.selected[t] = true
	}
}

// SelectAll selects every known source.
func (o *Options) SelectAll() { o.SetSources(models.AllSources()...) }

// Clear deselects every source.
func (o *Options) Clear() { o.SetSources() }

// Reset restores DefaultOptions.
func (o *Options) Reset() { *o = DefaultOptions() }

// Selected reports whether t is in the selection.
func (o Options) Selected(t models.SourceType) bool { return o.selected[t] }

// Sources returns the selection in canonical order, followed by any
// unknown types sorted by name.
func (o Options) Sources() []models.SourceType {
	out := make([]models.SourceType, 0, len(o.selected))
	for _, t := range models.AllSources() {
		if o.selected[t] {
			out = append(out, t)
		}
	}
	var extra []models.SourceType
	for t := range o.selected {
		if !slices.Contains(out, t) {
			extra = append(extra, t)
		}
	}
	slices.Sort(extra)
	return append(out, extra...)
}

// IsZero reports whether o is the zero value, as opposed to an explicit
// configuration with nothing selected.
func (o Options) IsZero() bool { return o.selected == nil && !o.Enabled && !o.Strict }

// Mode is ResolveMode applied to o.
func (o Options) Mode() models.ChatMode { return ResolveMode(o.Enabled, o.Strict) }

// Clone returns a copy with its own selection.
func (o Options) Clone() Options {
	out := o
	out.selected = make(map[models.SourceType]bool, len(o.selected))
	for t, v := range o.selected {
		out.selected[t] = v
	}
	return out
}

// own makes sure the selection map is not shared with another copy before
// mutating it in place.
func (o *Options) own() {
	*o = o.Clone()
}

// ResolveMode maps the two retrieval flags to a chat mode. Strict only
// counts when retrieval is enabled.
func ResolveMode(enabled, strict bool) models.ChatMode {
	switch {
	case enabled && strict:
		return models.ModeRAGOnly
	case enabled:
		return models.ModeRAGEnhanced
	default:
		return models.ModeNormal
	}
}
