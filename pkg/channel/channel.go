// Package channel describes the delivery channels a customer can write from
// and their per-channel rules.
package channel

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Type names a channel.
type Type string

const (
	Web      Type = "web"
	WhatsApp Type = "whatsapp"
)

// Adapter holds the rules for one channel.
type Adapter struct {
	Type Type
	// MaxLength is measured in characters after trimming.
	MaxLength int
	// Format rewrites an outgoing reply for the channel.
	Format func(string) string
}

// Validate reports whether a message can be accepted on this channel.
func (a Adapter) Validate(message string) bool {
	trimmed := strings.TrimSpace(message)
	return trimmed != "" && utf8.RuneCountInString(trimmed) <= a.MaxLength
}

// Registry maps channel types to adapters.
type Registry struct {
	adapters map[Type]Adapter
}

// DefaultRegistry returns the web and WhatsApp adapters. webMax overrides
// the web length limit when positive.
func DefaultRegistry(webMax int) *Registry {
	if webMax <= 0 {
		webMax = 2000
	}
	r := &Registry{adapters: map[Type]Adapter{}}
	r.Register(Adapter{Type: Web, MaxLength: webMax, Format: identity})
	r.Register(Adapter{Type: WhatsApp, MaxLength: 4096, Format: whatsappFormat})
	return r
}

// Register adds or replaces an adapter.
func (r *Registry) Register(a Adapter) {
	if a.Format == nil {
		a.Format = identity
	}
	r.adapters[a.Type] = a
}

// Get returns the adapter for t. An empty type means Web.
func (r *Registry) Get(t Type) (Adapter, error) {
	if t == "" {
		t = Web
	}
	a, ok := r.adapters[t]
	if !ok {
		names := make([]string, 0, len(r.adapters))
		for _, st := range r.Supported() {
			names = append(names, string(st))
		}
		return Adapter{}, fmt.Errorf("unsupported channel: %s (supported: %s)", t, strings.Join(names, ", "))
	}
	return a, nil
}

// Supported lists the registered channel types in name order.
func (r *Registry) Supported() []Type {
	types := make([]Type, 0, len(r.adapters))
	for t := range r.adapters {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

func identity(s string) string { return s }

var (
	mdBold   = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
	mdStrike = regexp.MustCompile(`~~([^~\n]+)~~`)
)

// whatsappFormat converts markdown emphasis into WhatsApp markup.
func whatsappFormat(s string) string {
	s = mdBold.ReplaceAllString(s, "*$1*")
	return mdStrike.ReplaceAllString(s, "~$1~")
}
