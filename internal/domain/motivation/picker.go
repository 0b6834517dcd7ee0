// Package motivation selects motivational content for the focus dashboard.
package motivation

import (
	"math/rand/v2"
	"sync"
)

// Kind of motivational content.
type Kind string

const (
	KindQuote Kind = "quote"
	KindFact  Kind = "fact"
	KindTip   Kind = "tip"
)

// Content is one piece of motivational text.
type Content struct {
	Kind   Kind   `json:"kind"`
	Text   string `json:"text"`
	Author string `json:"author,omitempty"`
}

// DefaultCatalogue is shipped with the service.
func DefaultCatalogue() []Content {
	return []Content{
		{Kind: KindQuote, Text: "The secret of getting ahead is getting started.", Author: "Mark Twain"},
		{Kind: KindQuote, Text: "It always seems impossible until it's done.", Author: "Nelson Mandela"},
		{Kind: KindQuote, Text: "Well done is better than well said.", Author: "Benjamin Franklin"},
		{Kind: KindFact, Text: "Short breaks between focus blocks improve recall of what you just studied."},
		{Kind: KindFact, Text: "Switching tasks can cost several minutes of refocusing time."},
		{Kind: KindTip, Text: "Put your phone in another room before starting a session."},
		{Kind: KindTip, Text: "Write down the one thing you want finished before the timer starts."},
	}
}

// Picker chooses content with an injected random source.
// A fixed seed gives a reproducible sequence.
type Picker struct {
	mu        sync.Mutex
	rng       *rand.Rand
	catalogue []Content
}

// NewPicker creates a picker over catalogue. A nil catalogue uses DefaultCatalogue.
func NewPicker(src rand.Source, catalogue []Content) *Picker {
	if len(catalogue) == 0 {
		catalogue = DefaultCatalogue()
	}
	return &Picker{rng: rand.New(src), catalogue: catalogue}
}

// NewSeededPicker is a convenience over NewPicker with a PCG source.
func NewSeededPicker(seed uint64) *Picker {
	return NewPicker(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15), nil)
}

// Pick returns one entry of the catalogue.
func (p *Picker) Pick() Content {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.catalogue[p.rng.IntN(len(p.catalogue))]
}

// PickKind returns a random entry of the given kind, or false if there is none.
func (p *Picker) PickKind(kind Kind) (Content, bool) {
	var matching []Content
	for _, c := range p.catalogue {
		if c.Kind == kind {
			matching = append(matching, c)
		}
	}
	if len(matching) == 0 {
		return Content{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return matching[p.rng.IntN(len(matching))], true
}
