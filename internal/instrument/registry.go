package instrument

import (
	"errors"
	"strings"
	"sync"

	"labrelay/internal/domain"
	"labrelay/internal/transport"
)

type registration struct {
	token string
	ctor  Constructor
}

// Registry maps identity substrings to driver constructors, per category.
// Within a category the first registered token that matches wins.
type Registry struct {
	mu       sync.RWMutex
	entries  map[domain.Category][]registration
	foldCase map[domain.Category]bool
}

func NewRegistry() *Registry {
	return &Registry{
		entries:  make(map[domain.Category][]registration),
		foldCase: make(map[domain.Category]bool),
	}
}

// FoldCase makes token matching for category case-insensitive
func (r *Registry) FoldCase(category domain.Category, fold bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.foldCase[category] = fold
}

// Register appends a token; earlier registrations take precedence
func (r *Registry) Register(category domain.Category, token string, ctor Constructor) error {
	if strings.TrimSpace(token) == "" {
		return errors.New("register: empty token")
	}
	if ctor == nil {
		return errors.New("register: nil constructor")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[category] = append(r.entries[category], registration{token: token, ctor: ctor})
	return nil
}

// Resolve returns the constructor of the first token contained in identity
func (r *Registry) Resolve(category domain.Category, identity string) (Constructor, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolveLocked(category, identity)
}

func (r *Registry) resolveLocked(category domain.Category, identity string) (Constructor, string, bool) {
	fold := r.foldCase[category]
	if fold {
		identity = strings.ToUpper(identity)
	}
	for _, reg := range r.entries[category] {
		token := reg.token
		if fold {
			token = strings.ToUpper(token)
		}
		if strings.Contains(identity, token) {
			return reg.ctor, reg.token, true
		}
	}
	return nil, "", false
}

// Classify picks the category whose matching token is longest, so a vendor-wide
// token in one category does not shadow a model token in another. Ties go to
// the earlier category in domain.Categories.
func (r *Registry) Classify(identity string) (domain.Category, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		best    domain.Category
		bestLen int
	)
	for _, c := range domain.Categories {
		if _, token, ok := r.resolveLocked(c, identity); ok && len(token) > bestLen {
			best, bestLen = c, len(token)
		}
	}
	return best, bestLen > 0
}

// Tokens lists a category's tokens in precedence order
func (r *Registry) Tokens(category domain.Category) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries[category]))
	for _, reg := range r.entries[category] {
		out = append(out, reg.token)
	}
	return out
}

func ctorOf[T Instrument](f func(transport.Conn, domain.DeviceIdentity) T) Constructor {
	return func(conn transport.Conn, id domain.DeviceIdentity) Instrument { return f(conn, id) }
}

// SchemeSelector picks the DAQ channel scheme for an address
type SchemeSelector func(address string) ChannelScheme

// Options tunes the built-in drivers
type Options struct {
	DAQScheme SchemeSelector
}

// DefaultRegistry registers every built-in driver
func DefaultRegistry(opts Options) *Registry {
	scheme := opts.DAQScheme
	if scheme == nil {
		scheme = func(string) ChannelScheme { return SlotCoded{} }
	}

	r := NewRegistry()
	r.FoldCase(domain.CategoryDCSource, true)
	r.FoldCase(domain.CategoryELoad, true)

	must := func(c domain.Category, ctor Constructor, tokens ...string) {
		for _, t := range tokens {
			if err := r.Register(c, t, ctor); err != nil {
				panic(err)
			}
		}
	}

	daq := func(conn transport.Conn, id domain.DeviceIdentity) Instrument {
		return NewHP34970A(conn, id, scheme(conn.Address()))
	}
	must(domain.CategoryDAQ, daq, "HP34970A", "Agilent34970A", "HEWLETT-PACKARD,34970A", "34970A", "34972A")

	must(domain.CategoryDCSource, ctorOf(NewChroma62000P), "Chroma,62012P", "CHROMA,62012P", "62012P",
		"62006P", "62024P", "62050P", "62075P", "62100P", "62150P")
	must(domain.CategoryDCSource, ctorOf(NewChromaMulti), "CHROMA,620", "CHROMA ATE,620")
	must(domain.CategoryDCSource, ctorOf(NewSCPISource), "E36", "DP7", "DP8", "SPD", "IT6")

	must(domain.CategoryELoad, ctorOf(NewChroma63200A), "Chroma,63206A", "CHROMA,632", "CHROMA ATE,632", "63206A")
	must(domain.CategoryELoad, ctorOf(NewSCPILoad), "IT8", "DL3", "B&K")

	must(domain.CategoryOscilloscope, ctorOf(NewTekMSO5), "MSO54B", "MSO56B", "MSO58B", "MSO5")

	must(domain.CategorySignalGenerator, ctorOf(NewTekAFG3000), "AFG3101C", "AFG31", "AFG3")

	return r
}
