package instrument

import (
	"fmt"
	"strconv"
	"strings"
)

// Channel scheme names accepted in configuration
const (
	SchemeSlotCoded = "slot"
	SchemeFlat      = "flat"
)

// ChannelScheme maps operator channel numbers to the instrument's channel labels
type ChannelScheme interface {
	Name() string
	Encode(n int) (string, error)
	Decode(label string) (int, error)
}

// SchemeByName returns a scheme for a configuration value; empty selects slot coding
func SchemeByName(name string) (ChannelScheme, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", SchemeSlotCoded:
		return SlotCoded{}, nil
	case SchemeFlat:
		return Flat{}, nil
	}
	return nil, fmt.Errorf("%w: unknown channel scheme %q", ErrInvalidArgument, name)
}

// SlotCoded numbers channels by plug-in slot: operator channel n lives in slot
// ((n-1)/100)+1 at position ((n-1)%100)+1, written "<slot>0<position:02>".
// Channel 1 is "1001", channel 100 is "10100", channel 101 is "2001".
type SlotCoded struct {
	// Slots defaults to 3, the mainframe's slot count
	Slots int
}

func (s SlotCoded) Name() string { return SchemeSlotCoded }

func (s SlotCoded) capacity() int {
	slots := s.Slots
	if slots <= 0 {
		slots = 3
	}
	if slots > 9 {
		slots = 9
	}
	return slots * 100
}

func (s SlotCoded) Encode(n int) (string, error) {
	if n < 1 || n > s.capacity() {
		return "", fmt.Errorf("%w: channel %d outside 1..%d", ErrInvalidArgument, n, s.capacity())
	}
	slot := (n-1)/100 + 1
	pos := (n-1)%100 + 1
	return fmt.Sprintf("%d0%02d", slot, pos), nil
}

func (s SlotCoded) Decode(label string) (int, error) {
	label = strings.TrimSpace(label)
	if (len(label) != 4 && len(label) != 5) || label[1] != '0' {
		return 0, fmt.Errorf("%w: channel label %q", ErrInvalidArgument, label)
	}
	slot := int(label[0] - '0')
	pos, err := strconv.Atoi(label[2:])
	if err != nil || slot < 1 || slot > 9 || pos < 1 || pos > 100 {
		return 0, fmt.Errorf("%w: channel label %q", ErrInvalidArgument, label)
	}

	n := (slot-1)*100 + pos
	canonical, err := s.Encode(n)
	if err != nil || canonical != label {
		return 0, fmt.Errorf("%w: channel label %q", ErrInvalidArgument, label)
	}
	return n, nil
}

// Flat passes channel numbers through unchanged
type Flat struct {
	// Max bounds accepted numbers when positive
	Max int
}

func (f Flat) Name() string { return SchemeFlat }

func (f Flat) Encode(n int) (string, error) {
	if n < 1 || (f.Max > 0 && n > f.Max) {
		return "", fmt.Errorf("%w: channel %d", ErrInvalidArgument, n)
	}
	return strconv.Itoa(n), nil
}

func (f Flat) Decode(label string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(label))
	if err != nil || n < 1 || (f.Max > 0 && n > f.Max) {
		return 0, fmt.Errorf("%w: channel label %q", ErrInvalidArgument, label)
	}
	return n, nil
}

// EncodeList formats channels as a comma-separated list for "(@...)" arguments
func EncodeList(scheme ChannelScheme, channels []int) (string, error) {
	labels := make([]string, 0, len(channels))
	for _, n := range channels {
		label, err := scheme.Encode(n)
		if err != nil {
			return "", err
		}
		labels = append(labels, label)
	}
	return strings.Join(labels, ","), nil
}
