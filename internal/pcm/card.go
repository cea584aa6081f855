package pcm

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Device is a playback PCM device on a sound card.
type Device struct {
	ID          int
	Description string
}

// Card is a sound card with its playback devices.
type Card struct {
	ID          int
	Name        string
	Description string
	Devices     []Device
}

// String returns a human-readable representation of the card.
func (c Card) String() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Card %d: %s (%s)\n", c.ID, c.Name, c.Description))
	for _, dev := range c.Devices {
		sb.WriteString(fmt.Sprintf("  Device %d: %s [hw:%d,%d]\n", dev.ID, dev.Description, c.ID, dev.ID))
	}

	return sb.String()
}

var (
	cardRegex = regexp.MustCompile(`^\s*(\d+)\s+\[\s*([^]]*?)\s*\]:\s*(.*)`)
	// Lines like "02-00: Loopback PCM : Loopback PCM : playback 8 : capture 8".
	pcmRegex = regexp.MustCompile(`^(\d+)-(\d+): (.*?) :.*`)
)

// EnumerateCards lists sound cards with playback devices from /proc/asound.
func EnumerateCards() ([]Card, error) {
	cards, err := os.ReadFile("/proc/asound/cards")
	if err != nil {
		return nil, fmt.Errorf("could not read /proc/asound/cards: %w", err)
	}

	pcms, err := os.ReadFile("/proc/asound/pcm")
	if err != nil {
		return nil, fmt.Errorf("could not read /proc/asound/pcm: %w", err)
	}

	return ParseCards(string(cards), string(pcms)), nil
}

// ParseCards builds the card list from the contents of /proc/asound/cards and /proc/asound/pcm.
// Cards without playback devices are kept with an empty device list.
func ParseCards(cards, pcms string) []Card {
	cardMap := make(map[int]*Card)

	for _, line := range strings.Split(cards, "\n") {
		matches := cardRegex.FindStringSubmatch(line)
		if len(matches) != 4 {
			continue
		}

		id, err := strconv.Atoi(matches[1])
		if err != nil {
			continue
		}

		cardMap[id] = &Card{
			ID:          id,
			Name:        strings.TrimSpace(matches[2]),
			Description: strings.TrimSpace(matches[3]),
		}
	}

	for _, line := range strings.Split(pcms, "\n") {
		matches := pcmRegex.FindStringSubmatch(line)
		if len(matches) < 4 || !strings.Contains(line, "playback") {
			continue
		}

		cardID, _ := strconv.Atoi(matches[1])
		devID, _ := strconv.Atoi(matches[2])

		card, ok := cardMap[cardID]
		if !ok {
			continue
		}

		card.Devices = append(card.Devices, Device{
			ID:          devID,
			Description: strings.TrimSpace(matches[3]),
		})
	}

	ids := make([]int, 0, len(cardMap))
	for id := range cardMap {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	result := make([]Card, 0, len(ids))
	for _, id := range ids {
		result = append(result, *cardMap[id])
	}

	return result
}

// ParseName parses a device name of the form "hw:C,D".
func ParseName(name string) (card, device uint, err error) {
	if !strings.HasPrefix(name, "hw:") {
		return 0, 0, fmt.Errorf("invalid PCM name format: missing 'hw:' prefix")
	}

	parts := strings.Split(strings.TrimPrefix(name, "hw:"), ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid PCM name format: expected 'hw:card,device'")
	}

	c, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid card number '%s': %w", parts[0], err)
	}

	d, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid device number '%s': %w", parts[1], err)
	}

	return uint(c), uint(d), nil
}
